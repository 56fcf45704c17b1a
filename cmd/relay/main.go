package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/screen-relay/config"
	"github.com/mossy-p/screen-relay/internal/capture"
	"github.com/mossy-p/screen-relay/internal/handlers"
	"github.com/mossy-p/screen-relay/internal/input"
	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/redis"
	"github.com/mossy-p/screen-relay/internal/signaling"
	"github.com/mossy-p/screen-relay/internal/stream"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	if cfg.DebugCoords {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Signaling store
	var sessions signaling.Store
	switch cfg.Signaling.Backend {
	case config.BackendRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		logger.Infof("Redis connection established, sessions shared across relays")
		sessions = signaling.NewRedisStore(client, cfg.Signaling.SessionTTL)
	default:
		mem := signaling.NewMemoryStore(cfg.Signaling.SessionTTL)
		if cfg.Signaling.SessionTTL > 0 {
			go signaling.RunSweeper(ctx, mem, cfg.Signaling.SweepInterval)
		}
		sessions = mem
	}

	// Capture process, capture state and input routing
	captureClient := capture.NewClient(cfg.Capture.URL, cfg.Capture.Timeout)
	state := capture.NewState(captureClient)
	transform := capture.HeuristicTransformer{
		OffsetX: cfg.Capture.ClickOffsetX,
		OffsetY: cfg.Capture.ClickOffsetY,
	}
	router := input.NewRouter(captureClient, state, transform)

	// Frame pipeline
	broadcaster := stream.NewBroadcaster(cfg.Stream.ViewerQueueSize)
	var source stream.Source
	if cfg.Stream.FrameSource == config.FrameSourcePipe {
		source = stream.NewPipeSource(cfg.Stream.PipeCommand, cfg.Stream.MaxFrameSize, broadcaster)
	} else {
		source = stream.NewPoller(captureClient, cfg.Stream.PollInterval, broadcaster)
	}
	go func() {
		if err := source.Run(ctx); err != nil {
			logger.Errorf("Frame source stopped: %v", err)
		}
	}()

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()

	// Global CORS middleware (runs before routing)
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	handlers.Register(engine, handlers.Deps{
		Sessions:    sessions,
		Broadcaster: broadcaster,
		Input:       router,
		Capture:     captureClient,
		Windows:     capture.NewWindowLister(cfg.Capture.WindowListTool),
		State:       state,
		Transform:   transform,
		DebugCoords: cfg.DebugCoords,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Infof("Starting screen relay on port %s (frames via %s, sessions in %s)",
			cfg.Port, cfg.Stream.FrameSource, cfg.Signaling.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
		os.Exit(1)
	}
}
