package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mossy-p/screen-relay/internal/logger"
)

const (
	FrameSourceHTTP = "http"
	FrameSourcePipe = "pipe"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port           string   `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	DebugCoords    bool     `yaml:"debug_coords"`

	Capture   CaptureConfig   `yaml:"capture"`
	Stream    StreamConfig    `yaml:"stream"`
	Signaling SignalingConfig `yaml:"signaling"`
	Redis     RedisConfig     `yaml:"redis"`
}

// CaptureConfig points at the native capture process and its helpers
type CaptureConfig struct {
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	WindowListTool []string      `yaml:"window_list_tool"`
	ClickOffsetX   int           `yaml:"click_offset_x"`
	ClickOffsetY   int           `yaml:"click_offset_y"`
}

type StreamConfig struct {
	FrameSource     string        `yaml:"frame_source"` // http or pipe
	PollInterval    time.Duration `yaml:"poll_interval"`
	PipeCommand     []string      `yaml:"pipe_command"`
	MaxFrameSize    int           `yaml:"max_frame_size"`
	ViewerQueueSize int           `yaml:"viewer_queue_size"`
}

type SignalingConfig struct {
	Backend       string        `yaml:"backend"`     // memory or redis
	SessionTTL    time.Duration `yaml:"session_ttl"` // 0 keeps sessions forever
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:           "3030",
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:3030", "http://127.0.0.1:3030"},
		LogLevel:       "info",
		Capture: CaptureConfig{
			URL:     "http://127.0.0.1:8080",
			Timeout: 2 * time.Second,
		},
		Stream: StreamConfig{
			FrameSource:     FrameSourceHTTP,
			PollInterval:    33 * time.Millisecond,
			MaxFrameSize:    8 << 20,
			ViewerQueueSize: 8,
		},
		Signaling: SignalingConfig{
			Backend:       BackendMemory,
			SweepInterval: time.Minute,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var env envReader

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.AllowedOrigins = env.list("ALLOWED_ORIGINS", ",", cfg.AllowedOrigins)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DebugCoords = env.boolean("DEBUG_COORDS", cfg.DebugCoords)

	cfg.Capture.URL = getEnv("CAPTURE_URL", cfg.Capture.URL)
	cfg.Capture.Timeout = env.duration("CAPTURE_TIMEOUT", cfg.Capture.Timeout)
	cfg.Capture.WindowListTool = env.list("WINDOW_LIST_TOOL", "", cfg.Capture.WindowListTool)
	cfg.Capture.ClickOffsetX = env.integer("CLICK_OFFSET_X", cfg.Capture.ClickOffsetX)
	cfg.Capture.ClickOffsetY = env.integer("CLICK_OFFSET_Y", cfg.Capture.ClickOffsetY)

	cfg.Stream.FrameSource = getEnv("FRAME_SOURCE", cfg.Stream.FrameSource)
	cfg.Stream.PollInterval = env.duration("POLL_INTERVAL", cfg.Stream.PollInterval)
	cfg.Stream.PipeCommand = env.list("PIPE_COMMAND", "", cfg.Stream.PipeCommand)
	cfg.Stream.MaxFrameSize = env.integer("MAX_FRAME_SIZE", cfg.Stream.MaxFrameSize)
	cfg.Stream.ViewerQueueSize = env.integer("VIEWER_QUEUE_SIZE", cfg.Stream.ViewerQueueSize)

	cfg.Signaling.Backend = getEnv("SIGNALING_BACKEND", cfg.Signaling.Backend)
	cfg.Signaling.SessionTTL = env.duration("SESSION_TTL", cfg.Signaling.SessionTTL)
	cfg.Signaling.SweepInterval = env.duration("SESSION_SWEEP_INTERVAL", cfg.Signaling.SweepInterval)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = env.integer("REDIS_DB", cfg.Redis.DB)

	return errors.Join(env.errs...)
}

// Validate checks the configuration for values the relay cannot run with
func Validate(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}

	u, err := url.Parse(cfg.Capture.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("capture url must be an absolute http(s) url, got %q", cfg.Capture.URL)
	}
	if cfg.Capture.Timeout <= 0 {
		return fmt.Errorf("capture timeout must be positive")
	}

	switch cfg.Stream.FrameSource {
	case FrameSourceHTTP:
		if cfg.Stream.PollInterval <= 0 {
			return fmt.Errorf("poll interval must be positive")
		}
	case FrameSourcePipe:
		if len(cfg.Stream.PipeCommand) == 0 {
			return fmt.Errorf("pipe frame source requires a pipe command")
		}
	default:
		return fmt.Errorf("unknown frame source %q", cfg.Stream.FrameSource)
	}
	if cfg.Stream.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive")
	}
	if cfg.Stream.ViewerQueueSize <= 0 {
		return fmt.Errorf("viewer queue size must be positive")
	}

	switch cfg.Signaling.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown signaling backend %q", cfg.Signaling.Backend)
	}
	if cfg.Signaling.SessionTTL < 0 {
		return fmt.Errorf("session ttl cannot be negative")
	}
	if cfg.Signaling.SessionTTL > 0 && cfg.Signaling.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive when sessions expire")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed environment values and collects parse errors
type envReader struct {
	errs []error
}

func (r *envReader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func (r *envReader) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

// list splits on sep, or on whitespace when sep is empty
func (r *envReader) list(key, sep string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var parts []string
	if sep == "" {
		parts = strings.Fields(value)
	} else {
		parts = strings.Split(value, sep)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
