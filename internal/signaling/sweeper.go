package signaling

import (
	"context"
	"time"

	"github.com/mossy-p/screen-relay/internal/logger"
)

// Sweeper is implemented by stores that expire sessions themselves.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Warnf("Session sweep failed: %v", err)
			}
		}
	}
}
