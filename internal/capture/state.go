package capture

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
)

// MetricsFetcher reports the source display's metrics.
type MetricsFetcher interface {
	DisplayMetrics(ctx context.Context) (models.DisplayMetrics, error)
}

// State owns the current capture target and the cached display metrics.
//
// Both live in atomic pointers: each transition swaps one immutable value,
// so readers never see a torn target and concurrent transitions resolve as
// last-writer-wins.
type State struct {
	target  atomic.Pointer[models.CaptureTarget]
	display atomic.Pointer[models.DisplayMetrics]
	fetcher MetricsFetcher
}

// NewState starts in desktop mode with an empty metrics cache.
func NewState(fetcher MetricsFetcher) *State {
	s := &State{fetcher: fetcher}
	s.target.Store(&models.CaptureTarget{Mode: models.CaptureDesktop})
	return s
}

// Current returns the active capture target.
func (s *State) Current() models.CaptureTarget {
	return *s.target.Load()
}

// SwitchToWindow moves to window capture of the given window id.
func (s *State) SwitchToWindow(windowID int) error {
	if windowID <= 0 {
		return fmt.Errorf("invalid window id %d", windowID)
	}
	s.target.Store(&models.CaptureTarget{Mode: models.CaptureWindow, WindowID: windowID})
	return nil
}

// ResetToDesktop moves to full-desktop capture.
func (s *State) ResetToDesktop() {
	s.target.Store(&models.CaptureTarget{Mode: models.CaptureDesktop})
}

// Display returns the cached display metrics, fetching them on first use.
// The first successful fetch fills the cache; a failed fetch falls back to
// DefaultDisplayMetrics without caching, so the next call retries.
func (s *State) Display(ctx context.Context) models.DisplayMetrics {
	if m := s.display.Load(); m != nil {
		return *m
	}
	if s.fetcher == nil {
		return models.DefaultDisplayMetrics
	}

	m, err := s.fetcher.DisplayMetrics(ctx)
	if err != nil {
		logger.Warnf("Could not get display info, using defaults: %v", err)
		return models.DefaultDisplayMetrics
	}
	if !s.display.CompareAndSwap(nil, &m) {
		// Another caller filled the cache first
		return *s.display.Load()
	}
	logger.Infof("Display metrics cached: %dx%d logical, %dx%d physical, scale %.2f",
		m.LogicalWidth, m.LogicalHeight, m.PhysicalWidth, m.PhysicalHeight, m.ScaleFactor)
	return m
}

// CachedDisplay returns the cached metrics without fetching.
func (s *State) CachedDisplay() (models.DisplayMetrics, bool) {
	if m := s.display.Load(); m != nil {
		return *m, true
	}
	return models.DisplayMetrics{}, false
}

// InvalidateDisplay empties the metrics cache; the next Display call refetches.
func (s *State) InvalidateDisplay() {
	s.display.Store(nil)
}

// Context snapshots the target and display metrics for one input event.
func (s *State) Context(ctx context.Context) models.CaptureContext {
	return models.CaptureContext{
		CaptureTarget: s.Current(),
		Display:       s.Display(ctx),
	}
}
