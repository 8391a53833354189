package workers

import (
	"context"
	"sync"
	"time"

	"habitTrackerAPI/internal/logger"
)

const DefaultRefreshInterval = 30 * time.Minute

// RefreshFunc performs one full refresh. Errors are logged by the scheduler
// and never stop it.
type RefreshFunc func(ctx context.Context) error

// RefreshScheduler runs a refresh immediately on Start and then at a fixed
// interval until Stop or until the Start context ends.
type RefreshScheduler struct {
	interval time.Duration
	refresh  RefreshFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	runs     int
	failures int
	lastErr  error
}

func NewRefreshScheduler(interval time.Duration, refresh RefreshFunc) *RefreshScheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RefreshScheduler{interval: interval, refresh: refresh}
}

// Start activates the scheduler. It reports false when already active.
func (s *RefreshScheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, done)
	logger.Debug("Refresh: scheduler started", "interval", s.interval)
	return true
}

// Stop deactivates the scheduler and waits for the loop to exit. Calling it
// while inactive is a no-op. It must not be called from the RefreshFunc.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("Refresh: scheduler stopped")
}

func (s *RefreshScheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Runs returns how many refreshes ran and how many of them failed.
func (s *RefreshScheduler) Runs() (runs, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.failures
}

func (s *RefreshScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *RefreshScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.detach(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *RefreshScheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := s.refresh(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		logger.Warn("Refresh: scheduled refresh failed", "error", err)
	}
}

// detach clears the active state when the loop ends on its own, e.g. when
// the Start context is cancelled.
func (s *RefreshScheduler) detach(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
}
