package synckit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
)

// BackoffStrategy defines the delay before retrying a failed sync.
type BackoffStrategy interface {
	// NextDelay returns the delay before retry number attempt (0-based).
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt up to MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= eb.Multiplier
	}

	result := time.Duration(float64(eb.InitialDelay) * multiplier)
	if result > eb.MaxDelay || result <= 0 {
		result = eb.MaxDelay
	}
	return result
}

// DefaultBackoff is used by AutoSync when none is configured.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	}
}

// AutoSync runs Coordinator.Sync on an interval. Retryable failures are
// retried with backoff before the next regular tick; other failures wait
// for the next tick. Results and errors reach the coordinator's
// subscribers as usual.
type AutoSync struct {
	coordinator *Coordinator
	interval    time.Duration
	backoff     BackoffStrategy
	timeout     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoSync creates an AutoSync for c. A nil backoff selects
// DefaultBackoff.
func NewAutoSync(c *Coordinator, interval time.Duration, backoff BackoffStrategy) (*AutoSync, error) {
	if c == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive")
	}
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	return &AutoSync{
		coordinator: c,
		interval:    interval,
		backoff:     backoff,
		timeout:     30 * time.Second,
	}, nil
}

// Start begins syncing in the background. The first sync runs immediately.
func (a *AutoSync) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return fmt.Errorf("auto sync is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx, a.done)
	return nil
}

// Stop halts the loop and waits for an in-flight sync to finish.
func (a *AutoSync) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("auto sync is not running")
	}
	cancel()
	<-done
	return nil
}

func (a *AutoSync) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.syncWithRetry(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *AutoSync) syncWithRetry(ctx context.Context) {
	logger := a.coordinator.logger
	for attempt := 0; ; attempt++ {
		syncCtx, cancel := context.WithTimeout(ctx, a.timeout)
		_, err := a.coordinator.Sync(syncCtx)
		cancel()

		if err == nil || ctx.Err() != nil {
			return
		}
		if !syncErrors.IsRetryable(err) {
			logger.WarnContext(ctx, "auto sync failed", slog.String("error", err.Error()))
			return
		}

		delay := a.backoff.NextDelay(attempt)
		if delay >= a.interval {
			logger.WarnContext(ctx, "auto sync failed, waiting for next tick",
				slog.String("error", err.Error()), slog.Int("attempts", attempt+1))
			return
		}
		logger.DebugContext(ctx, "auto sync failed, retrying",
			slog.String("error", err.Error()), slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
