package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the pause between scheduled sweeps.
const DefaultInterval = time.Minute

// Loop owns the sweeper in long-lived mode: it sweeps on a ticker and on
// demand, never overlapping two sweeps.
type Loop struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *slog.Logger
	trigger  chan struct{}

	mu       sync.RWMutex
	services Services
}

func NewLoop(sw *Sweeper, services Services, interval time.Duration, log *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		sweeper:  sw,
		interval: interval,
		log:      log,
		trigger:  make(chan struct{}, 1),
		services: services,
	}
}

// Sweeper returns the sweeper driven by the loop.
func (l *Loop) Sweeper() *Sweeper { return l.sweeper }

// SetServices replaces the service set used from the next sweep on.
func (l *Loop) SetServices(s Services) {
	l.mu.Lock()
	l.services = s
	l.mu.Unlock()
}

// Services returns the current service set.
func (l *Loop) Services() Services {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.services
}

// Trigger requests an immediate sweep. It returns ErrSweepInProgress when a
// sweep is running or one is already queued.
func (l *Loop) Trigger() error {
	if l.sweeper.Busy() {
		return ErrSweepInProgress
	}
	select {
	case l.trigger <- struct{}{}:
		return nil
	default:
		return ErrSweepInProgress
	}
}

// Run sweeps once immediately and then on every tick or trigger until ctx
// is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.sweep(ctx)
		case <-l.trigger:
			l.sweep(ctx)
		}
	}
}

func (l *Loop) sweep(ctx context.Context) {
	_, err := l.sweeper.RunSweep(ctx, l.Services())
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		l.log.Warn("sweep skipped, another sweep holds the lock")
	case errors.Is(err, context.Canceled):
	default:
		l.log.Error("sweep failed", "error", err)
	}
}
