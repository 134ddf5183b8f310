package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/history"
	"github.com/loykin/svcmon/internal/lock"
	"github.com/loykin/svcmon/internal/metrics"
)

// ErrSweepInProgress is returned when another sweep holds the sweep lock,
// in this process or elsewhere.
var ErrSweepInProgress = errors.New("sweep already in progress")

// ServiceReport describes what one sweep did with one service.
type ServiceReport struct {
	Section    string   `json:"section"`
	Process    string   `json:"process"`
	Service    string   `json:"service"`
	Outcome    Outcome  `json:"outcome"`
	Suppressed bool     `json:"suppressed"`
	PIDs       []string `json:"pids,omitempty"`
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Services  []ServiceReport  `json:"services"`
	Cooldown  cooldown.Entries `json:"cooldown"`
}

// Down returns the processes that ended the sweep not running.
func (r SweepReport) Down() []string {
	var out []string
	for _, s := range r.Services {
		if !s.Suppressed && !s.Outcome.Up() && s.Process != "" {
			out = append(out, s.Process)
		}
	}
	return out
}

// SweeperOptions configures a Sweeper. Supervisor and Store are required.
type SweeperOptions struct {
	Supervisor *Supervisor
	Store      cooldown.Store
	// Window is the cooldown length; zero means cooldown.DefaultWindow.
	Window time.Duration
	// LockPath, when set, guards sweeps across processes with a flock.
	LockPath string
	Alerts   alert.Sink
	History  []history.Sink
	Logger   *slog.Logger
}

// Sweeper runs sweeps: one pass over every service, consulting and then
// rewriting the cooldown record.
type Sweeper struct {
	sup      *Supervisor
	store    cooldown.Store
	window   time.Duration
	lockPath string
	alerts   alert.Sink
	history  []history.Sink
	log      *slog.Logger
	now      func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *SweepReport
}

func NewSweeper(o SweeperOptions) *Sweeper {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	window := o.Window
	if window <= 0 {
		window = cooldown.DefaultWindow
	}
	return &Sweeper{
		sup:      o.Supervisor,
		store:    o.Store,
		window:   window,
		lockPath: o.LockPath,
		alerts:   o.Alerts,
		history:  o.History,
		log:      log,
		now:      time.Now,
	}
}

// Window returns the cooldown window in effect.
func (s *Sweeper) Window() time.Duration { return s.window }

// Store returns the cooldown store the sweeper reads and writes.
func (s *Sweeper) Store() cooldown.Store { return s.store }

// LastReport returns the report of the most recent completed sweep.
func (s *Sweeper) LastReport() (SweepReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return SweepReport{}, false
	}
	return *s.last, true
}

// Busy reports whether a sweep is currently running in this process.
func (s *Sweeper) Busy() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// RunSweep evaluates every service once. Failures of individual services
// never abort the sweep; only a held lock, context cancellation or a failed
// save produce an error.
func (s *Sweeper) RunSweep(ctx context.Context, services Services) (SweepReport, error) {
	if len(services) == 0 {
		s.log.Warn("invalid input: no services to monitor")
		metrics.IncSweep("empty")
		return SweepReport{}, nil
	}

	if !s.running.TryLock() {
		metrics.IncSweep("locked")
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	if s.lockPath != "" {
		fl, err := lock.Acquire(s.lockPath)
		if err != nil {
			metrics.IncSweep("locked")
			if errors.Is(err, lock.ErrLockedElsewhere) {
				return SweepReport{}, fmt.Errorf("%w: %w", ErrSweepInProgress, err)
			}
			return SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := fl.Unlock(); err != nil {
				s.log.Warn("release sweep lock", "error", err)
			}
		}()
	}

	start := time.Now()
	entries, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("cooldown record unreadable, treating as empty", "error", err)
		entries = cooldown.Entries{}
	}

	now := s.now()
	report := SweepReport{StartedAt: now}
	next := cooldown.Entries{}

	for _, spec := range services.Sorted() {
		if err := ctx.Err(); err != nil {
			s.log.Warn("sweep cancelled, cooldown record left unchanged", "error", err)
			metrics.IncSweep("cancelled")
			return report, err
		}

		name := spec.ProcessName
		if last, ok := entries[name]; ok && name != "" && !cooldown.ShouldEvaluate(now, last, s.window) {
			s.suppress(ctx, spec, now, last)
			next[name] = last
			report.Services = append(report.Services, ServiceReport{
				Section: spec.Section, Process: name, Service: spec.ServiceName, Suppressed: true,
			})
			continue
		}

		out, pids := s.sup.supervise(ctx, spec)
		metrics.IncOutcome(name, out.String())
		history.SendAll(ctx, s.log, s.history, history.Event{
			Type:       history.EventSupervised,
			OccurredAt: s.now().UTC(),
			Process:    name,
			Service:    spec.ServiceName,
			Outcome:    out.String(),
			PIDs:       pids,
		})
		report.Services = append(report.Services, ServiceReport{
			Section: spec.Section, Process: name, Service: spec.ServiceName, Outcome: out, PIDs: pids,
		})
		if !out.Up() && name != "" {
			s.log.Info("service is not running, suppressing", "process", name, "outcome", out.String())
			next[name] = now.Unix()
		}
	}

	if err := ctx.Err(); err != nil {
		s.log.Warn("sweep cancelled, cooldown record left unchanged", "error", err)
		metrics.IncSweep("cancelled")
		return report, err
	}

	for _, name := range cooldown.Encodable(s.store, next) {
		s.log.Error("process name cannot be stored in the cooldown record, dropping it", "process", name)
	}
	if err := s.store.Save(ctx, next); err != nil {
		metrics.IncSweep("save_failed")
		return report, fmt.Errorf("save cooldown record: %w", err)
	}
	report.Cooldown = next
	report.Duration = time.Since(start)

	metrics.SetSuppressedProcesses(len(next))
	metrics.IncSweep("completed")
	metrics.ObserveSweepDuration(report.Duration.Seconds())
	s.log.Info("sweep completed", "services", len(report.Services), "suppressed", len(next), "duration", report.Duration)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report, nil
}

func (s *Sweeper) suppress(ctx context.Context, spec ServiceSpec, now time.Time, last int64) {
	name := spec.ProcessName
	alert.Raise(s.alerts, alert.Alert, "",
		fmt.Sprintf("The %s get monitor after %d minutes", name, int(s.window.Minutes())))
	s.log.Info("process suppressed by cooldown", "process", name,
		"remaining", cooldown.Remaining(now, last, s.window).Round(time.Second))
	metrics.IncSuppressed(name)
	history.SendAll(ctx, s.log, s.history, history.Event{
		Type:       history.EventSuppressed,
		OccurredAt: now.UTC(),
		Process:    name,
		Service:    spec.ServiceName,
		Outcome:    "suppressed",
	})
}
