// Package svcmon is the embedding API: build a Monitor from a Config, then
// run single sweeps, the owning loop, or mount its HTTP status handler.
package svcmon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/config"
	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/detector"
	"github.com/loykin/svcmon/internal/history"
	historyfactory "github.com/loykin/svcmon/internal/history/factory"
	"github.com/loykin/svcmon/internal/logger"
	"github.com/loykin/svcmon/internal/manager"
	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/process"
	"github.com/loykin/svcmon/internal/server"
)

type (
	Config        = config.Config
	ServiceConfig = config.ServiceConfig
	Services      = manager.Services
	ServiceSpec   = manager.ServiceSpec
	Outcome       = manager.Outcome
	SweepReport   = manager.SweepReport
	ServiceReport = manager.ServiceReport
	AlertEvent    = alert.Event
	CheckResult   = detector.Result
)

const (
	Running      = manager.Running
	Recovered    = manager.Recovered
	Stopped      = manager.Stopped
	InvalidInput = manager.InvalidInput
)

// ErrSweepInProgress is returned when another sweep holds the sweep lock.
var ErrSweepInProgress = manager.ErrSweepInProgress

// LoadConfig reads a TOML daemon config; see config.Load.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Monitor owns the wiring of one daemon: alert sinks, process control,
// cooldown store, history sinks, sweeper and loop.
type Monitor struct {
	cfg     *Config
	log     *slog.Logger
	ring    *alert.Ring
	checker detector.Checker
	sweeper *manager.Sweeper
	loop    *manager.Loop
	history []history.Sink

	closers []io.Closer
}

// New builds a Monitor. Close must be called when it is no longer needed.
func New(ctx context.Context, cfg *Config) (_ *Monitor, err error) {
	m := &Monitor{cfg: cfg, ring: alert.NewRing(alert.DefaultRingSize)}
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	m.closers = append(m.closers, logCloser)
	m.log = log

	sinks := alert.Multi{alert.LogSink{Logger: log}, m.ring}
	if cfg.Alert.File != "" {
		w := cfg.Log.RotatingFile(cfg.Alert.File)
		m.closers = append(m.closers, w)
		sinks = append(sinks, alert.NewWriterSink(w))
	}
	if cfg.Alert.Syslog {
		sl, err := alert.NewSyslogSink(cfg.Alert.SyslogTag)
		if err != nil {
			log.Warn("syslog unavailable, alerts go to the alert file only", "error", err)
		} else {
			m.closers = append(m.closers, sl)
			sinks = append(sinks, sl)
		}
	}

	lister, err := process.NewLister(cfg.Supervise.Lister)
	if err != nil {
		return nil, err
	}
	environ, err := cfg.Environ()
	if err != nil {
		return nil, err
	}
	ctl := process.NewController(process.Controller{
		Lister: lister,
		Restarter: process.ServiceCommand{
			Template: cfg.Supervise.RestartCommand,
			Timeout:  cfg.Supervise.RestartTimeout,
			Env:      environ,
		},
	})
	m.checker = detector.PIDFileDetector{Lister: ctl.Lister, Logger: log}
	sup := manager.NewSupervisor(m.checker, ctl, sinks, cfg.Policy(), log)

	store, storeCloser, err := cooldown.Open(ctx, cooldown.Options{
		Path:   cfg.Cooldown.Path,
		DSN:    cfg.Cooldown.DSN,
		Format: cfg.Cooldown.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("cooldown store: %w", err)
	}
	m.closers = append(m.closers, storeCloser)

	m.history, err = historyfactory.NewSinksFromDSNs(cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	services, err := cfg.LoadServices()
	if err != nil {
		return nil, err
	}

	m.sweeper = manager.NewSweeper(manager.SweeperOptions{
		Supervisor: sup,
		Store:      store,
		Window:     cfg.Cooldown.Window,
		LockPath:   cfg.Lock.Path,
		Alerts:     sinks,
		History:    m.history,
		Logger:     log,
	})
	m.loop = manager.NewLoop(m.sweeper, services, cfg.Schedule.Interval, log)
	return m, nil
}

func (m *Monitor) Logger() *slog.Logger { return m.log }

// Services returns the service set the next sweep will use.
func (m *Monitor) Services() Services { return m.loop.Services() }

// SetServices replaces the service set from the next sweep on.
func (m *Monitor) SetServices(s Services) { m.loop.SetServices(s) }

// Sweep runs one sweep now.
func (m *Monitor) Sweep(ctx context.Context) (SweepReport, error) {
	return m.sweeper.RunSweep(ctx, m.loop.Services())
}

// Run sweeps on the configured interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error { return m.loop.Run(ctx) }

// Trigger asks a running loop for an immediate sweep.
func (m *Monitor) Trigger() error { return m.loop.Trigger() }

// LastReport returns the most recent completed sweep.
func (m *Monitor) LastReport() (SweepReport, bool) { return m.sweeper.LastReport() }

// Alerts returns recently raised alerts, oldest first.
func (m *Monitor) Alerts() []AlertEvent { return m.ring.Events() }

// Check runs the liveness checker once without recovering anything.
func (m *Monitor) Check(ctx context.Context, processName, pidFile string) CheckResult {
	return m.checker.Check(ctx, processName, pidFile)
}

// Handler returns the gin status API rooted at basePath.
func (m *Monitor) Handler(basePath string) http.Handler {
	return server.NewRouter(server.Options{
		Loop:     m.loop,
		Alerts:   m.ring,
		Checker:  m.checker,
		BasePath: basePath,
	}).Handler()
}

// Close releases files, syslog and database handles, newest first.
func (m *Monitor) Close() {
	historyfactory.CloseAll(m.history)
	m.history = nil
	for i := len(m.closers) - 1; i >= 0; i-- {
		_ = m.closers[i].Close()
	}
	m.closers = nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
