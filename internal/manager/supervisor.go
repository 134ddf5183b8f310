package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/detector"
	"github.com/loykin/svcmon/internal/metrics"
	"github.com/loykin/svcmon/internal/process"
)

// killBeforeRestart names the service whose stale workers must be killed
// before the service manager can restart it.
const killBeforeRestart = "apache2"

// Policy paces the retry loop of a service found down.
type Policy struct {
	// RetryIterations bounds the loop: it runs RetryIterations-1 times.
	RetryIterations int
	// RestartAfter is the first iteration that escalates to a restart.
	// Earlier iterations only re-check.
	RestartAfter int
	// RetryInterval is the pause before every iteration.
	RetryInterval time.Duration
}

// DefaultPolicy re-checks four times, then restarts on every remaining
// iteration, one second apart.
func DefaultPolicy() Policy {
	return Policy{RetryIterations: 10, RestartAfter: 5, RetryInterval: time.Second}
}

// Validate checks that the policy leaves room for at least one restart.
func (p Policy) Validate() error {
	if p.RetryIterations < 2 {
		return fmt.Errorf("retry_iterations must be >= 2, got %d", p.RetryIterations)
	}
	if p.RestartAfter < 1 || p.RestartAfter > p.RetryIterations-1 {
		return fmt.Errorf("restart_after must be in [1, %d], got %d", p.RetryIterations-1, p.RestartAfter)
	}
	if p.RetryInterval < 0 {
		return errors.New("retry_interval must not be negative")
	}
	return nil
}

// Supervisor drives the recovery of one service at a time: check, re-check,
// then kill and restart through the service manager.
type Supervisor struct {
	checker detector.Checker
	ctl     process.Controller
	alerts  alert.Sink
	policy  Policy
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSupervisor wires a supervisor. A nil checker uses a PID file detector
// over the controller's lister; a nil logger logs to slog.Default.
func NewSupervisor(checker detector.Checker, ctl process.Controller, alerts alert.Sink, policy Policy, log *slog.Logger) *Supervisor {
	ctl = process.NewController(ctl)
	if log == nil {
		log = slog.Default()
	}
	if checker == nil {
		checker = detector.PIDFileDetector{Lister: ctl.Lister, Logger: log}
	}
	return &Supervisor{
		checker: checker,
		ctl:     ctl,
		alerts:  alerts,
		policy:  policy,
		log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Supervise checks one service and tries to recover it when it is down.
func (s *Supervisor) Supervise(ctx context.Context, spec ServiceSpec) Outcome {
	out, _ := s.supervise(ctx, spec)
	return out
}

// supervise also returns the PIDs last observed for the process.
func (s *Supervisor) supervise(ctx context.Context, spec ServiceSpec) (Outcome, []string) {
	log := s.log.With("section", spec.Section, "process", spec.ProcessName)
	if spec.ProcessName == "" {
		log.Warn("invalid service definition: empty process name")
		return InvalidInput, nil
	}

	res := s.checker.Check(ctx, spec.ProcessName, spec.PIDFile)
	if res.Running {
		log.Debug("process is running", "pids", res.PIDs)
		return Running, res.PIDs
	}
	log.Info("process is not running, trying to recover", "pids", res.PIDs)

	pids := res.PIDs
	restartFailed := false
	for i := 1; i < s.policy.RetryIterations; i++ {
		if err := s.sleep(ctx, s.policy.RetryInterval); err != nil {
			log.Warn("recovery aborted", "iteration", i, "error", err)
			return Stopped, pids
		}

		if i < s.policy.RestartAfter {
			res = s.checker.Check(ctx, spec.ProcessName, spec.PIDFile)
			pids = res.PIDs
			if res.Running {
				alert.Raise(s.alerts, alert.Alert, spec.ProcessName, "The process detected as running")
				return Recovered, pids
			}
			log.Debug("process still not running", "iteration", i)
			continue
		}

		alert.Raise(s.alerts, alert.Info, spec.ProcessName,
			fmt.Sprintf("The process %s is not running trying recover", spec.ProcessName))

		if spec.ServiceName == killBeforeRestart {
			s.killAll(log, spec.ServiceName, pids)
		}

		if s.restart(ctx, log, spec.ServiceName, i) {
			alert.Raise(s.alerts, alert.Info, spec.ServiceName,
				fmt.Sprintf("The process %s is recovered successfully", spec.ServiceName))
			return Recovered, pids
		}
		restartFailed = true
	}

	if restartFailed {
		alert.Raise(s.alerts, alert.Crit, spec.ProcessName,
			fmt.Sprintf("The process %s recover failed", spec.ProcessName))
		log.Error("restart failed after retries", "iterations", s.policy.RetryIterations-1)
	}
	return Stopped, pids
}

func (s *Supervisor) killAll(log *slog.Logger, service string, pids []string) {
	for _, pid := range pids {
		if err := s.ctl.Killer.Kill(pid); err != nil {
			log.Warn("kill failed", "pid", pid, "error", err)
			continue
		}
		metrics.IncKill(service)
		log.Info("killed stale process", "pid", pid)
	}
}

func (s *Supervisor) restart(ctx context.Context, log *slog.Logger, service string, iteration int) bool {
	st, err := s.ctl.Restarter.Restart(ctx, service)
	ok := err == nil && st.Success()
	metrics.IncRestart(service, ok)
	if ok {
		log.Info("service restarted", "service", service, "iteration", iteration)
		return true
	}
	log.Warn("service restart failed", "service", service, "iteration", iteration,
		"exit_code", st.Code, "output", st.Output, "error", err)
	return false
}
