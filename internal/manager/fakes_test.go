package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/detector"
	"github.com/loykin/svcmon/internal/process"
)

// scriptChecker replays a list of results per process; the last result
// repeats once the script is exhausted.
type scriptChecker struct {
	mu      sync.Mutex
	scripts map[string][]detector.Result
	calls   map[string]int
}

func newScriptChecker() *scriptChecker {
	return &scriptChecker{scripts: map[string][]detector.Result{}, calls: map[string]int{}}
}

func (c *scriptChecker) set(process string, results ...detector.Result) *scriptChecker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[process] = results
	return c
}

func (c *scriptChecker) Check(_ context.Context, processName, _ string) detector.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.calls[processName]
	c.calls[processName] = n + 1
	script := c.scripts[processName]
	if len(script) == 0 {
		return detector.Result{PIDs: []string{}}
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n]
}

func (c *scriptChecker) count(process string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[process]
}

var (
	up   = detector.Result{Running: true, PIDs: []string{"100"}}
	down = detector.Result{PIDs: []string{}}
)

type recordingKiller struct {
	mu   sync.Mutex
	pids []string
}

func (k *recordingKiller) Kill(pid string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pids = append(k.pids, pid)
	return nil
}

// scriptRestarter returns the exit codes in order, repeating the last one.
type scriptRestarter struct {
	mu       sync.Mutex
	codes    []int
	err      error
	services []string
}

func (r *scriptRestarter) Restart(_ context.Context, service string) (process.ExitStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.services)
	r.services = append(r.services, service)
	if r.err != nil {
		return process.ExitStatus{Code: -1}, r.err
	}
	code := 1
	if len(r.codes) > 0 {
		if n >= len(r.codes) {
			n = len(r.codes) - 1
		}
		code = r.codes[n]
	}
	return process.ExitStatus{Code: code}, nil
}

func (r *scriptRestarter) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.services...)
}

type emptyLister struct{}

func (emptyLister) PIDs(context.Context, string) ([]string, error) { return nil, nil }

type harness struct {
	checker   *scriptChecker
	killer    *recordingKiller
	restarter *scriptRestarter
	alerts    *alert.Ring
	sup       *Supervisor
}

func newHarness() *harness {
	h := &harness{
		checker:   newScriptChecker(),
		killer:    &recordingKiller{},
		restarter: &scriptRestarter{},
		alerts:    alert.NewRing(0),
	}
	h.sup = NewSupervisor(h.checker, process.Controller{
		Lister:    emptyLister{},
		Killer:    h.killer,
		Restarter: h.restarter,
	}, h.alerts, DefaultPolicy(), nil)
	h.sup.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return h
}

func (h *harness) alertsOf(sev alert.Severity) []alert.Event {
	var out []alert.Event
	for _, e := range h.alerts.Events() {
		if e.Severity == sev {
			out = append(out, e)
		}
	}
	return out
}

var errRestartTimeout = errors.New("restart timed out")
