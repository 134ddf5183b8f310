package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/detector"
)

var fooSpec = ServiceSpec{Section: "foo", ProcessName: "foo", ServiceName: "foo-svc", PIDFile: "/run/foo.pid"}

func TestSupervise_InvalidInput(t *testing.T) {
	h := newHarness()
	out := h.sup.Supervise(context.Background(), ServiceSpec{ServiceName: "x"})
	assert.Equal(t, InvalidInput, out)
	assert.Zero(t, h.checker.count(""))
	assert.Empty(t, h.restarter.calls())
	assert.Empty(t, h.alerts.Events())
}

func TestSupervise_RunningFirstCheck(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", up)

	assert.Equal(t, Running, h.sup.Supervise(context.Background(), fooSpec))
	assert.Equal(t, 1, h.checker.count("foo"))
	assert.Empty(t, h.restarter.calls())
	assert.Empty(t, h.alerts.Events())
}

func TestSupervise_RecoversOnRecheck(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down, down, down, up)

	out := h.sup.Supervise(context.Background(), fooSpec)
	assert.Equal(t, Recovered, out)
	assert.True(t, out.Up())
	assert.Equal(t, 4, h.checker.count("foo"))
	assert.Empty(t, h.restarter.calls(), "re-check iterations must not restart")

	got := h.alertsOf(alert.Alert)
	require.Len(t, got, 1)
	assert.Equal(t, "foo", got[0].Process)
	assert.Equal(t, "The process detected as running", got[0].Message)
}

func TestSupervise_RestartOnFifthIterationSucceeds(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down)
	h.restarter.codes = []int{0}

	out := h.sup.Supervise(context.Background(), fooSpec)
	assert.Equal(t, Recovered, out)
	// initial check plus four re-checks, then the restart
	assert.Equal(t, 5, h.checker.count("foo"))
	assert.Equal(t, []string{"foo-svc"}, h.restarter.calls())

	infos := h.alertsOf(alert.Info)
	require.Len(t, infos, 2)
	assert.Equal(t, "The process foo is not running trying recover", infos[0].Message)
	assert.Equal(t, "foo-svc", infos[1].Process)
	assert.Equal(t, "The process foo-svc is recovered successfully", infos[1].Message)
	assert.Empty(t, h.alertsOf(alert.Crit))
}

func TestSupervise_RestartAlwaysFails(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down)
	h.restarter.codes = []int{1}

	out := h.sup.Supervise(context.Background(), fooSpec)
	assert.Equal(t, Stopped, out)
	assert.False(t, out.Up())
	// escalation repeats on iterations 5 through 9
	assert.Len(t, h.restarter.calls(), 5)
	assert.Len(t, h.alertsOf(alert.Info), 5)

	crit := h.alertsOf(alert.Crit)
	require.Len(t, crit, 1)
	assert.Equal(t, "foo", crit[0].Process)
	assert.Equal(t, "The process foo recover failed", crit[0].Message)
	assert.Equal(t, "[CRIT] [foo] The process foo recover failed", crit[0].Line())
}

func TestSupervise_RestartErrorCountsAsFailure(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down)
	h.restarter.err = errRestartTimeout

	assert.Equal(t, Stopped, h.sup.Supervise(context.Background(), fooSpec))
	assert.Len(t, h.restarter.calls(), 5)
	assert.Len(t, h.alertsOf(alert.Crit), 1)
}

func TestSupervise_RestartSucceedsLater(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down)
	h.restarter.codes = []int{1, 1, 0}

	assert.Equal(t, Recovered, h.sup.Supervise(context.Background(), fooSpec))
	assert.Len(t, h.restarter.calls(), 3)
	assert.Empty(t, h.alertsOf(alert.Crit))
}

func TestSupervise_KillsOnlyForApache2(t *testing.T) {
	stale := detector.Result{PIDs: []string{"11", "12"}}
	cases := []struct {
		service string
		kills   int
	}{
		{"apache2", 2},
		{"Apache2", 0},
		{"apache2 ", 0},
		{"apache", 0},
		{"httpd", 0},
		{"", 0},
	}
	for _, tc := range cases {
		t.Run(tc.service, func(t *testing.T) {
			h := newHarness()
			h.checker.set("httpd", stale)
			h.restarter.codes = []int{0}

			out := h.sup.Supervise(context.Background(), ServiceSpec{ProcessName: "httpd", ServiceName: tc.service, PIDFile: "/run/httpd.pid"})
			assert.Equal(t, Recovered, out)
			assert.Len(t, h.killer.pids, tc.kills)
			if tc.kills > 0 {
				assert.Equal(t, []string{"11", "12"}, h.killer.pids)
			}
		})
	}
}

func TestSupervise_Apache2KillRepeatsEachEscalation(t *testing.T) {
	h := newHarness()
	h.checker.set("apache2", detector.Result{PIDs: []string{"7"}})
	h.restarter.codes = []int{1}

	out := h.sup.Supervise(context.Background(), ServiceSpec{ProcessName: "apache2", ServiceName: "apache2", PIDFile: "/run/apache2.pid"})
	assert.Equal(t, Stopped, out)
	assert.Equal(t, []string{"7", "7", "7", "7", "7"}, h.killer.pids)
}

func TestSupervise_CancelDuringPause(t *testing.T) {
	h := newHarness()
	h.checker.set("foo", down)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Stopped, h.sup.Supervise(ctx, fooSpec))
	assert.Empty(t, h.restarter.calls())
	assert.Empty(t, h.alertsOf(alert.Crit), "shutdown must not raise a critical alert")
}

func TestSupervise_RealPauseHonoursContext(t *testing.T) {
	h := newHarness()
	h.sup.sleep = sleepCtx
	h.sup.policy.RetryInterval = time.Hour
	h.checker.set("foo", down)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.Equal(t, Stopped, h.sup.Supervise(ctx, fooSpec))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{RetryIterations: 1, RestartAfter: 1}.Validate())
	assert.Error(t, Policy{RetryIterations: 10, RestartAfter: 0}.Validate())
	assert.Error(t, Policy{RetryIterations: 10, RestartAfter: 10}.Validate())
	assert.NoError(t, Policy{RetryIterations: 10, RestartAfter: 9}.Validate())
	assert.Error(t, Policy{RetryIterations: 3, RestartAfter: 1, RetryInterval: -time.Second}.Validate())
}

func TestOutcome(t *testing.T) {
	assert.True(t, Running.Up())
	assert.True(t, Recovered.Up())
	assert.False(t, Stopped.Up())
	assert.False(t, InvalidInput.Up())
	assert.Equal(t, "invalid_input", InvalidInput.String())
	b, err := Recovered.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(b))
}
