package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcmon/internal/alert"
	"github.com/loykin/svcmon/internal/cooldown"
	"github.com/loykin/svcmon/internal/history"
	"github.com/loykin/svcmon/internal/lock"
)

var sweepNow = time.Unix(1_700_000_000, 0)

type memHistory struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memHistory) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type sweepFixture struct {
	*harness
	path    string
	store   cooldown.FileStore
	hist    *memHistory
	sweeper *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	h := newHarness()
	dir := t.TempDir()
	f := &sweepFixture{
		harness: h,
		path:    filepath.Join(dir, "unmonit_psList.txt"),
		hist:    &memHistory{},
	}
	f.store = cooldown.FileStore{Path: f.path}
	f.sweeper = NewSweeper(SweeperOptions{
		Supervisor: h.sup,
		Store:      f.store,
		LockPath:   filepath.Join(dir, "svcmon.lock"),
		Alerts:     h.alerts,
		History:    []history.Sink{f.hist},
	})
	f.sweeper.now = func() time.Time { return sweepNow }
	return f
}

func (f *sweepFixture) record(t *testing.T) (string, bool) {
	t.Helper()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false
	}
	require.NoError(t, err)
	return string(b), true
}

func (f *sweepFixture) seed(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(content), 0o644))
}

func fooServices() Services {
	return Services{"foo": {ProcessName: "foo", ServiceName: "foo-svc", PIDFile: "/run/foo.pid"}}
}

func TestRunSweep_EmptyServicesIsNoop(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1")

	rep, err := f.sweeper.RunSweep(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Services)
	got, ok := f.record(t)
	assert.True(t, ok)
	assert.Equal(t, "foo:1", got)
	_, ok = f.sweeper.LastReport()
	assert.False(t, ok)
}

func TestRunSweep_UnencodableNameDoesNotLoseOthers(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", down)
	f.checker.set("bad:name", down)
	services := fooServices()
	services["bad"] = ServiceSpec{Section: "bad", ProcessName: "bad:name", ServiceName: "bad-svc", PIDFile: "/run/bad.pid"}

	rep, err := f.sweeper.RunSweep(context.Background(), services)
	require.NoError(t, err)
	assert.Equal(t, cooldown.Entries{"foo": sweepNow.Unix()}, rep.Cooldown)
	got, ok := f.record(t)
	require.True(t, ok)
	assert.Equal(t, "foo:1700000000", got)
	_, ok = f.sweeper.LastReport()
	assert.True(t, ok)
}

func TestRunSweep_RunningTwiceLeavesNoRecord(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", up)

	for i := 0; i < 2; i++ {
		rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
		require.NoError(t, err)
		require.Len(t, rep.Services, 1)
		assert.Equal(t, Running, rep.Services[0].Outcome)
		assert.Empty(t, rep.Down())
		_, ok := f.record(t)
		assert.False(t, ok, "no cooldown record expected after sweep %d", i+1)
	}
}

func TestRunSweep_RestartSucceedsNoEntry(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", down)
	f.restarter.codes = []int{0}

	rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	assert.Equal(t, Recovered, rep.Services[0].Outcome)
	assert.Equal(t, []string{"foo-svc"}, f.restarter.calls())
	_, ok := f.record(t)
	assert.False(t, ok)
}

func TestRunSweep_RestartFailsPersistsNow(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", down)
	f.restarter.codes = []int{1}

	rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	assert.Equal(t, Stopped, rep.Services[0].Outcome)
	assert.Equal(t, []string{"foo"}, rep.Down())
	assert.Len(t, f.alertsOf(alert.Crit), 1)

	got, ok := f.record(t)
	require.True(t, ok)
	assert.Equal(t, "foo:1700000000", got)
	assert.Equal(t, cooldown.Entries{"foo": sweepNow.Unix()}, rep.Cooldown)
}

func TestRunSweep_YoungEntryIsSkipped(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1699999400") // ten minutes before the sweep

	rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	assert.Zero(t, f.checker.count("foo"), "suppressed service must not be checked")
	require.Len(t, rep.Services, 1)
	assert.True(t, rep.Services[0].Suppressed)

	got, ok := f.record(t)
	require.True(t, ok)
	assert.Equal(t, "foo:1699999400", got)

	alerts := f.alertsOf(alert.Alert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "[ALERT] The foo get monitor after 30 minutes", alerts[0].Line())

	require.Len(t, f.hist.events, 1)
	assert.Equal(t, history.EventSuppressed, f.hist.events[0].Type)
}

func TestRunSweep_ElapsedEntryIsEvaluated(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1699998200") // exactly thirty minutes before
	f.checker.set("foo", up)

	rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	assert.Equal(t, 1, f.checker.count("foo"))
	assert.Equal(t, Running, rep.Services[0].Outcome)
	_, ok := f.record(t)
	assert.False(t, ok, "recovered process must fall out of the record")
}

func TestRunSweep_ElapsedEntryStillDownIsRefreshed(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1")
	f.checker.set("foo", down)

	_, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	got, _ := f.record(t)
	assert.Equal(t, "foo:1700000000", got)
}

func TestRunSweep_SkippedEntrySurvivesNextToDown(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1699999400")
	f.checker.set("bar", down)
	services := Services{
		"foo": {ProcessName: "foo", ServiceName: "foo-svc", PIDFile: "/run/foo.pid"},
		"bar": {ProcessName: "bar", ServiceName: "bar-svc", PIDFile: "/run/bar.pid"},
	}

	_, err := f.sweeper.RunSweep(context.Background(), services)
	require.NoError(t, err)
	got, _ := f.record(t)
	assert.Equal(t, "bar:1700000000,foo:1699999400", got)
}

func TestRunSweep_SkippedEntrySurvivesNextToRunning(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1699999400")
	f.checker.set("bar", up)
	services := Services{
		"foo": {ProcessName: "foo", ServiceName: "foo-svc"},
		"bar": {ProcessName: "bar", ServiceName: "bar-svc"},
	}

	_, err := f.sweeper.RunSweep(context.Background(), services)
	require.NoError(t, err)
	got, ok := f.record(t)
	require.True(t, ok)
	assert.Equal(t, "foo:1699999400", got)
}

func TestRunSweep_StaleEntryForUnknownProcessDropped(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "gone:1699999400")
	f.checker.set("foo", up)

	_, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	_, ok := f.record(t)
	assert.False(t, ok)
}

func TestRunSweep_CorruptRecordTreatedAsEmpty(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "this is not a record")
	f.checker.set("foo", up)

	rep, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	assert.Equal(t, Running, rep.Services[0].Outcome)
	_, ok := f.record(t)
	assert.False(t, ok)
}

func TestRunSweep_InvalidServiceDoesNotStopOthers(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", up)
	services := Services{
		"broken": {ServiceName: "x"},
		"foo":    {ProcessName: "foo", ServiceName: "foo-svc"},
	}

	rep, err := f.sweeper.RunSweep(context.Background(), services)
	require.NoError(t, err)
	require.Len(t, rep.Services, 2)
	assert.Equal(t, InvalidInput, rep.Services[0].Outcome)
	assert.Equal(t, "broken", rep.Services[0].Section)
	assert.Equal(t, Running, rep.Services[1].Outcome)
	_, ok := f.record(t)
	assert.False(t, ok)
}

func TestRunSweep_LockHeldElsewhere(t *testing.T) {
	f := newSweepFixture(t)
	held, err := lock.Acquire(f.sweeper.lockPath)
	require.NoError(t, err)
	defer held.Unlock()

	_, err = f.sweeper.RunSweep(context.Background(), fooServices())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.ErrorIs(t, err, lock.ErrLockedElsewhere)
	assert.Zero(t, f.checker.count("foo"))
}

func TestRunSweep_CancelledLeavesRecord(t *testing.T) {
	f := newSweepFixture(t)
	f.seed(t, "foo:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sweeper.RunSweep(ctx, fooServices())
	assert.ErrorIs(t, err, context.Canceled)
	got, _ := f.record(t)
	assert.Equal(t, "foo:1", got)
}

func TestRunSweep_HistoryAndReport(t *testing.T) {
	f := newSweepFixture(t)
	f.checker.set("foo", up)

	_, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)

	require.Len(t, f.hist.events, 1)
	e := f.hist.events[0]
	assert.Equal(t, history.EventSupervised, e.Type)
	assert.Equal(t, "foo", e.Process)
	assert.Equal(t, "foo-svc", e.Service)
	assert.Equal(t, "running", e.Outcome)
	assert.Equal(t, []string{"100"}, e.PIDs)

	rep, ok := f.sweeper.LastReport()
	require.True(t, ok)
	assert.Equal(t, sweepNow, rep.StartedAt)
	assert.False(t, f.sweeper.Busy())
}

func TestRunSweep_JSONCodecRecord(t *testing.T) {
	f := newSweepFixture(t)
	f.sweeper.store = cooldown.FileStore{Path: f.path, Codec: cooldown.JSONCodec{}}
	f.checker.set("foo", down)

	_, err := f.sweeper.RunSweep(context.Background(), fooServices())
	require.NoError(t, err)
	got, _ := f.record(t)
	assert.JSONEq(t, `{"version":1,"entries":{"foo":1700000000}}`, got)
}
