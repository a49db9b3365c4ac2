package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bfbechlin/appwrite-ctl/internal/executor"
	"github.com/bfbechlin/appwrite-ctl/internal/ledger"
	"github.com/bfbechlin/appwrite-ctl/internal/readiness"
	"github.com/bfbechlin/appwrite-ctl/internal/runner"
	"github.com/bfbechlin/appwrite-ctl/internal/version"
	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/bfbechlin/appwrite-ctl/pkg/lock"
	"github.com/bfbechlin/appwrite-ctl/pkg/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotWithTableT = `{
  "tablesDB": [{"$id": "main", "name": "Main", "enabled": true}],
  "tables": [{"$id": "T", "databaseId": "main", "name": "T", "columns": [{"key": "title", "type": "string"}]}]
}`

// recorder keeps the order of every side effect of a run.
type recorder struct {
	events []string
}

func (r *recorder) add(e string) {
	r.events = append(r.events, e)
}

type fakeSync struct {
	rec    *recorder
	pushed []string
	err    error
}

func (f *fakeSync) Push(_ context.Context, snapshotPath string) error {
	f.rec.add("push " + filepath.Base(filepath.Dir(snapshotPath)))
	f.pushed = append(f.pushed, snapshotPath)
	return f.err
}

func (f *fakeSync) Pull(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

// pendingThenAvailable reports the column as processing for the first n polls.
type pendingThenAvailable struct {
	rec   *recorder
	n     int
	polls int
}

func (p *pendingThenAvailable) ListColumns(_ context.Context, databaseID, tableID string) ([]appwrite.Column, error) {
	p.polls++
	p.rec.add("poll " + databaseID + "/" + tableID)

	status := appwrite.ColumnAvailable
	if p.polls <= p.n {
		status = appwrite.ColumnProcessing
	}

	return []appwrite.Column{{Key: "title", Type: "string", Status: status}}, nil
}

// countingTracker wraps a memory ledger and counts mutations.
type countingTracker struct {
	*ledger.Memory
	ensureCalls int
	recordCalls int
}

func (c *countingTracker) EnsureStore(ctx context.Context) error {
	c.ensureCalls++
	return c.Memory.EnsureStore(ctx)
}

func (c *countingTracker) RecordApplied(ctx context.Context, id, label string) error {
	c.recordCalls++
	return c.Memory.RecordApplied(ctx, id, label)
}

type fixture struct {
	root     string
	registry *migration.Registry
	rec      *recorder
	sync     *fakeSync
	lister   *pendingThenAvailable
	sleeps   int
	tracker  *countingTracker
	metrics  *metric.Run
	locker   lock.Locker

	// onSleep runs on every readiness sleep when set.
	onSleep func()
}

func newFixture(t *testing.T) *fixture {
	rec := &recorder{}
	return &fixture{
		root:     t.TempDir(),
		registry: migration.NewRegistry(),
		rec:      rec,
		sync:     &fakeSync{rec: rec},
		lister:   &pendingThenAvailable{rec: rec},
		tracker:  &countingTracker{Memory: ledger.NewMemory()},
		metrics:  metric.NewRun(),
	}
}

// version creates the directory of label and registers a script that records its execution.
func (f *fixture) version(t *testing.T, label, id, snapshotJSON string, up migration.Func) {
	t.Helper()

	dir := filepath.Join(f.root, label)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if snapshotJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "appwrite.config.json"), []byte(snapshotJSON), 0o600))
	}

	if up == nil {
		up = func(context.Context, *migration.Context) error { return nil }
	}

	require.NoError(t, f.registry.Register(label, migration.Migration{
		ID: id,
		Up: func(ctx context.Context, mc *migration.Context) error {
			f.rec.add("up " + mc.Version)
			return up(ctx, mc)
		},
	}))
}

func (f *fixture) runner(t *testing.T) *runner.Runner {
	t.Helper()

	store, err := version.New(version.Config{Dir: f.root, Scripts: f.registry})
	require.NoError(t, err)

	loop, err := readiness.New(readiness.Config{
		Columns:     f.lister,
		MaxAttempts: 5,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			f.sleeps++
			if f.onSleep != nil {
				f.onSleep()
			}
			return ctx.Err()
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	exec, err := executor.New(executor.Config{Source: f.registry})
	require.NoError(t, err)

	r, err := runner.New(runner.Config{
		Versions: store,
		Tracker:  f.tracker,
		Sync:     f.sync,
		Waiter:   loop,
		Executor: exec,
		Locker:   f.locker,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) appliedIDs(t *testing.T) map[string]struct{} {
	ids, err := f.tracker.LoadAppliedIDs(context.Background())
	require.NoError(t, err)
	return ids
}

func counterValue(t *testing.T, m *metric.Run, name string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	return 0
}

func TestNew(t *testing.T) {
	_, err := runner.New(runner.Config{})
	assert.Error(t, err)
}

func TestRunner_Run_FreshProject(t *testing.T) {
	f := newFixture(t)
	f.lister.n = 2
	f.version(t, "v1", "A", "", nil)
	f.version(t, "v2", "B", snapshotWithTableT, nil)

	result, err := f.runner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"up v1",
		"push v2",
		"poll main/T",
		"poll main/T",
		"poll main/T",
		"up v2",
	}, f.rec.events)
	assert.Equal(t, 2, f.sleeps)

	assert.Equal(t, map[string]struct{}{"A": {}, "B": {}}, f.appliedIDs(t))
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Versions, 2)
	assert.Equal(t, runner.Applied, result.Versions[0].State)
	assert.Empty(t, result.Versions[0].Readiness.Results)
	assert.Equal(t, readiness.Converged, result.Versions[1].Readiness.Results[0].Outcome)

	assert.Equal(t, float64(2), counterValue(t, f.metrics, "appwrite_ctl_migrations_applied_total"))
}

func TestRunner_Run_SkipsApplied(t *testing.T) {
	f := newFixture(t)
	f.tracker.Memory = ledger.NewMemory(ledger.Record{ID: "A", Version: "v1"})
	f.version(t, "v1", "A", snapshotWithTableT, nil)
	f.version(t, "v2", "B", "", nil)

	result, err := f.runner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"up v2"}, f.rec.events)
	assert.Empty(t, f.sync.pushed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, runner.Skipped, result.Versions[0].State)
	assert.Equal(t, map[string]struct{}{"A": {}, "B": {}}, f.appliedIDs(t))
}

func TestRunner_Run_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v1", "A", snapshotWithTableT, nil)
	f.version(t, "v2", "B", snapshotWithTableT, nil)

	r := f.runner(t)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.sync.pushed, 2)

	f.rec.events = nil
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.rec.events, "no push, poll or up on the second run")
	assert.Len(t, f.sync.pushed, 2)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 2, f.tracker.recordCalls)
}

func TestRunner_Run_AscendingWithGaps(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v10", "C", "", nil)
	f.version(t, "v2", "B", "", nil)
	f.version(t, "v1", "A", "", nil)

	_, err := f.runner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"up v1", "up v2", "up v10"}, f.rec.events)
}

func TestRunner_Run_ExecutionFailure(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v1", "A", "", nil)
	f.version(t, "v2", "B", "", func(context.Context, *migration.Context) error {
		return errors.New("boom")
	})
	f.version(t, "v3", "C", "", nil)

	result, err := f.runner(t).Run(context.Background())
	require.Error(t, err)

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, "v2", abortErr.Label)
	assert.Equal(t, "B", abortErr.ID)
	assert.Equal(t, runner.Executing, abortErr.State)
	assert.ErrorIs(t, err, executor.ErrExecution)
	assert.Contains(t, err.Error(), "v2")
	assert.Contains(t, err.Error(), `"B"`)

	assert.Equal(t, []string{"up v1", "up v2"}, f.rec.events, "v3 never attempted")
	assert.Equal(t, map[string]struct{}{"A": {}}, f.appliedIDs(t))
	require.Len(t, result.Versions, 2)
	assert.Equal(t, runner.Aborted, result.Versions[1].State)
	assert.Equal(t, float64(1), counterValue(t, f.metrics, "appwrite_ctl_migrations_aborted_total"))
}

func TestRunner_Run_PanicInUp(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v1", "A", "", func(context.Context, *migration.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})

	_, err := f.runner(t).Run(context.Background())
	assert.ErrorIs(t, err, executor.ErrExecution)
	assert.Empty(t, f.appliedIDs(t))
}

func TestRunner_Run_ReadinessTimeoutStillExecutes(t *testing.T) {
	f := newFixture(t)
	f.lister.n = 1000
	f.version(t, "v1", "A", snapshotWithTableT, nil)

	result, err := f.runner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, f.lister.polls)
	assert.Equal(t, 4, f.sleeps)
	assert.Equal(t, "up v1", f.rec.events[len(f.rec.events)-1])
	assert.Equal(t, readiness.Abandoned, result.Versions[0].Readiness.Results[0].Outcome)
	assert.Contains(t, f.appliedIDs(t), "A")
}

func TestRunner_Run_PushFailure(t *testing.T) {
	f := newFixture(t)
	f.sync.err = errors.New("appwrite push failed")
	f.version(t, "v1", "A", snapshotWithTableT, nil)

	_, err := f.runner(t).Run(context.Background())

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, runner.SchemaSyncing, abortErr.State)
	assert.Equal(t, []string{"push v1"}, f.rec.events)
	assert.Empty(t, f.appliedIDs(t))
}

func TestRunner_Run_InvalidSnapshot(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v1", "A", `{"tables": [`, nil)

	_, err := f.runner(t).Run(context.Background())

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, runner.SchemaSyncing, abortErr.State)
	assert.Empty(t, f.sync.pushed)
}

func TestRunner_Run_RecordFailure(t *testing.T) {
	f := newFixture(t)
	f.tracker.FailRecord = errors.New("write timeout")
	f.version(t, "v1", "A", "", nil)
	f.version(t, "v2", "B", "", nil)

	_, err := f.runner(t).Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrRecord)

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, runner.Recording, abortErr.State)
	assert.Equal(t, []string{"up v1"}, f.rec.events)
	assert.Equal(t, 1, f.tracker.recordCalls, "record is never retried")
}

func TestRunner_Run_DiscoveryErrorsBeforeRemote(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		f := newFixture(t)
		f.root = filepath.Join(f.root, "missing")

		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, version.ErrDiscovery)
		assert.Equal(t, 0, f.tracker.ensureCalls)
	})

	t.Run("directory without script", func(t *testing.T) {
		f := newFixture(t)
		f.version(t, "v1", "A", "", nil)
		require.NoError(t, os.MkdirAll(filepath.Join(f.root, "v2"), 0o755))

		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, version.ErrMalformedVersion)
		assert.Equal(t, 0, f.tracker.ensureCalls)
		assert.Empty(t, f.rec.events)
	})

	t.Run("script without id", func(t *testing.T) {
		f := newFixture(t)
		f.version(t, "v1", "A", "", nil)
		require.NoError(t, os.MkdirAll(filepath.Join(f.root, "v2"), 0o755))
		require.NoError(t, f.registry.Register("v2", migration.Migration{Up: func(context.Context, *migration.Context) error { return nil }}))

		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, executor.ErrLoad)
		assert.Equal(t, 0, f.tracker.ensureCalls)
		assert.Empty(t, f.rec.events, "v1 is not applied when a later script cannot load")
	})
}

func TestRunner_Run_DuplicateID(t *testing.T) {
	f := newFixture(t)
	f.version(t, "v1", "A", "", nil)
	f.version(t, "v2", "A", "", nil)

	result, err := f.runner(t).Run(context.Background())
	assert.ErrorIs(t, err, version.ErrMalformedVersion)

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, runner.Discovered, abortErr.State)
	assert.Equal(t, "v2", abortErr.Label)
	assert.Contains(t, err.Error(), `"A" is already used by v1`)

	assert.Empty(t, result.Versions)
	assert.Empty(t, f.rec.events)
	assert.Equal(t, 0, f.tracker.ensureCalls)
}

func TestRunner_Run_CanceledWhileWaiting(t *testing.T) {
	f := newFixture(t)
	f.lister.n = 1000
	f.version(t, "v1", "A", snapshotWithTableT, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onSleep = cancel

	result, err := f.runner(t).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var abortErr *runner.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, runner.ReadinessWaiting, abortErr.State)
	assert.Equal(t, []string{"push v1", "poll main/T"}, f.rec.events, "up never runs")
	require.Len(t, result.Versions, 1)
	assert.Equal(t, runner.Aborted, result.Versions[0].State)
	assert.Empty(t, f.appliedIDs(t))
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrLocked
}

func TestRunner_Run_Locked(t *testing.T) {
	f := newFixture(t)
	f.locker = busyLocker{}
	f.version(t, "v1", "A", "", nil)

	_, err := f.runner(t).Run(context.Background())
	assert.ErrorIs(t, err, lock.ErrLocked)
	assert.Empty(t, f.rec.events)
}

func TestRunner_Status(t *testing.T) {
	f := newFixture(t)
	appliedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.tracker.Memory = ledger.NewMemory(ledger.Record{ID: "A", Version: "v1", AppliedAt: appliedAt})
	f.version(t, "v1", "A", snapshotWithTableT, nil)
	f.version(t, "v2", "B", snapshotWithTableT, nil)

	entries, err := f.runner(t).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, runner.StatusApplied, entries[0].State())
	assert.Equal(t, appliedAt, entries[0].AppliedAt)
	assert.Equal(t, runner.StatusPending, entries[1].State())
	assert.Equal(t, 2, entries[1].Ordinal)

	assert.Equal(t, 0, f.tracker.ensureCalls)
	assert.Equal(t, 0, f.tracker.recordCalls)
	assert.Empty(t, f.rec.events, "status pushes and executes nothing")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "readiness waiting", runner.ReadinessWaiting.String())
	assert.Equal(t, "state(42)", runner.State(42).String())
}
