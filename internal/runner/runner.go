package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/bfbechlin/appwrite-ctl/internal/ledger"
	"github.com/bfbechlin/appwrite-ctl/internal/readiness"
	"github.com/bfbechlin/appwrite-ctl/internal/schemasync"
	"github.com/bfbechlin/appwrite-ctl/internal/snapshot"
	"github.com/bfbechlin/appwrite-ctl/internal/version"
	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/lock"
	"github.com/bfbechlin/appwrite-ctl/pkg/metric"
	"github.com/bfbechlin/appwrite-ctl/pkg/tracer"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultLockKey = "appwrite-ctl:migrations"

type VersionLister interface {
	List(ctx context.Context) ([]version.Version, error)
}

type Waiter interface {
	Wait(ctx context.Context, pairs []snapshot.Pair) readiness.Report
}

type Executor interface {
	Load(ref string) (migration.Migration, error)
	Execute(ctx context.Context, label string, m migration.Migration) error
}

type Config struct {
	Versions VersionLister           `validate:"required"`
	Tracker  ledger.Tracker          `validate:"required"`
	Sync     schemasync.Synchronizer `validate:"required"`
	Waiter   Waiter                  `validate:"required"`
	Executor Executor                `validate:"required"`
	Locker   lock.Locker             `validate:"-"`
	LockKey  string                  `validate:"-"`
	Metrics  *metric.Run             `validate:"-"`
}

// VersionResult is the final state of one version in a run.
type VersionResult struct {
	Label     string
	ID        string
	State     State
	Readiness readiness.Report
}

type Result struct {
	Versions []VersionResult
	Applied  int
	Skipped  int
}

type Runner struct {
	versions VersionLister
	tracker  ledger.Tracker
	sync     schemasync.Synchronizer
	waiter   Waiter
	executor Executor
	locker   lock.Locker
	lockKey  string
	metrics  *metric.Run
}

func New(cfg Config) (*Runner, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("runner config: %w", err)
	}

	r := &Runner{
		versions: cfg.Versions,
		tracker:  cfg.Tracker,
		sync:     cfg.Sync,
		waiter:   cfg.Waiter,
		executor: cfg.Executor,
		locker:   cfg.Locker,
		lockKey:  cfg.LockKey,
		metrics:  cfg.Metrics,
	}

	if r.locker == nil {
		r.locker = lock.Noop{}
	}

	if r.lockKey == "" {
		r.lockKey = DefaultLockKey
	}

	return r, nil
}

type loaded struct {
	version   version.Version
	migration migration.Migration
}

// Run applies every version not yet in the applied set, in ascending order.
// The first failure stops the run and is returned as *AbortError; nothing is retried or rolled back.
func (r *Runner) Run(ctx context.Context) (result Result, err error) {
	ctx, span := tracer.StartSpan(ctx, "runner.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("migrations.applied", result.Applied), attribute.Int("migrations.skipped", result.Skipped))
		span.End()
	}()

	release, err := r.locker.Acquire(ctx, r.lockKey)
	if err != nil {
		err = fmt.Errorf("acquire run lock: %w", err)
		return
	}
	defer release()

	plan, err := r.load(ctx)
	if err != nil {
		return
	}

	if err = r.tracker.EnsureStore(ctx); err != nil {
		err = &AbortError{State: Discovered, Err: fmt.Errorf("ensure applied set store: %w", err)}
		return
	}

	applied, err := r.tracker.LoadAppliedIDs(ctx)
	if err != nil {
		err = &AbortError{State: Discovered, Err: fmt.Errorf("load applied set: %w", err)}
		return
	}

	ylog.Info(ctx, "migration run started", ylog.KV("versions", len(plan)), ylog.KV("applied", len(applied)))

	for _, p := range plan {
		res := VersionResult{Label: p.version.Label, ID: p.migration.ID, State: Discovered}

		if _, ok := applied[p.migration.ID]; ok {
			res.State = Skipped
			result.Versions = append(result.Versions, res)
			result.Skipped++
			r.metrics.Skipped()
			ylog.Info(ctx, "migration already applied, skipping", ylog.KV("version", p.version.Label), ylog.KV("id", p.migration.ID))
			continue
		}

		res, err = r.apply(ctx, p, res)
		result.Versions = append(result.Versions, res)
		if err != nil {
			r.metrics.Aborted()
			ylog.Error(ctx, "migration run aborted", ylog.KV("version", res.Label), ylog.KV("id", res.ID),
				ylog.KV("state", res.State.String()), ylog.KV("error", err))
			return
		}

		applied[p.migration.ID] = struct{}{}
		result.Applied++
		r.metrics.Applied()
	}

	ylog.Info(ctx, "migration run finished", ylog.KV("applied", result.Applied), ylog.KV("skipped", result.Skipped))
	return
}

// load lists versions and resolves every script before anything remote is touched.
func (r *Runner) load(ctx context.Context) ([]loaded, error) {
	versions, err := r.versions.List(ctx)
	if err != nil {
		return nil, &AbortError{State: Discovered, Err: err}
	}

	plan := make([]loaded, 0, len(versions))
	seen := make(map[string]string, len(versions))
	for _, v := range versions {
		m, err := r.executor.Load(v.ScriptRef)
		if err != nil {
			return nil, &AbortError{Label: v.Label, State: Discovered, Err: err}
		}

		// the id is the applied set key, a second version with it would be skipped forever
		if prev, ok := seen[m.ID]; ok {
			return nil, &AbortError{Label: v.Label, ID: m.ID, State: Discovered, Err: &version.MalformedVersionError{
				Label:  v.Label,
				Reason: fmt.Sprintf("migration id %q is already used by %s", m.ID, prev),
			}}
		}
		seen[m.ID] = v.Label

		plan = append(plan, loaded{version: v, migration: m})
	}

	return plan, nil
}

func (r *Runner) apply(ctx context.Context, p loaded, res VersionResult) (_ VersionResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "runner.apply", trace.WithAttributes(
		attribute.String("migration.version", p.version.Label),
		attribute.String("migration.id", p.migration.ID),
	))
	defer span.End()

	abort := func(cause error) (VersionResult, error) {
		state := res.State
		res.State = Aborted
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		return res, &AbortError{Label: res.Label, ID: res.ID, State: state, Err: cause}
	}

	ylog.Info(ctx, "applying migration", ylog.KV("version", res.Label), ylog.KV("id", res.ID),
		ylog.KV("description", p.migration.Description))

	if p.migration.RequiresBackup {
		ylog.Warn(ctx, "migration requires a backup, make sure one was taken before this run",
			ylog.KV("version", res.Label), ylog.KV("id", res.ID))
	}

	res.State = SchemaSyncing
	start := time.Now()
	var pairs []snapshot.Pair
	if p.version.SnapshotPath == "" {
		ylog.Warn(ctx, "version has no schema snapshot, skipping schema push", ylog.KV("version", res.Label))
	} else {
		snap, err := snapshot.Load(p.version.SnapshotPath)
		if err != nil {
			return abort(err)
		}

		if err = r.sync.Push(ctx, p.version.SnapshotPath); err != nil {
			return abort(err)
		}

		pairs = snap.Pairs()
	}
	r.metrics.ObserveStep("sync", start)

	res.State = ReadinessWaiting
	start = time.Now()
	if len(pairs) > 0 {
		res.Readiness = r.waiter.Wait(ctx, pairs)
		for _, pr := range res.Readiness.Results {
			if pr.Outcome == readiness.Abandoned {
				ylog.Warn(ctx, "continuing with a table that did not converge",
					ylog.KV("version", res.Label), ylog.KV("table", pr.Pair.String()), ylog.KV("reason", pr.Reason))
			}
		}
	}
	r.metrics.ObserveStep("readiness", start)

	if err = ctx.Err(); err != nil {
		return abort(fmt.Errorf("interrupted before executing: %w", err))
	}

	res.State = Executing
	start = time.Now()
	if err = r.executor.Execute(ctx, res.Label, p.migration); err != nil {
		return abort(err)
	}
	r.metrics.ObserveStep("execute", start)

	res.State = Recording
	start = time.Now()
	if err = r.tracker.RecordApplied(ctx, res.ID, res.Label); err != nil {
		return abort(fmt.Errorf("%w: the data change of %s is live, record it manually before the next run: %w", ErrRecord, res.ID, err))
	}
	r.metrics.ObserveStep("record", start)

	res.State = Applied
	ylog.Info(ctx, "migration applied", ylog.KV("version", res.Label), ylog.KV("id", res.ID))
	return res, nil
}
