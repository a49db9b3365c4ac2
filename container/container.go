package container

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bfbechlin/appwrite-ctl/config"
	"github.com/bfbechlin/appwrite-ctl/internal/executor"
	"github.com/bfbechlin/appwrite-ctl/internal/ledger"
	"github.com/bfbechlin/appwrite-ctl/internal/readiness"
	"github.com/bfbechlin/appwrite-ctl/internal/runner"
	"github.com/bfbechlin/appwrite-ctl/internal/schemasync"
	"github.com/bfbechlin/appwrite-ctl/internal/version"
	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/bfbechlin/appwrite-ctl/pkg/lock"
	"github.com/bfbechlin/appwrite-ctl/pkg/metric"
	"github.com/bfbechlin/appwrite-ctl/pkg/sqldb"
	"github.com/bfbechlin/appwrite-ctl/pkg/tracer"
	"github.com/satori/uuid"
	"github.com/sony/sonyflake"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

// Container stitches every dependency of a command together.
// Setup returns the struct instead of an interface so the caller can always Close it.
type Container struct {
	cfg     config.Config
	client  *appwrite.Client
	tables  *appwrite.TablesDB
	store   *version.Store
	sync    *schemasync.CLI
	metrics *metric.Run
	runner  *runner.Runner
	idGen   *sonyflake.Sonyflake
	closer  []Closer
}

// Option replaces a dependency, mostly for tests.
type Option func(*options)

type options struct {
	tracker   ledger.Tracker
	commander schemasync.Commander
	sleep     func(ctx context.Context, d time.Duration) error
}

func WithTracker(t ledger.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

func WithCommander(c schemasync.Commander) Option {
	return func(o *options) { o.commander = c }
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = f }
}

func Setup(ctx context.Context, cfg config.Config, scripts *migration.Registry, opts ...Option) (c *Container, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c = &Container{
		cfg:     cfg,
		metrics: metric.NewRun(),
		closer:  make([]Closer, 0),
		idGen: sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}),
	}

	// close what was opened so far when a later step fails
	defer func() {
		if err != nil {
			if _err := c.Close(); _err != nil {
				err = fmt.Errorf("%w: %s", err, _err)
			}
			c = nil
		}
	}()

	shutdown, err := tracer.Setup(tracer.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
	})
	if err != nil {
		return
	}
	c.closer = append(c.closer, NewNamedCloser("tracer", shutdownCloser(shutdown)))

	c.client, err = appwrite.NewClient(appwrite.Config{
		Endpoint:  cfg.Appwrite.Endpoint,
		ProjectID: cfg.Appwrite.ProjectID,
		APIKey:    cfg.Appwrite.APIKey,
		Timeout:   cfg.Appwrite.Timeout,
	})
	if err != nil {
		return
	}
	c.tables = appwrite.NewTablesDB(c.client)

	c.store, err = version.New(version.Config{
		Dir:          cfg.Migrations.Dir,
		SnapshotFile: cfg.Migrations.SnapshotFile,
		Scripts:      scripts,
	})
	if err != nil {
		return
	}

	loop, err := readiness.New(readiness.Config{
		Columns:     c.tables,
		Interval:    cfg.Readiness.Interval,
		MaxAttempts: cfg.Readiness.MaxAttempts,
		Sleep:       o.sleep,
		Metrics:     c.metrics,
	})
	if err != nil {
		return
	}

	tracker := o.tracker
	if tracker == nil {
		tracker, err = c.setupTracker(loop)
		if err != nil {
			return
		}
	}

	c.sync, err = schemasync.NewCLI(schemasync.CLIConfig{
		Binary:       cfg.SchemaTool.Binary,
		Endpoint:     cfg.Appwrite.Endpoint,
		ProjectID:    cfg.Appwrite.ProjectID,
		APIKey:       cfg.Appwrite.APIKey,
		SnapshotFile: cfg.Migrations.SnapshotFile,
		PushArgs:     cfg.SchemaTool.PushArgs,
		PullArgs:     cfg.SchemaTool.PullArgs,
		Commander:    o.commander,
	})
	if err != nil {
		return
	}

	exec, err := executor.New(executor.Config{
		Source: scripts,
		Client: c.client,
		Tables: c.tables,
	})
	if err != nil {
		return
	}

	locker, err := c.setupLocker(ctx)
	if err != nil {
		return
	}

	c.runner, err = runner.New(runner.Config{
		Versions: c.store,
		Tracker:  tracker,
		Sync:     c.sync,
		Waiter:   loop,
		Executor: exec,
		Locker:   locker,
		LockKey:  cfg.Lock.Key,
		Metrics:  c.metrics,
	})
	return
}

func (c *Container) setupTracker(loop *readiness.Loop) (ledger.Tracker, error) {
	switch c.cfg.Ledger.Backend {
	case "memory":
		return ledger.NewMemory(), nil

	case sqldb.Postgres.String(), sqldb.Mysql.String(), sqldb.Sqlite3.String():
		db, err := sqldb.Open(sqldb.Config{
			Driver: sqldb.Driver(c.cfg.Ledger.Backend),
			DSN:    c.cfg.Ledger.DSN,
			Debug:  c.cfg.Ledger.Debug,
		})
		if err != nil {
			return nil, err
		}
		c.closer = append(c.closer, NewNamedCloser("ledger "+c.cfg.Ledger.Backend, db))

		return ledger.NewSQL(ledger.SQLConfig{DB: db, Table: c.cfg.Ledger.SQLTable})

	default:
		return ledger.NewAppwrite(ledger.AppwriteConfig{
			Tables:     c.tables,
			Waiter:     loop,
			DatabaseID: c.cfg.Ledger.DatabaseID,
			TableID:    c.cfg.Ledger.TableID,
		})
	}
}

func (c *Container) setupLocker(ctx context.Context) (lock.Locker, error) {
	if len(c.cfg.Lock.Redis.Addrs) == 0 {
		return lock.Noop{}, nil
	}

	client, err := newRedis(ctx, c.cfg.Lock.Redis)
	if err != nil {
		return nil, err
	}
	c.closer = append(c.closer, NewNamedCloser("redis", client))

	return lock.NewRedis(lock.RedisConfig{Client: client, TTL: c.cfg.Lock.TTL})
}

func (c *Container) Runner() *runner.Runner {
	return c.runner
}

func (c *Container) Versions() *version.Store {
	return c.store
}

func (c *Container) Sync() schemasync.Synchronizer {
	return c.sync
}

func (c *Container) Metrics() *metric.Run {
	return c.metrics
}

// RunID identifies one command invocation in logs.
func (c *Container) RunID() string {
	if c.idGen != nil {
		if id, err := c.idGen.NextID(); err == nil {
			return strconv.FormatUint(id, 10)
		}
	}

	return uuid.NewV4().String()
}

// PushMetrics sends the run metrics to the configured Pushgateway, if any.
func (c *Container) PushMetrics(ctx context.Context) error {
	return c.metrics.Push(ctx, c.cfg.Metrics.PushgatewayURL, c.cfg.Metrics.Job)
}

// Close will close all dependencies in reverse order of creation.
func (c *Container) Close() error {
	ctx := context.Background()

	var err error
	for i := len(c.closer) - 1; i >= 0; i-- {
		closer := c.closer[i]
		if _err := closer.Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", closer.Name(), _err))
			continue
		}

		ylog.Debug(ctx, fmt.Sprintf("%s success to close", closer.Name()))
	}

	c.closer = nil
	return err
}
