package readiness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bfbechlin/appwrite-ctl/internal/snapshot"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/bfbechlin/appwrite-ctl/pkg/metric"
	"github.com/bfbechlin/appwrite-ctl/pkg/tracer"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 60
)

type Outcome int

const (
	Pending Outcome = iota
	Converged
	Abandoned
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Converged:
		return "converged"
	case Abandoned:
		return "abandoned"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type ColumnLister interface {
	ListColumns(ctx context.Context, databaseID, tableID string) ([]appwrite.Column, error)
}

type Config struct {
	Columns     ColumnLister  `validate:"required"`
	Interval    time.Duration `validate:"-"`
	MaxAttempts int           `validate:"min=0"`

	// Sleep defaults to a context aware timer; tests replace it to avoid waiting.
	Sleep   func(ctx context.Context, d time.Duration) error `validate:"-"`
	Metrics *metric.Run                                      `validate:"-"`
}

type PairResult struct {
	Pair     snapshot.Pair
	Outcome  Outcome
	Reason   string
	Attempts int
}

type Report struct {
	Results []PairResult
}

// Converged is true when no pair was abandoned.
func (r Report) Converged() bool {
	return len(r.Abandoned()) == 0
}

func (r Report) Abandoned() []PairResult {
	out := make([]PairResult, 0)
	for _, res := range r.Results {
		if res.Outcome == Abandoned {
			out = append(out, res)
		}
	}

	return out
}

func (r Report) Polls() int {
	n := 0
	for _, res := range r.Results {
		n += res.Attempts
	}

	return n
}

// Loop waits, pair after pair, until the columns of each table are available.
// It never fails: a pair that cannot settle is abandoned with a warning and the next pair is checked.
type Loop struct {
	columns     ColumnLister
	interval    time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *metric.Run
}

func New(cfg Config) (*Loop, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("readiness config: %w", err)
	}

	l := &Loop{
		columns:     cfg.Columns,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		sleep:       cfg.Sleep,
		metrics:     cfg.Metrics,
	}

	if l.interval <= 0 {
		l.interval = DefaultInterval
	}

	if l.maxAttempts <= 0 {
		l.maxAttempts = DefaultMaxAttempts
	}

	if l.sleep == nil {
		l.sleep = sleepContext
	}

	return l, nil
}

func (l *Loop) Wait(ctx context.Context, pairs []snapshot.Pair) Report {
	ctx, span := tracer.StartSpan(ctx, "readiness.Wait")
	defer span.End()

	report := Report{Results: make([]PairResult, 0, len(pairs))}
	for _, pair := range pairs {
		res := l.waitPair(ctx, pair)
		report.Results = append(report.Results, res)
		l.metrics.ReadinessOutcome(res.Outcome.String())

		switch res.Outcome {
		case Converged:
			ylog.Info(ctx, "table columns available",
				ylog.KV("table", pair.String()), ylog.KV("attempts", res.Attempts))
		case Skipped, Abandoned:
			ylog.Warn(ctx, fmt.Sprintf("readiness %s, continuing", res.Outcome),
				ylog.KV("table", pair.String()), ylog.KV("reason", res.Reason), ylog.KV("attempts", res.Attempts))
		}
	}

	span.SetAttributes(
		attribute.Int("readiness.pairs", len(pairs)),
		attribute.Int("readiness.polls", report.Polls()),
		attribute.Bool("readiness.converged", report.Converged()),
	)

	return report
}

func (l *Loop) waitPair(ctx context.Context, pair snapshot.Pair) PairResult {
	res := PairResult{Pair: pair}
	if pair.DatabaseID == "" || pair.TableID == "" {
		res.Outcome = Skipped
		res.Reason = "table without databaseId or $id in snapshot"
		return res
	}

	for {
		if ctx.Err() != nil {
			res.Outcome = Abandoned
			res.Reason = "canceled"
			return res
		}

		res.Attempts++
		l.metrics.ReadinessPoll()

		res.Outcome, res.Reason = l.poll(ctx, pair)
		if res.Outcome != Pending {
			return res
		}

		if res.Attempts >= l.maxAttempts {
			res.Outcome = Abandoned
			res.Reason = fmt.Sprintf("timeout after %d attempts, last state: %s", res.Attempts, res.Reason)
			return res
		}

		if err := l.sleep(ctx, l.interval); err != nil {
			res.Outcome = Abandoned
			res.Reason = "canceled"
			return res
		}
	}
}

// poll classifies a single column listing of pair.
func (l *Loop) poll(ctx context.Context, pair snapshot.Pair) (Outcome, string) {
	columns, err := l.columns.ListColumns(ctx, pair.DatabaseID, pair.TableID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Abandoned, "canceled"
		}

		code := appwrite.StatusCode(err)
		switch {
		case code >= http.StatusInternalServerError:
			return Abandoned, fmt.Sprintf("server error while listing columns: %s", err)
		case code == http.StatusNotFound, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return Pending, err.Error()
		case code >= http.StatusBadRequest:
			return Abandoned, fmt.Sprintf("listing columns rejected: %s", err)
		default:
			return Pending, err.Error()
		}
	}

	present := make(map[string]struct{}, len(columns))
	var notAvailable []string
	for _, c := range columns {
		present[c.Key] = struct{}{}

		switch c.Status {
		case appwrite.ColumnAvailable:
		case appwrite.ColumnFailed, appwrite.ColumnStuck:
			return Abandoned, fmt.Sprintf("column %s is %s: %s", c.Key, c.Status, c.Error)
		default:
			notAvailable = append(notAvailable, fmt.Sprintf("%s=%s", c.Key, c.Status))
		}
	}

	if len(notAvailable) > 0 {
		return Pending, fmt.Sprintf("columns not available: %v", notAvailable)
	}

	var missing []string
	for _, key := range pair.ColumnKeys {
		if _, ok := present[key]; !ok {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return Pending, fmt.Sprintf("columns not created yet: %v", missing)
	}

	return Converged, ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
