package metric

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "appwrite_ctl"

// Run holds the collectors of one migration run. A nil *Run is valid and records nothing.
type Run struct {
	reg *prometheus.Registry

	applied        prometheus.Counter
	skipped        prometheus.Counter
	aborted        prometheus.Counter
	readinessPolls prometheus.Counter
	readiness      *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
}

func NewRun() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "Number of migrations applied by this run.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_skipped_total",
			Help:      "Number of migrations skipped because they were already applied.",
		}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_aborted_total",
			Help:      "Number of migrations that aborted the run.",
		}),
		readinessPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_polls_total",
			Help:      "Number of column listing polls issued while waiting for readiness.",
		}),
		readiness: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_outcomes_total",
			Help:      "Readiness outcome per database/table pair.",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each migration step.",
			Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"step"}),
	}

	r.reg.MustRegister(r.applied, r.skipped, r.aborted, r.readinessPolls, r.readiness, r.stepDuration)
	return r
}

func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.reg
}

func (r *Run) Applied() {
	if r == nil {
		return
	}

	r.applied.Inc()
}

func (r *Run) Skipped() {
	if r == nil {
		return
	}

	r.skipped.Inc()
}

func (r *Run) Aborted() {
	if r == nil {
		return
	}

	r.aborted.Inc()
}

func (r *Run) ReadinessPoll() {
	if r == nil {
		return
	}

	r.readinessPolls.Inc()
}

func (r *Run) ReadinessOutcome(outcome string) {
	if r == nil {
		return
	}

	r.readiness.WithLabelValues(outcome).Inc()
}

// ObserveStep records the time elapsed since start under the given step name.
func (r *Run) ObserveStep(step string, start time.Time) {
	if r == nil {
		return
	}

	r.stepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// Push delivers every collector of this run to a Pushgateway, replacing the previous group of the job.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}

	err := push.New(url, job).Gatherer(r.reg).PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	return nil
}
