package logger

import (
	"context"
	"fmt"

	"github.com/yusufsyaifudin/ylog"
)

// LogData is injected into every run context so each log line carries the run it belongs to.
type LogData struct {
	RunID   string `json:"run_id,omitempty"`
	Command string `json:"command,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Inject attaches a ylog tracer carrying data to ctx.
func Inject(ctx context.Context, data LogData) (context.Context, error) {
	t, err := ylog.NewTracer(data, ylog.WithTag("tracer"))
	if err != nil {
		return ctx, fmt.Errorf("error prepare log tracer data: %w", err)
	}

	return ylog.Inject(ctx, t), nil
}

// Sink is the pair of printf-style log funcs handed to a migration script.
type Sink struct {
	ctx    context.Context
	prefix string
}

func NewSink(ctx context.Context, version string) *Sink {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Sink{
		ctx:    ctx,
		prefix: fmt.Sprintf("[%s] ", version),
	}
}

func (s *Sink) Log(msg string, args ...interface{}) {
	ylog.Info(s.ctx, s.format(msg, args...), ylog.KV("source", "migration"))
}

func (s *Sink) Error(msg string, args ...interface{}) {
	ylog.Error(s.ctx, s.format(msg, args...), ylog.KV("source", "migration"))
}

func (s *Sink) format(msg string, args ...interface{}) string {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	return s.prefix + msg
}
