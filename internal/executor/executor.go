package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bfbechlin/appwrite-ctl/migration"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/bfbechlin/appwrite-ctl/pkg/logger"
	"github.com/bfbechlin/appwrite-ctl/pkg/tracer"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrLoad      = errors.New("cannot load migration")
	ErrExecution = errors.New("migration failed")
)

type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrLoad, e.Ref, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

type ExecutionError struct {
	Label string
	ID    string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s (%s): %s", ErrExecution, e.Label, e.ID, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// Source resolves a script reference to its migration.
type Source interface {
	Lookup(ref string) (migration.Migration, bool)
}

type Config struct {
	Source Source             `validate:"required"`
	Client *appwrite.Client   `validate:"-"`
	Tables *appwrite.TablesDB `validate:"-"`
}

type Executor struct {
	source Source
	client *appwrite.Client
	tables *appwrite.TablesDB
}

func New(cfg Config) (*Executor, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("executor config: %w", err)
	}

	return &Executor{
		source: cfg.Source,
		client: cfg.Client,
		tables: cfg.Tables,
	}, nil
}

func (e *Executor) Load(ref string) (m migration.Migration, err error) {
	m, ok := e.source.Lookup(ref)
	if !ok {
		err = &LoadError{Ref: ref, Err: errors.New("no migration registered")}
		return
	}

	if err = validator.Validate(m); err != nil {
		err = &LoadError{Ref: ref, Err: err}
		return
	}

	return
}

// Execute calls m.Up exactly once. Errors and panics are logged through the version's error sink.
func (e *Executor) Execute(ctx context.Context, label string, m migration.Migration) (err error) {
	ctx, span := tracer.StartSpan(ctx, "executor.Execute")
	span.SetAttributes(attribute.String("migration.version", label), attribute.String("migration.id", m.ID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sink := logger.NewSink(ctx, label)
	mc := &migration.Context{
		Version: label,
		Client:  e.client,
		Tables:  e.tables,
		Log:     sink.Log,
		Error:   sink.Error,
	}

	if m.Up == nil {
		err = &ExecutionError{Label: label, ID: m.ID, Err: errors.New("migration has no up function")}
		sink.Error("%s", err)
		return
	}

	if upErr := callUp(ctx, m.Up, mc); upErr != nil {
		err = &ExecutionError{Label: label, ID: m.ID, Err: upErr}
		sink.Error("up failed: %s", upErr)
		return
	}

	return
}

func callUp(ctx context.Context, up migration.Func, mc *migration.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	return up(ctx, mc)
}
