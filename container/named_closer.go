package container

import (
	"context"
	"io"
	"time"
)

type Closer interface {
	io.Closer

	Name() string
}

type NamedCloser struct {
	name   string
	closer io.Closer
}

func (d *NamedCloser) Close() error {
	return d.closer.Close()
}

func (d *NamedCloser) Name() string {
	return d.name
}

var _ Closer = (*NamedCloser)(nil)

func NewNamedCloser(name string, closer io.Closer) *NamedCloser {
	return &NamedCloser{
		name:   name,
		closer: closer,
	}
}

// shutdownCloser adapts a context aware shutdown func, like the tracer provider's, to io.Closer.
type shutdownCloser func(ctx context.Context) error

func (f shutdownCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return f(ctx)
}
