package tracer

import (
	"context"
	"fmt"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	jaegerPropagator "go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/contrib/propagators/ot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerAppName = "appwrite-ctl"

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(tracerAppName).Start(ctx, spanName, opts...)
}

type Config struct {
	ServiceName string `validate:"required"`
	Environment string `validate:"-"`

	// JaegerEndpoint is the collector endpoint, e.g. http://localhost:14268/api/traces.
	// When empty no spans are exported.
	JaegerEndpoint string `validate:"omitempty,url"`
}

// Setup registers the global propagators and, when an endpoint is configured, a batching
// tracer provider exporting to jaeger. The returned func flushes and stops the provider.
func Setup(cfg Config) (shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }

	if err = validator.Validate(cfg); err != nil {
		err = fmt.Errorf("tracer config: %w", err)
		return
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		&ot.OT{},
		&jaegerPropagator.Jaeger{},
	))

	if cfg.JaegerEndpoint == "" {
		return
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)),
	)
	if err != nil {
		err = fmt.Errorf("setup jaeger exporter: %w", err)
		return
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("environment", env),
		)),
	)

	otel.SetTracerProvider(tp)
	shutdown = tp.Shutdown
	return
}
