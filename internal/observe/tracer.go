package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "docchat"

// TraceOptions configures the OTLP exporter.
type TraceOptions struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// InitTracer installs an SDK tracer provider exporting over OTLP/HTTP and
// returns its shutdown function. When tracing is disabled the global no-op
// provider stays in place.
func InitTracer(ctx context.Context, opts TraceOptions, log *zap.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !opts.Enabled {
		log.Debug("tracing disabled")
		return noop, nil
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}
	name := opts.ServiceName
	if name == "" {
		name = instrumentationName
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracer initialized", zap.String("endpoint", endpoint))
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
