// Package observability configures OpenTelemetry tracing. Spans are
// exported through the stdout exporter, optionally redirected to a file,
// so traces need no collector infrastructure. When tracing is disabled no
// provider is installed and the package-level tracers elsewhere stay noops.
package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/docfold/memoria/pkg/errors"
)

const (
	tracerName  = "github.com/docfold/memoria"
	serviceName = "memoria"
)

// TracerProvider owns the configured OpenTelemetry provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Options control span export.
type Options struct {
	// Writer receives exported spans. Nil means stdout.
	Writer io.Writer
	// Pretty indents the exported JSON.
	Pretty bool
	// Version is recorded as the service version attribute.
	Version string
}

// NewTracerProvider builds a tracer provider and installs it as the
// global provider. Callers must Shutdown to flush batched spans.
func NewTracerProvider(opts Options) (*TracerProvider, error) {
	var exporterOpts []stdouttrace.Option
	if opts.Writer != nil {
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
	}
	if opts.Pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create trace exporter")
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create trace resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes pending spans and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the service tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the service tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// RecordError records err on the span in ctx, if any.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err)
}

// Attribute keys used by the HTTP layer.
var (
	AttrHTTPMethod = attribute.Key("http.method")
	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPStatus = attribute.Key("http.status_code")
)
