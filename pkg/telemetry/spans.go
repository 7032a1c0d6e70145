package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/traffical/traffical-go"

// Span names.
const (
	SpanBundleFetch = "traffical.bundle.fetch"
	SpanEventsFlush = "traffical.events.flush"
	SpanCommand     = "traffical.cli.command"
)

// Attribute keys shared by SDK and CLI spans.
const (
	ProjectKey           = attribute.Key("traffical.project")
	EnvironmentKey       = attribute.Key("traffical.environment")
	BundleVersionKey     = attribute.Key("traffical.bundle.version")
	BundleNotModifiedKey = attribute.Key("traffical.bundle.not_modified")
	EventCountKey        = attribute.Key("traffical.events.count")
	CommandKey           = attribute.Key("traffical.cli.command")
	ArgCountKey          = attribute.Key("traffical.cli.args")
)

// Project returns the attributes identifying a project environment.
func Project(projectID, env string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{ProjectKey.String(projectID)}
	if env != "" {
		attrs = append(attrs, EnvironmentKey.String(env))
	}
	return attrs
}

// FlagKey names the attribute recording a command-line flag value.
func FlagKey(name string) attribute.Key {
	return attribute.Key("traffical.cli.flag." + name)
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}

// WithSpan runs f inside a span named name. The span status follows the
// returned error.
func WithSpan(ctx context.Context, name string, f func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := f(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Annotate adds attributes to the span carried by ctx, if any.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
