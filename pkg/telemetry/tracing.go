// Package telemetry provides OpenTelemetry tracing for the Traffical SDK and CLI.
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Sampler selects which traces are exported.
type Sampler string

const (
	SamplerAlways Sampler = "always"
	SamplerNever  Sampler = "never"
	// SamplerRatio samples a fraction of root traces and follows the parent
	// decision otherwise.
	SamplerRatio Sampler = "ratio"
)

// ParseSampler accepts the sampler names used on the command line. An empty
// string selects SamplerAlways.
func ParseSampler(s string) (Sampler, error) {
	switch Sampler(strings.ToLower(strings.TrimSpace(s))) {
	case "", SamplerAlways:
		return SamplerAlways, nil
	case SamplerNever:
		return SamplerNever, nil
	case SamplerRatio:
		return SamplerRatio, nil
	default:
		return "", errors.Errorf("unknown tracing sampler %q (want always, never or ratio)", s)
	}
}

// Shutdown flushes buffered spans and releases the exporter.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Config controls whether and how spans are exported.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Sampler        Sampler
	// Ratio is only read for SamplerRatio.
	Ratio float64
}

// Validate reports configuration that would produce a broken provider.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return errors.New("tracing service name is required")
	}
	if c.Sampler == SamplerRatio && (c.Ratio < 0 || c.Ratio > 1) {
		return errors.Errorf("tracing ratio must be between 0 and 1, got %g", c.Ratio)
	}
	return nil
}

func (c Config) sampler() sdktrace.Sampler {
	switch c.Sampler {
	case SamplerNever:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.Ratio))
	default:
		return sdktrace.AlwaysSample()
	}
}

// Start installs a global tracer provider exporting over OTLP/HTTP. The
// endpoint and headers come from the OTEL_EXPORTER_OTLP_* environment
// variables. When tracing is disabled the returned Shutdown does nothing.
func Start(ctx context.Context, cfg Config) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}

	provider, err := newProvider(ctx, cfg, exporter)
	if err != nil {
		return nil, multierror.Append(err, exporter.Shutdown(ctx)).ErrorOrNil()
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		var result *multierror.Error
		result = multierror.Append(result, provider.Shutdown(ctx))
		result = multierror.Append(result, exporter.Shutdown(ctx))
		return result.ErrorOrNil()
	}, nil
}

func newProvider(ctx context.Context, cfg Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace resource")
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(time.Second),
		),
	), nil
}

// HTTPClient returns a copy of base whose transport propagates trace
// context and records client spans. A nil base gets a 30s timeout.
func HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if _, ok := rt.(*otelhttp.Transport); ok {
		return base
	}

	out := *base
	out.Transport = otelhttp.NewTransport(rt)
	return &out
}
