package telemetry

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStart_Disabled(t *testing.T) {
	shutdown, err := Start(context.Background(), Config{Enabled: false, Sampler: "bogus"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestParseSampler(t *testing.T) {
	tests := []struct {
		in      string
		want    Sampler
		wantErr bool
	}{
		{in: "", want: SamplerAlways},
		{in: "always", want: SamplerAlways},
		{in: " Never ", want: SamplerNever},
		{in: "RATIO", want: SamplerRatio},
		{in: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSampler(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Enabled: true, ServiceName: "traffical-cli", Sampler: SamplerRatio, Ratio: 0.25}.Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Error(t, Config{Enabled: true, ServiceName: "traffical-cli", Sampler: SamplerRatio, Ratio: 1.5}.Validate())
}

func TestConfigSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Config{}.sampler().Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), Config{Sampler: SamplerNever}.sampler().Description())
	assert.Contains(t, Config{Sampler: SamplerRatio, Ratio: 0.5}.sampler().Description(), "TraceIDRatioBased")
}

func TestNewProvider_ExportsWithServiceName(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	ctx := context.Background()

	provider, err := newProvider(ctx, Config{Enabled: true, ServiceName: "traffical-cli", ServiceVersion: "1.2.3"}, exporter)
	require.NoError(t, err)

	_, span := provider.Tracer("test").Start(ctx, SpanCommand)
	span.End()
	require.NoError(t, provider.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanCommand, spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "traffical-cli"))
	require.NoError(t, provider.Shutdown(ctx))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestWithSpan_StatusAndAttributes(t *testing.T) {
	recorder := recordSpans(t)

	err := WithSpan(context.Background(), SpanBundleFetch, func(context.Context) error {
		return errors.New("unreachable")
	}, Project("proj_1", "production")...)
	require.Error(t, err)

	require.NoError(t, WithSpan(context.Background(), SpanEventsFlush, func(ctx context.Context) error {
		Annotate(ctx, BundleNotModifiedKey.Bool(true))
		return nil
	}, EventCountKey.Int(3)))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, SpanBundleFetch, spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), ProjectKey.String("proj_1"))
	assert.Contains(t, spans[0].Attributes(), EnvironmentKey.String("production"))

	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), EventCountKey.Int(3))
	assert.Contains(t, spans[1].Attributes(), BundleNotModifiedKey.Bool(true))
}

func TestProject_OmitsEmptyEnvironment(t *testing.T) {
	assert.Equal(t, []attribute.KeyValue{ProjectKey.String("proj_1")}, Project("proj_1", ""))
}

func TestHTTPClient(t *testing.T) {
	client := HTTPClient(nil)
	_, ok := client.Transport.(*otelhttp.Transport)
	assert.True(t, ok)
	assert.Same(t, client, HTTPClient(client))

	base := &http.Client{}
	wrapped := HTTPClient(base)
	assert.NotSame(t, base, wrapped)
	assert.Nil(t, base.Transport)
}
