package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"

	"github.com/traffical/traffical-go/pkg/telemetry"
	"github.com/traffical/traffical-go/pkg/version"
)

var tracingShutdown telemetry.Shutdown = func(context.Context) error { return nil }

// redactedFlags hold secrets and are recorded without their value.
var redactedFlags = map[string]bool{"api-key": true}

func tracingConfig() (telemetry.Config, error) {
	sampler, err := telemetry.ParseSampler(viper.GetString("tracing.sampler"))
	if err != nil {
		return telemetry.Config{}, err
	}
	cfg := telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    cliComponent,
		ServiceVersion: version.Version,
		Sampler:        sampler,
		Ratio:          viper.GetFloat64("tracing.ratio"),
	}
	return cfg, cfg.Validate()
}

func initTracing(ctx context.Context) (telemetry.Shutdown, error) {
	cfg, err := tracingConfig()
	if err != nil {
		return nil, err
	}
	return telemetry.Start(ctx, cfg)
}

// commandAttributes describes an invocation without leaking secrets.
func commandAttributes(cmd *cobra.Command, args []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		telemetry.CommandKey.String(cmd.CommandPath()),
		telemetry.ArgCountKey.Int(len(args)),
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		value := f.Value.String()
		if redactedFlags[f.Name] {
			value = "[redacted]"
		}
		attrs = append(attrs, telemetry.FlagKey(f.Name).String(value))
	})
	return attrs
}

// withTracing runs cmd inside a command span.
func withTracing(cmd *cobra.Command) *cobra.Command {
	run := cmd.Run
	cmd.Run = func(cmd *cobra.Command, args []string) {
		_ = telemetry.WithSpan(cmd.Context(), telemetry.SpanCommand, func(ctx context.Context) error {
			cmd.SetContext(ctx)
			run(cmd, args)
			return nil
		}, commandAttributes(cmd, args)...)
	}
	return cmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("tracing-enabled", false, "Export OpenTelemetry traces over OTLP/HTTP")
	flags.String("tracing-sampler", string(telemetry.SamplerAlways), "Trace sampler (always, never, ratio)")
	flags.Float64("tracing-ratio", 1, "Fraction of traces kept by the ratio sampler")

	for key, flag := range map[string]string{
		"tracing.enabled": "tracing-enabled",
		"tracing.sampler": "tracing-sampler",
		"tracing.ratio":   "tracing-ratio",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}
