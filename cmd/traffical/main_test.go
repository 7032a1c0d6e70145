package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffical/traffical-go/pkg/aitools"
	"github.com/traffical/traffical-go/pkg/telemetry"
	"github.com/traffical/traffical-go/pkg/version"
)

func registeredCommands() map[string]bool {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	return names
}

func TestRootCommands(t *testing.T) {
	names := registeredCommands()
	for _, want := range []string{"init", "status", "push", "pull", "sync", "import", "integrate-ai-tools", "resolve", "schema", "login", "logout", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestSkillTemplateMentionsOnlyRegisteredCommands(t *testing.T) {
	mentioned, err := aitools.Commands()
	require.NoError(t, err)
	require.NotEmpty(t, mentioned)

	names := registeredCommands()
	for _, cmd := range mentioned {
		assert.True(t, names[cmd], "skill template mentions unknown command %q", cmd)
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "api-key", "profile", "base-url", "log-level", "log-format", "quiet", "tracing-enabled", "tracing-sampler", "tracing-ratio"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag --%s", name)
	}
}

func TestSyncConfigValidate(t *testing.T) {
	c := NewSyncConfig()
	assert.NoError(t, c.Validate())

	c.DebounceTime = -1
	assert.Error(t, c.Validate())

	c = NewSyncConfig()
	c.Watch, c.DryRun = true, true
	assert.Error(t, c.Validate())
}

func TestInitConfigValidate(t *testing.T) {
	assert.Error(t, NewInitConfig().Validate())
	assert.NoError(t, (&InitConfig{ProjectID: "proj_1"}).Validate())
}

func TestCommandAttributes_RedactsAPIKey(t *testing.T) {
	cmd := &cobra.Command{Use: "push"}
	cmd.Flags().String("api-key", "", "")
	cmd.Flags().Bool("dry-run", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--api-key", "sk_live_secret", "--dry-run"}))

	attrs := commandAttributes(cmd, []string{"extra"})

	assert.Contains(t, attrs, telemetry.CommandKey.String("push"))
	assert.Contains(t, attrs, telemetry.ArgCountKey.Int(1))
	assert.Contains(t, attrs, telemetry.FlagKey("dry-run").String("true"))
	assert.Contains(t, attrs, telemetry.FlagKey("api-key").String("[redacted]"))
}

func TestTracingConfig(t *testing.T) {
	for _, key := range []string{"tracing.enabled", "tracing.sampler", "tracing.ratio"} {
		prev := viper.Get(key)
		t.Cleanup(func() { viper.Set(key, prev) })
	}

	viper.Set("tracing.enabled", true)
	viper.Set("tracing.sampler", "ratio")
	viper.Set("tracing.ratio", 0.1)
	cfg, err := tracingConfig()
	require.NoError(t, err)
	assert.Equal(t, telemetry.SamplerRatio, cfg.Sampler)
	assert.Equal(t, cliComponent, cfg.ServiceName)

	viper.Set("tracing.sampler", "sometimes")
	_, err = tracingConfig()
	assert.Error(t, err)

	viper.Set("tracing.sampler", "ratio")
	viper.Set("tracing.ratio", 2)
	_, err = tracingConfig()
	assert.Error(t, err)
}

func TestWriteVersion(t *testing.T) {
	info := version.Info{SDK: version.SDKName, Version: "1.2.0", GitCommit: "abcdef0123", GoVersion: "go1.25.1", Platform: "linux/amd64"}

	tests := []struct {
		name   string
		short  bool
		output string
		want   string
	}{
		{name: "short", short: true, output: "json", want: "1.2.0\n"},
		{name: "text", output: "text", want: "traffical-go 1.2.0 (abcdef0, go1.25.1, linux/amd64)\n"},
		{name: "json", output: "json", want: `"gitCommit": "abcdef0123"`},
		{name: "yaml", output: "yaml", want: "version: 1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeVersion(&buf, info, tt.short, tt.output))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	assert.Error(t, writeVersion(&bytes.Buffer{}, info, false, "xml"))
}
