package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/client"
	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/credentials"
	"github.com/traffical/traffical-go/pkg/presenter"
)

// ResolveConfig holds configuration for the resolve command
type ResolveConfig struct {
	Environment   string
	UnitKey       string
	UnitAttribute string
	Attributes    map[string]string
	Parameters    []string
}

// NewResolveConfig creates a new ResolveConfig with default values
func NewResolveConfig() *ResolveConfig {
	return &ResolveConfig{
		Environment:   client.DefaultEnvironment,
		UnitAttribute: bundle.DefaultUnitKey,
		Attributes:    map[string]string{},
	}
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve parameters for a unit against the live bundle",
	Long: `Fetch the current bundle and resolve the parameters declared in the local
config for one unit, showing the values and the layer assignments that
produced them. Nothing is reported to the platform.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rc := getResolveConfigFromFlags(cmd)

		cfg, err := loadProjectConfig(projectConfigPath())
		if err != nil {
			presenter.Error(err, "Failed to load config")
			os.Exit(1)
		}

		resolved, err := credentials.Resolve(credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}

		opts := client.Options{
			APIKey:      resolved.APIKey,
			BaseURL:     resolved.BaseURL,
			ProjectID:   cfg.Project.ID,
			Environment: rc.Environment,
		}
		if _, err := runResolve(ctx, opts, cfg, rc); err != nil {
			presenter.Error(err, "Failed to resolve")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewResolveConfig()
	resolveCmd.Flags().StringP("env", "e", defaults.Environment, "Environment whose bundle is used")
	resolveCmd.Flags().StringP("unit", "u", defaults.UnitKey, "Unit key to resolve for")
	resolveCmd.Flags().String("unit-attribute", defaults.UnitAttribute, "Context attribute carrying the unit key")
	resolveCmd.Flags().StringToString("attr", defaults.Attributes, "Context attribute as key=value; repeatable")
	resolveCmd.Flags().StringSliceP("param", "p", defaults.Parameters, "Only resolve these parameter keys")
}

func getResolveConfigFromFlags(cmd *cobra.Command) *ResolveConfig {
	c := NewResolveConfig()

	if env, err := cmd.Flags().GetString("env"); err == nil {
		c.Environment = env
	}
	if unit, err := cmd.Flags().GetString("unit"); err == nil {
		c.UnitKey = unit
	}
	if attr, err := cmd.Flags().GetString("unit-attribute"); err == nil {
		c.UnitAttribute = attr
	}
	if attrs, err := cmd.Flags().GetStringToString("attr"); err == nil {
		c.Attributes = attrs
	}
	if params, err := cmd.Flags().GetStringSlice("param"); err == nil {
		c.Parameters = params
	}

	return c
}

// attributeContext builds the resolution context, decoding each value as a
// YAML scalar so numbers and booleans compare as such.
func attributeContext(rc *ResolveConfig) client.Context {
	attrs := client.Context{}
	for k, raw := range rc.Attributes {
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		attrs[k] = v
	}
	if rc.UnitKey != "" {
		attrs[rc.UnitAttribute] = rc.UnitKey
	}
	return attrs
}

func resolveDefaults(cfg *config.Config, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		keys = cfg.SortedParameterKeys()
	}
	defaults := make(map[string]any, len(keys))
	for _, key := range keys {
		p, ok := cfg.Parameters[key]
		if !ok {
			return nil, errors.Errorf("parameter %q is not declared in the config", key)
		}
		defaults[key] = p.Default
	}
	return defaults, nil
}

func runResolve(ctx context.Context, opts client.Options, cfg *config.Config, rc *ResolveConfig) (client.Decision, error) {
	defaults, err := resolveDefaults(cfg, rc.Parameters)
	if err != nil {
		return client.Decision{}, err
	}

	opts.DisableTracking = true
	opts.RefreshInterval = -1
	c, err := client.New(ctx, opts)
	if err != nil {
		return client.Decision{}, err
	}
	defer c.Close(ctx)

	if err := c.Refresh(ctx); err != nil {
		return client.Decision{}, errors.Wrap(err, "failed to fetch bundle")
	}

	d := c.DecideParams(ctx, attributeContext(rc), defaults)

	if info, ok := c.BundleInfo(); ok {
		presenter.Info(fmt.Sprintf("Bundle v%d for %s/%s", info.Version, info.ProjectID, info.Environment))
	}

	keys := make([]string, 0, len(d.Values))
	for k := range d.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(d.Values[k])
		def, _ := json.Marshal(defaults[k])
		rows = append(rows, []string{k, string(v), string(def)})
	}
	presenter.Table([]string{"PARAMETER", "VALUE", "DEFAULT"}, rows)

	if len(d.Assignments) > 0 {
		rows = rows[:0]
		for _, a := range d.Assignments {
			rows = append(rows, []string{a.LayerID, a.PolicyID, a.Allocation, fmt.Sprint(a.Bucket)})
		}
		presenter.Section("Assignments")
		presenter.Table([]string{"LAYER", "POLICY", "ALLOCATION", "BUCKET"}, rows)
	} else {
		presenter.Info("No experiment assignments for this unit")
	}
	return d, nil
}
