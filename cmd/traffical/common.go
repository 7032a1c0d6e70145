package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/credentials"
	"github.com/traffical/traffical-go/pkg/httpapi"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/platform"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

const cliComponent = "traffical-cli"

// projectConfigPath returns the config file selected by --config or
// TRAFFICAL_CONFIG.
func projectConfigPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.DefaultPath()
}

// credentialLookup collects the explicit credential inputs of cmd. The
// api-key and base-url flags are read directly so that environment
// variables keep their own precedence level.
func credentialLookup(cmd *cobra.Command) credentials.Lookup {
	apiKey, _ := cmd.Flags().GetString("api-key")
	baseURL, _ := cmd.Flags().GetString("base-url")
	return credentials.Lookup{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Profile: viper.GetString("profile"),
	}
}

// newPlatformClient resolves credentials and builds a management API client.
func newPlatformClient(ctx context.Context, lookup credentials.Lookup) (*platform.Client, credentials.Resolved, error) {
	resolved, err := credentials.Resolve(lookup)
	if err != nil {
		if errors.Is(err, credentials.ErrNoAPIKey) {
			return nil, resolved, errors.Wrapf(err, "set %s, pass --api-key or run 'traffical login'", credentials.EnvAPIKey)
		}
		return nil, resolved, err
	}

	api, err := httpapi.New(resolved.BaseURL, resolved.APIKey, httpapi.WithUserAgent(cliComponent))
	if err != nil {
		return nil, resolved, err
	}

	logger.G(ctx).WithFields(map[string]any{
		"profile": resolved.Profile,
		"source":  resolved.Source,
		"baseUrl": api.BaseURL(),
	}).Debug("using platform credentials")

	return platform.New(api), resolved, nil
}

// loadProjectConfig reads and validates the project config.
func loadProjectConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, errors.Wrapf(err, "%s (run 'traffical init' first)", path)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// loadPlan loads the local config, fetches the remote project and diffs them.
func loadPlan(ctx context.Context, api projectsync.API, path string) (*config.Config, *projectsync.Plan, error) {
	cfg, err := loadProjectConfig(path)
	if err != nil {
		return nil, nil, err
	}
	remote, err := projectsync.FetchRemote(ctx, api, cfg.Project.ID)
	if err != nil {
		return nil, nil, err
	}
	return cfg, projectsync.BuildPlan(cfg, remote), nil
}

// changeRows formats changes for presenter.Table.
func changeRows(changes []projectsync.Change) [][]string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{string(c.Kind), c.Key, string(c.Action), strings.Join(c.Fields, ", ")})
	}
	return rows
}

var changeHeaders = []string{"KIND", "KEY", "ACTION", "FIELDS"}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
