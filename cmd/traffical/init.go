package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/platform"
	"github.com/traffical/traffical-go/pkg/presenter"
)

// InitConfig holds configuration for the init command
type InitConfig struct {
	ProjectID string
	OrgID     string
	Force     bool
	Offline   bool
}

// NewInitConfig creates a new InitConfig with default values
func NewInitConfig() *InitConfig {
	return &InitConfig{}
}

// Validate validates the InitConfig and returns an error if invalid
func (c *InitConfig) Validate() error {
	if c.ProjectID == "" {
		return errors.New("--project is required")
	}
	return nil
}

type projectGetter interface {
	GetProject(ctx context.Context, projectID string) (*platform.Project, error)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the project config file",
	Long: `Create .traffical/config.yaml for a Traffical project, together with a JSON
Schema editors can use for completion. The project is looked up on the
platform unless --offline is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := getInitConfigFromFlags(cmd)

		if err := cfg.Validate(); err != nil {
			presenter.Error(err, "Invalid arguments")
			os.Exit(1)
		}

		var api projectGetter
		if !cfg.Offline {
			client, _, err := newPlatformClient(ctx, credentialLookup(cmd))
			if err != nil {
				presenter.Warning(fmt.Sprintf("Skipping project lookup: %v", err))
			} else {
				api = client
			}
		}

		if err := runInit(ctx, api, projectConfigPath(), cfg); err != nil {
			presenter.Error(err, "Failed to initialize project")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewInitConfig()
	initCmd.Flags().String("project", defaults.ProjectID, "Traffical project ID")
	initCmd.Flags().String("org", defaults.OrgID, "Traffical organization ID (looked up when omitted)")
	initCmd.Flags().BoolP("force", "f", defaults.Force, "Overwrite an existing config file")
	initCmd.Flags().Bool("offline", defaults.Offline, "Do not contact the platform")
}

func getInitConfigFromFlags(cmd *cobra.Command) *InitConfig {
	c := NewInitConfig()

	if projectID, err := cmd.Flags().GetString("project"); err == nil {
		c.ProjectID = projectID
	}
	if orgID, err := cmd.Flags().GetString("org"); err == nil {
		c.OrgID = orgID
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		c.Force = force
	}
	if offline, err := cmd.Flags().GetBool("offline"); err == nil {
		c.Offline = offline
	}

	return c
}

// runInit writes a new config and schema at path. api may be nil.
func runInit(ctx context.Context, api projectGetter, path string, opts *InitConfig) error {
	if !opts.Force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	orgID := opts.OrgID
	if api != nil {
		project, err := api.GetProject(ctx, opts.ProjectID)
		if err != nil {
			return errors.Wrapf(err, "failed to look up project %s", opts.ProjectID)
		}
		if orgID == "" {
			orgID = project.OrgID
		}
		presenter.Info(fmt.Sprintf("Found project %q (%s)", project.Name, project.ID))
	}

	cfg := config.New(opts.ProjectID, orgID)
	if err := cfg.Save(path); err != nil {
		return err
	}
	logger.G(ctx).WithField("path", path).Debug("wrote project config")

	schema, err := config.Schema()
	if err != nil {
		return err
	}
	schemaPath := filepath.Join(filepath.Dir(path), config.SchemaFileName)
	if err := os.WriteFile(schemaPath, schema, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", schemaPath)
	}

	presenter.Success(fmt.Sprintf("Created %s", path))
	presenter.Info("Declare parameters and events there, then run 'traffical push'.")
	return nil
}
