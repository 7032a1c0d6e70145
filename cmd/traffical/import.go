package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

var importCmd = &cobra.Command{
	Use:   "import <pattern>",
	Short: "Copy platform parameters matching a pattern into the local config",
	Long: `Copy parameters defined on the platform into the local config. Patterns are
dot-separated globs: "ui.*" matches one segment, "checkout.**" any depth.
Parameters already declared locally are left as they are.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		client, _, err := newPlatformClient(ctx, credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}

		if _, err := runImport(ctx, client, projectConfigPath(), args[0], dryRun); err != nil {
			presenter.Error(err, "Import failed")
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Show the config diff without writing it")
}

func runImport(ctx context.Context, api projectsync.API, path, pattern string, dryRun bool) ([]string, error) {
	local, err := loadProjectConfig(path)
	if err != nil {
		return nil, err
	}
	remote, err := projectsync.FetchRemote(ctx, api, local.Project.ID)
	if err != nil {
		return nil, err
	}

	updated, added, err := projectsync.Import(local, remote, pattern)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		presenter.Warning(fmt.Sprintf("No new platform parameters match %q", pattern))
		return nil, nil
	}

	diff, err := projectsync.DryRunDiff(path, local, updated)
	if err != nil {
		return nil, err
	}
	presenter.Diff(diff)

	if dryRun {
		presenter.Info(fmt.Sprintf("Dry run: %s would be imported", pluralize(len(added), "parameter")))
		return added, nil
	}

	if err := updated.Save(path); err != nil {
		return nil, err
	}
	presenter.Success(fmt.Sprintf("Imported %s into %s", pluralize(len(added), "parameter"), path))
	return added, nil
}
