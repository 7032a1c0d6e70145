package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Copy platform definitions into the local config",
	Long: `Add parameters and events that exist only on the platform to the local config,
and replace local definitions that differ with the platform's version.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		client, _, err := newPlatformClient(ctx, credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}

		if _, err := runPull(ctx, client, projectConfigPath(), dryRun); err != nil {
			presenter.Error(err, "Pull failed")
			os.Exit(1)
		}
	},
}

func init() {
	pullCmd.Flags().Bool("dry-run", false, "Show the config diff without writing it")
}

func runPull(ctx context.Context, api projectsync.API, path string, dryRun bool) ([]projectsync.Change, error) {
	local, plan, err := loadPlan(ctx, api, path)
	if err != nil {
		return nil, err
	}

	updated, applied := projectsync.Pull(plan)
	if len(applied) == 0 {
		presenter.Success("Already up to date")
		return nil, nil
	}

	diff, err := projectsync.DryRunDiff(path, local, updated)
	if err != nil {
		return nil, err
	}
	presenter.Diff(diff)

	if dryRun {
		presenter.Info(fmt.Sprintf("Dry run: %s would be pulled", pluralize(len(applied), "change")))
		return applied, nil
	}

	if err := updated.Save(path); err != nil {
		return nil, err
	}
	presenter.Success(fmt.Sprintf("Pulled %s into %s", pluralize(len(applied), "change"), path))
	return applied, nil
}
