package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Register new and changed parameters and events on the platform",
	Long: `Create or update every parameter and event whose local definition is missing
from, or differs from, the platform. Nothing is ever deleted remotely.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		client, _, err := newPlatformClient(ctx, credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}

		if _, err := runPush(ctx, client, projectConfigPath(), dryRun); err != nil {
			presenter.Error(err, "Push failed")
			os.Exit(1)
		}
	},
}

func init() {
	pushCmd.Flags().Bool("dry-run", false, "Show what would be pushed without changing anything")
}

// runPush pushes local changes and returns the applied (or, for a dry run,
// pending) changes.
func runPush(ctx context.Context, api projectsync.API, path string, dryRun bool) ([]projectsync.Change, error) {
	_, plan, err := loadPlan(ctx, api, path)
	if err != nil {
		return nil, err
	}

	pending := plan.Filter(projectsync.ActionCreate, projectsync.ActionUpdate)
	if len(pending) == 0 {
		presenter.Success("Nothing to push")
		return nil, nil
	}
	presenter.Table(changeHeaders, changeRows(pending))

	if dryRun {
		presenter.Info(fmt.Sprintf("Dry run: %s would be pushed", pluralize(len(pending), "change")))
		return pending, nil
	}

	applied, err := projectsync.Push(ctx, api, plan)
	if len(applied) > 0 {
		presenter.Success(fmt.Sprintf("Pushed %s", pluralize(len(applied), "change")))
	}
	return applied, err
}
