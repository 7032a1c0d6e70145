package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/aitools"
	"github.com/traffical/traffical-go/pkg/credentials"
	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/projectsync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how the local config differs from the platform",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		showAll, _ := cmd.Flags().GetBool("all")

		client, resolved, err := newPlatformClient(ctx, credentialLookup(cmd))
		if err != nil {
			presenter.Error(err, "No credentials")
			os.Exit(1)
		}
		presenter.Info(fmt.Sprintf("API key %s (from %s, profile %s)", credentials.Mask(resolved.APIKey), resolved.Source, resolved.Profile))

		if _, err := runStatus(ctx, client, projectConfigPath(), showAll); err != nil {
			presenter.Error(err, "Failed to compute status")
			os.Exit(1)
		}

		reportAITools(".")
	},
}

func init() {
	statusCmd.Flags().Bool("all", false, "Also list unchanged items")
}

// runStatus prints the plan for the config at path and returns it.
func runStatus(ctx context.Context, api projectsync.API, path string, showAll bool) (*projectsync.Plan, error) {
	_, plan, err := loadPlan(ctx, api, path)
	if err != nil {
		return nil, err
	}

	presenter.Section(fmt.Sprintf("Project %s", plan.ProjectID))

	changes := plan.Changes
	if !showAll {
		changes = plan.Filter(projectsync.ActionCreate, projectsync.ActionUpdate, projectsync.ActionRemoteOnly)
	}
	presenter.Table(changeHeaders, changeRows(changes))

	counts := plan.Counts()
	presenter.Info(fmt.Sprintf("%s to create, %s to update, %s only on the platform, %d unchanged",
		pluralize(counts[projectsync.ActionCreate], "item"),
		pluralize(counts[projectsync.ActionUpdate], "item"),
		pluralize(counts[projectsync.ActionRemoteOnly], "item"),
		counts[projectsync.ActionUnchanged]))

	switch {
	case plan.HasLocalChanges():
		presenter.Warning("Local changes not on the platform, run 'traffical push'")
	case counts[projectsync.ActionRemoteOnly] > 0:
		presenter.Info("Platform has items missing locally, run 'traffical pull'")
	default:
		presenter.Success("In sync")
	}
	return plan, nil
}

func reportAITools(root string) {
	skills := aitools.DiscoverSkills(root)
	if _, ok := skills[aitools.SkillName]; ok {
		presenter.Info("Claude skill: installed")
	}

	detected, err := aitools.Detect(root)
	if err != nil || len(detected) == 0 {
		return
	}
	names := make([]string, len(detected))
	for i, t := range detected {
		names[i] = string(t)
	}
	presenter.Info(fmt.Sprintf("AI tools detected: %s (refresh with 'traffical integrate-ai-tools')", strings.Join(names, ", ")))
}
