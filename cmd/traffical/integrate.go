package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/aitools"
	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/presenter"
)

var integrateCmd = &cobra.Command{
	Use:   "integrate-ai-tools",
	Short: "Install Traffical instructions for AI coding assistants",
	Long: `Write instructions describing this project's parameters, events and the
traffical CLI for AI coding assistants: a Claude skill, an AGENTS.md section,
a Cursor rule and a Copilot instructions section. Assistants already
configured in the repository are detected; use --tool or --all to choose.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		names, _ := cmd.Flags().GetStringSlice("tool")

		opts := aitools.Options{All: all, ConfigPath: projectConfigPath()}
		for _, name := range names {
			tool, err := aitools.ParseTool(name)
			if err != nil {
				presenter.Error(err, "Invalid arguments")
				os.Exit(1)
			}
			opts.Tools = append(opts.Tools, tool)
		}

		if _, err := runIntegrate(ctx, ".", opts); err != nil {
			presenter.Error(err, "Failed to write AI tool instructions")
			os.Exit(1)
		}
	},
}

func init() {
	integrateCmd.Flags().Bool("all", false, "Write instructions for every supported assistant")
	integrateCmd.Flags().StringSlice("tool", nil, "Assistant to write for (claude, agents, cursor, copilot); repeatable")
}

func runIntegrate(ctx context.Context, root string, opts aitools.Options) ([]aitools.Result, error) {
	cfg, err := config.Load(opts.ConfigPath)
	switch {
	case errors.Is(err, config.ErrNotFound):
		presenter.Warning(fmt.Sprintf("%s not found, writing instructions without project details", opts.ConfigPath))
		cfg = nil
	case err != nil:
		return nil, err
	}

	results, err := aitools.Integrate(root, cfg, opts)
	for _, r := range results {
		logger.G(ctx).WithField("tool", r.Tool).WithField("path", r.Path).Debugf("instructions %s", r.Action)
		switch r.Action {
		case aitools.ActionUnchanged:
			presenter.Info(fmt.Sprintf("%s: %s is up to date", r.Tool, r.Path))
		default:
			presenter.Success(fmt.Sprintf("%s: %s %s", r.Tool, r.Action, r.Path))
		}
	}
	return results, err
}
