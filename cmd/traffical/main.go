package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/credentials"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/paths"
	"github.com/traffical/traffical-go/pkg/presenter"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("TRAFFICAL")
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("config", config.DefaultPath())

	// ~/.traffical/settings.yaml holds per-user CLI defaults
	if settings, err := paths.SettingsPath(); err == nil {
		viper.SetConfigFile(settings)
	}

	// Load settings file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()

	rootCmd.PersistentFlags().String("config", config.DefaultPath(), "Path to the project config file")
	rootCmd.PersistentFlags().String("api-key", "", "Traffical API key (overrides TRAFFICAL_API_KEY and the credentials file)")
	rootCmd.PersistentFlags().String("profile", "", "Credentials file profile to use")
	rootCmd.PersistentFlags().String("base-url", "", "Platform API base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	registerCommands(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   "traffical",
	Short: "Manage Traffical parameters and events from your repository",
	Long: `traffical keeps the parameters and events declared in .traffical/config.yaml
in step with the Traffical platform, and installs usage instructions for AI
coding assistants.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			presenter.SetQuiet(true)
		}
		if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
			presenter.Warning(err.Error())
		}

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return
		}
		tracingShutdown = shutdown
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	ctx := context.Background()

	// TRAFFICAL_API_KEY may live in a project-local .env
	if err := credentials.LoadDotEnv(".env"); err != nil {
		logger.G(ctx).WithError(err).Warn("ignoring unreadable .env file")
	}

	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := tracingShutdown(ctx); shutdownErr != nil {
		logger.G(ctx).WithError(shutdownErr).Debug("failed to flush traces")
	}
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}

// registerCommands attaches every subcommand to root.
func registerCommands(root *cobra.Command) {
	root.AddCommand(
		withTracing(initCmd),
		withTracing(statusCmd),
		withTracing(pushCmd),
		withTracing(pullCmd),
		withTracing(syncCmd),
		withTracing(importCmd),
		withTracing(integrateCmd),
		withTracing(resolveCmd),
		schemaCmd,
		loginCmd,
		logoutCmd,
		versionCmd,
	)
}
