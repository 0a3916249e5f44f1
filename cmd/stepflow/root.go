package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/internal/config"
	"github.com/spf13/cobra"
)

var (
	// settings and logger are resolved once per invocation, before any subcommand runs.
	settings config.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "stepflow orchestrates guided data-entry wizards",
	Long: `stepflow decides which steps of a multi-step form are shown, in what order,
and where the cursor goes as the user fills the form in. Steps and flow profiles
are declared in a catalog: a directory of Markdown/JSON/YAML documents or a single YAML file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveSettings(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", "", "Catalog directory or YAML file (default $STEPFLOW_CATALOG or .)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file read before the environment")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("flags", "", "Feature flags, e.g. media,!beta")
}

// resolveSettings layers flags over the environment over defaults.
func resolveSettings(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Catalog = dir
	}
	if !cmd.Flags().Changed("dir") && len(args) > 0 && acceptsCatalogArg(cmd) {
		cfg.Catalog = args[0]
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if v, _ := cmd.Flags().GetString("flags"); v != "" {
		cfg.FeatureFlags = config.ParseFlags(v)
	}

	l, err := cli.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	settings, logger = cfg, l
	return nil
}

// acceptsCatalogArg marks commands whose first positional argument is the catalog.
func acceptsCatalogArg(cmd *cobra.Command) bool {
	return cmd.Annotations["catalog-arg"] == "true"
}

var catalogArg = map[string]string{"catalog-arg": "true"}
