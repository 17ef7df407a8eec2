package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/doubtflow/internal/cli"
	"github.com/aretw0/doubtflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "doubtflow",
	Short: "DoubtFlow runs branching doubt-resolution chats for learners",
	Long: `DoubtFlow guides learners through pre-authored flows of Question, Answer and AI steps.
Flows are loaded from YAML or JSON files (plus the built-in demonstration flows) and served
over HTTP, MCP or an interactive terminal chat.`,
	SilenceUsage: true,
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
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./doubtflow.yaml when present)")
	rootCmd.PersistentFlags().StringSlice("flows", nil, "Flow files or directories to load (repeatable)")
	rootCmd.PersistentFlags().Bool("no-defaults", false, "Do not load the built-in demonstration flows")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().Bool("debug", false, "Verbose logging including lifecycle events")
}

// loadConfig reads the configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Changed("flows") {
		cfg.Flows.Paths, _ = cmd.Flags().GetStringSlice("flows")
	}
	if noDefaults, _ := cmd.Flags().GetBool("no-defaults"); noDefaults {
		cfg.Flows.Defaults = false
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	return cfg, cli.CreateLogger(cfg.LogLevel(), cfg.LogFormat(), debug), nil
}
