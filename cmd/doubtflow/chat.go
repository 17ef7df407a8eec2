package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/doubtflow/internal/cli"
	"github.com/spf13/cobra"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [flow-id]",
	Short: "Run an interactive learner session in the terminal",
	Long: `Starts a learner session on a flow. Pick options by number or label and type free-text
questions on AI steps. Without a flow id you are asked to choose one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		jsonMode, _ := cmd.Flags().GetBool("json")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.Build(ctx, cfg, logger, cli.BuildOptions{Debug: debug})
		if err != nil {
			return fmt.Errorf("error initializing doubtflow: %w", err)
		}
		defer app.Close()

		opts := cli.ChatOptions{JSON: jsonMode}
		if len(args) > 0 {
			opts.FlowID = args[0]
		}
		return cli.RunChat(ctx, app, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
}
