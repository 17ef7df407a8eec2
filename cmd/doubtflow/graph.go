package main

import (
	"fmt"

	"github.com/aretw0/doubtflow"
	"github.com/aretw0/doubtflow/internal/presentation/graph"
	"github.com/aretw0/doubtflow/pkg/adapters/file"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export a flow as a Mermaid diagram",
	Long:  `Outputs a Mermaid diagram (graph TD) of the flow's nodes and options.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []doubtflow.Option{doubtflow.WithLogger(logger)}
		if cfg.Flows.Defaults {
			opts = append(opts, doubtflow.WithDefaultFlows())
		}
		if len(cfg.Flows.Paths) > 0 {
			opts = append(opts, doubtflow.WithLoader(file.NewLoader(cfg.Flows.Paths...)))
		}
		eng, err := doubtflow.New(cmd.Context(), opts...)
		if err != nil {
			return fmt.Errorf("error initializing doubtflow: %w", err)
		}

		flow, err := eng.Flows().Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("flow %q: %w", args[0], err)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(flow, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
