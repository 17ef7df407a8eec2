package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/doubtflow/pkg/adapters/file"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file-or-dir]...",
	Short: "Check flow files for consistency",
	Long: `Loads flow documents and reports duplicate ids, unknown node types, a missing start node
and options pointing at nodes that do not exist. Nodes no option path reaches are listed as warnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			paths = cfg.Flows.Paths
		}
		if len(paths) == 0 {
			return errors.New("no flow files given")
		}

		flows, err := file.NewLoader(paths...).Load(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		invalid := 0
		for _, flow := range flows {
			if err := domain.Validate(flow); err != nil {
				invalid++
				fmt.Fprintf(out, "✗ %s\n", flow.ID)
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintf(out, "    - %s\n", p)
					}
				}
				continue
			}
			fmt.Fprintf(out, "✓ %s\n", flow.ID)
			if unreachable := domain.Unreachable(flow); len(unreachable) > 0 {
				fmt.Fprintf(out, "    warning: unreachable nodes: %s\n", strings.Join(unreachable, ", "))
			}
		}

		if invalid > 0 {
			return fmt.Errorf("validation failed: %d of %d flows invalid", invalid, len(flows))
		}
		fmt.Fprintf(out, "All %d flows are valid! ✅\n", len(flows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
