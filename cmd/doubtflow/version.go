package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/doubtflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of doubtflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "doubtflow version %s\n", strings.TrimSpace(doubtflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
