package main

import (
	"encoding/json"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:         "status [catalog]",
	Short:       "Print the registry status as JSON",
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rt.Engine.Status())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
