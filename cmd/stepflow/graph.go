package main

import (
	"fmt"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:         "graph [catalog]",
	Short:       "Export the step graph visualization",
	Long:        `Inspects the catalog and outputs a Mermaid diagram (graph TD) of the steps and their dependencies.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		var overlay *graph.GraphOverlay
		if withOverlay, _ := cmd.Flags().GetBool("overlay"); withOverlay {
			sess, err := rt.Engine.Start(cmd.Context(), settings.FeatureFlags)
			if err != nil {
				return err
			}
			snap, err := sess.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			_ = sess.End(cmd.Context())
			overlay = &graph.GraphOverlay{
				Available:   snap.AvailableSteps,
				CurrentStep: snap.State.StepID,
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(rt.Engine.Registry().Steps(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("overlay", false, "Mark the steps available to a fresh session")
}
