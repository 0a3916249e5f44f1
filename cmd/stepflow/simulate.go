package main

import (
	"os"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [catalog]",
	Short: "Walk through the wizard in the terminal",
	Long: `Starts one session and drives it from the terminal, or replays a script of actions.

Interactive commands:
  next | back | reset | context | quit
  goto <step>
  complete [step] {"field": "value"}
  profile <id> | profile off`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		scriptPath, _ := cmd.Flags().GetString("script")
		jsonMode, _ := cmd.Flags().GetBool("json")

		rt, err := openRuntime(cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		opts := cli.SimulateOptions{Flags: settings.FeatureFlags, JSON: jsonMode}
		interactive := !jsonMode && out == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
		if interactive {
			opts.Render = tui.NewRenderer()
			tui.PrintBanner(out, stepflow.Version)
		}
		sim := cli.NewSimulator(rt.Engine, out, opts)

		if scriptPath != "" {
			script, err := cli.LoadScript(scriptPath)
			if err != nil {
				return err
			}
			return sim.RunScript(cmd.Context(), script)
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()
		return sim.RunInteractive(sigCtx, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("script", "", "Replay the actions of a YAML script instead of reading commands")
	simulateCmd.Flags().Bool("json", false, "Print the final session snapshot as JSON")
}
