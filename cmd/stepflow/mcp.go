package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/stepflow/internal/cli"
	"github.com/aretw0/stepflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp [catalog]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the stepflow engine as an MCP Server.
This allows AI agents to drive wizard sessions through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		rt, err := openRuntime(cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine.Manager(), mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Logs go to Stderr, so they never corrupt JSON-RPC on Stdout.
			logger.Info("starting stepflow MCP server", "transport", transport)
			return srv.ServeStdio()
		case "sse":
			logger.Info("starting stepflow MCP server", "transport", transport, "port", port)

			sigCtx := cli.NewSignalContext(cmd.Context())
			defer sigCtx.Cancel()

			if err := srv.ServeSSE(sigCtx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
