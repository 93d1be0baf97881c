package main

import (
	"fmt"

	"github.com/nvandessel/netwave/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Serve netwave_simulate, netwave_benchmark, netwave_graph and
netwave_results to an MCP client over stdin/stdout. Tool calls start from
the effective configuration; saved runs go to the results database.

Logs are written to stderr so they never mix with the protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			rt := newRuntime(cmd, settings)
			defer rt.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "netwave",
				Version:  version,
				Settings: settings,
				Logger:   rt.logger,
				Events:   rt.events,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt.logger.Info("mcp server started", "version", version, "database", settings.Output.DatabasePath())
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}
