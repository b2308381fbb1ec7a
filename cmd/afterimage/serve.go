package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/afterimage-mcp/internal/mcp"
	"github.com/dshills/afterimage-mcp/internal/storage"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := flags.openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			eng.Logger.Info("MCP server starting",
				"version", version,
				"build_mode", storage.BuildMode,
				"storage", eng.Config.Storage.Path,
				"embedder", eng.Embedder.Provider())

			if err := mcp.NewServer(eng).Serve(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return err
			}
			eng.Logger.Info("server stopped")
			return nil
		},
	}
}
