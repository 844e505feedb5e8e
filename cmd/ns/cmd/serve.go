package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/mcp"
	"github.com/nsearch/ns/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdio exposing the search and
index_status tools. Useful for agent clients that keep one session open
instead of spawning a process per query. stdout carries JSON-RPC
exclusively; diagnostics go to .ns/log/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindRoot(".")
			if err != nil {
				return nserr.Config("resolve repository root", err)
			}
			dataDir := config.DataDir(root)
			setupLogging(dataDir)

			if _, err := os.Stat(filepath.Join(dataDir, store.IndexDirName)); os.IsNotExist(err) {
				return nserr.Store("no index found, run 'ns index' first", nil)
			}

			st, err := store.Open(root, dataDir)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			srv, err := mcp.NewServer(st, root)
			if err != nil {
				return nserr.Store("create MCP server", err)
			}
			defer srv.Close()

			return srv.Serve(cmd.Context())
		},
	}
}
