// Package cmd provides the CLI commands for ns.
package cmd

import (
	"github.com/spf13/cobra"

	nserr "github.com/nsearch/ns/internal/errors"
)

// debugMode mirrors the --debug persistent flag.
var debugMode bool

// NewRootCmd creates the root command. A bare invocation with positional
// arguments runs a search; a first argument naming a subcommand runs
// that subcommand. Queries that collide with a subcommand name go
// through `ns search <query>` or after the `--` separator.
func NewRootCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "ns [query]",
		Short: "Ranked file search for code",
		Long: `ns indexes a repository into .ns/ and answers BM25-ranked queries
with symbol-definition matches boosted above incidental text matches.

  ns "http client"            search the index
  ns search index             search for a term that names a subcommand
  ns -- index                 same, via the flag separator
  ns index                    build the index
  ns index --incremental      update the index`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSearch(cmd, args, opts)
		},
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to .ns/log/")
	addSearchFlags(cmd, &opts)

	// Flag parse failures are usage errors, not runtime errors.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return nserr.Config(err.Error(), nil)
	})

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
