package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/hooks"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage git hooks that keep the index fresh",
		Long: `Install or remove git hooks (post-commit, post-merge, post-checkout)
that run 'ns index --incremental' in the background after the repository
state changes.`,
	}
	cmd.AddCommand(newHooksInstallCmd())
	cmd.AddCommand(newHooksRemoveCmd())
	return cmd
}

func newHooksInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the git hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindRoot(".")
			if err != nil {
				return nserr.Config("resolve repository root", err)
			}
			installed, err := hooks.Install(root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed: %s\n", strings.Join(installed, ", "))
			return nil
		},
	}
}

func newHooksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the git hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindRoot(".")
			if err != nil {
				return nserr.Config("resolve repository root", err)
			}
			removed, err := hooks.Remove(root)
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no managed hooks found")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", strings.Join(removed, ", "))
			return nil
		},
	}
}
