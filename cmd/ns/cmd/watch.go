package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/indexer"
	"github.com/nsearch/ns/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild incrementally as files change",
		Long: `Watch the repository and run an incremental build after each quiet
window of filesystem changes. Runs in the foreground; stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command) error {
	root, err := config.FindRoot(".")
	if err != nil {
		return nserr.Config("resolve repository root", err)
	}
	setupLogging(config.DataDir(root))

	cfg, err := config.Load(root)
	if err != nil {
		return nserr.Config("load configuration", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ix, err := indexer.New(root)
	if err != nil {
		return err
	}
	buildOpts := indexer.Options{
		MaxFileSize: cfg.Index.MaxFileSize,
		Workers:     cfg.Index.Workers,
		Exclude:     cfg.Paths.Exclude,
	}

	// Catch up before watching.
	if _, err := ix.BuildIncremental(ctx, buildOpts); err != nil {
		return err
	}

	w, err := watcher.New(root, cfg.WatchDebounce())
	if err != nil {
		return nserr.IO("start watcher", err)
	}
	defer func() { _ = w.Close() }()
	go w.Run(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", root)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			slog.Debug("watch_rebuild", slog.Int("changed_paths", len(batch)))
			report, err := ix.BuildIncremental(ctx, buildOpts)
			if err != nil {
				// A concurrent build holding the lock is expected; the
				// next batch retries.
				if nserr.KindOf(err) == nserr.KindLock {
					slog.Debug("watch_rebuild_skipped_lock_held")
					continue
				}
				return err
			}
			if report.Added+report.Modified+report.Deleted > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "reindexed +%d ~%d -%d\n",
					report.Added, report.Modified, report.Deleted)
			}
		}
	}
}
