package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/indexer"
	"github.com/nsearch/ns/internal/ui"
)

// indexOptions holds CLI flags for index builds.
type indexOptions struct {
	incremental bool
	root        string
	maxFileSize int64
	workers     int
	quiet       bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the index",
		Long: `Build the index under .ns/ at the repository root.

A full build walks the whole tree. With --incremental only files that
changed since the last build are re-indexed, using git state when the
root is a repository and timestamps otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "Re-index only changed files")
	cmd.Flags().StringVar(&opts.root, "root", "", "Repository root (default: discovered from the working directory)")
	cmd.Flags().Int64Var(&opts.maxFileSize, "max-file-size", config.DefaultMaxFileSize, "Maximum file size to index in bytes")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent file workers (0 = number of CPUs)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")

	return cmd
}

func runIndex(cmd *cobra.Command, opts indexOptions) error {
	root := opts.root
	if root == "" {
		var err error
		if root, err = config.FindRoot("."); err != nil {
			return nserr.Config("resolve repository root", err)
		}
	}
	setupLogging(config.DataDir(root))

	cfg, err := config.Load(root)
	if err != nil {
		return nserr.Config("load configuration", err)
	}

	maxSize := opts.maxFileSize
	if maxSize == config.DefaultMaxFileSize && cfg.Index.MaxFileSize > 0 {
		maxSize = cfg.Index.MaxFileSize
	}
	workers := opts.workers
	if workers == 0 {
		workers = cfg.Index.Workers
	}

	progress := ui.NewProgress(cmd.OutOrStdout(), opts.quiet)

	ix, err := indexer.New(root)
	if err != nil {
		return err
	}

	buildOpts := indexer.Options{
		MaxFileSize: maxSize,
		Workers:     workers,
		Exclude:     cfg.Paths.Exclude,
		Progress:    progress.Update,
	}

	var report *indexer.Report
	if opts.incremental {
		report, err = ix.BuildIncremental(cmd.Context(), buildOpts)
	} else {
		report, err = ix.BuildFull(cmd.Context(), buildOpts)
	}
	if err != nil {
		progress.Done("index failed")
		return err
	}

	if opts.incremental {
		progress.Done(fmt.Sprintf("indexed +%d ~%d -%d (unchanged %d) in %s",
			report.Added, report.Modified, report.Deleted, report.Unchanged,
			report.Elapsed.Round(time.Millisecond)))
	} else {
		progress.Done(fmt.Sprintf("indexed %d files in %s",
			report.Added, report.Elapsed.Round(time.Millisecond)))
	}
	return nil
}
