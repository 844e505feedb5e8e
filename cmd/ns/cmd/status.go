package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/store"
	"github.com/nsearch/ns/internal/telemetry"
)

func newStatusCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include query telemetry")
	return cmd
}

func runStatus(cmd *cobra.Command, verbose bool) error {
	root, err := config.FindRoot(".")
	if err != nil {
		return nserr.Config("resolve repository root", err)
	}
	dataDir := config.DataDir(root)

	if _, err := os.Stat(filepath.Join(dataDir, store.IndexDirName)); os.IsNotExist(err) {
		return nserr.Store("no index found, run 'ns index' first", nil)
	}

	meta, err := store.LoadMeta(dataDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "root:            %s\n", meta.RootPath)
	fmt.Fprintf(out, "schema version:  %d\n", meta.SchemaVersion)
	fmt.Fprintf(out, "files:           %d\n", meta.FileCount)
	fmt.Fprintf(out, "total size:      %s\n", humanize.Bytes(uint64(meta.TotalBytes)))
	if meta.HeadCommitID != "" {
		fmt.Fprintf(out, "indexed commit:  %s\n", meta.HeadCommitID)
	} else {
		fmt.Fprintf(out, "indexed commit:  (not a repository)\n")
	}
	if meta.LastFullIndexNs > 0 {
		t := time.Unix(0, meta.LastFullIndexNs)
		fmt.Fprintf(out, "last full index: %s (%s)\n",
			t.Format(time.RFC3339), humanize.Time(t))
	}

	if verbose {
		printTelemetry(cmd, dataDir)
	}
	return nil
}

// printTelemetry appends query metrics when available.
func printTelemetry(cmd *cobra.Command, dataDir string) {
	metrics, err := telemetry.Open(dataDir)
	if err != nil {
		return
	}
	defer func() { _ = metrics.Close() }()

	sum, err := metrics.Summarize()
	if err != nil {
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queries:         %d (%d with no results)\n", sum.TotalQueries, sum.ZeroResults)
	for _, bucket := range []string{"<10ms", "10-50ms", "50-100ms", "100-500ms", ">500ms"} {
		if n, ok := sum.Buckets[bucket]; ok {
			fmt.Fprintf(out, "  %-10s %d\n", bucket, n)
		}
	}
}
