package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/logging"
	"github.com/nsearch/ns/internal/output"
	"github.com/nsearch/ns/internal/search"
	"github.com/nsearch/ns/internal/store"
	"github.com/nsearch/ns/internal/telemetry"
	"github.com/nsearch/ns/internal/ui"
)

// searchOptions holds the CLI flags shared by the default invocation and
// the explicit search subcommand.
type searchOptions struct {
	lang       string
	glob       string
	pathsOnly  bool
	maxCount   int
	context    int
	symOnly    bool
	fuzzy      bool
	jsonOut    bool
	ignoreCase bool
}

// addSearchFlags registers the search flag set on a command.
func addSearchFlags(cmd *cobra.Command, opts *searchOptions) {
	cmd.Flags().StringVarP(&opts.lang, "type", "t", "", "Filter by language tag (rust, typescript, javascript, python, go, elixir, text)")
	cmd.Flags().StringVarP(&opts.glob, "glob", "g", "", "Filter paths by glob (supports ** and bracket classes)")
	cmd.Flags().BoolVarP(&opts.pathsOnly, "files", "l", false, "Print matching paths only")
	cmd.Flags().IntVarP(&opts.maxCount, "max-count", "m", search.DefaultMaxResults, "Maximum number of results")
	cmd.Flags().IntVarP(&opts.context, "context", "C", search.DefaultContextLines, "Context lines around matches (0 disables)")
	cmd.Flags().BoolVar(&opts.symOnly, "sym", false, "Search symbol definitions only")
	cmd.Flags().BoolVar(&opts.fuzzy, "fuzzy", false, "Allow one edit of fuzz per term")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit results as JSON")
	cmd.Flags().BoolVarP(&opts.ignoreCase, "ignore-case", "i", false, "Accepted for compatibility; search is always case-folded")
}

// newSearchCmd is the explicit form, needed when the query collides with
// a subcommand name.
func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index. Equivalent to the bare invocation; use this form
when the query would be mistaken for a subcommand name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, opts)
		},
	}
	addSearchFlags(cmd, &opts)
	return cmd
}

// runSearch executes a query and writes the report.
func runSearch(cmd *cobra.Command, args []string, opts searchOptions) error {
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

	q := search.Query{
		Terms:        args,
		LangFilter:   opts.lang,
		GlobFilter:   opts.glob,
		SymbolOnly:   opts.symOnly,
		Fuzzy:        opts.fuzzy,
		MaxResults:   opts.maxCount,
		ContextLines: opts.context,
		PathsOnly:    opts.pathsOnly,
	}

	start := time.Now()
	report, err := search.New(st).Search(cmd.Context(), q)
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.Int("results", len(report.Results)),
		slog.Int64("elapsed_ms", report.Stats.ElapsedMs))

	recordQuery(dataDir, args, time.Since(start), len(report.Results))

	format := output.FormatText
	switch {
	case opts.jsonOut:
		format = output.FormatJSON
	case opts.pathsOnly:
		format = output.FormatPaths
	}

	styles := ui.PlainStyles()
	if format == output.FormatText && ui.IsTerminal(cmd.OutOrStdout()) {
		styles = ui.DefaultStyles()
	}

	if err := output.Write(cmd.OutOrStdout(), report, format, styles); err != nil {
		return err
	}

	if len(report.Results) == 0 {
		return nserr.ErrNoResults
	}
	return nil
}

// recordQuery stores telemetry, best-effort.
func recordQuery(dataDir string, terms []string, elapsed time.Duration, results int) {
	metrics, err := telemetry.Open(dataDir)
	if err != nil {
		slog.Debug("telemetry_open_failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = metrics.Close() }()

	if err := metrics.RecordQuery(strings.Join(terms, " "), elapsed, results); err != nil {
		slog.Debug("telemetry_record_failed", slog.String("error", err.Error()))
	}
}

// setupLogging initializes file logging for a command invocation.
func setupLogging(dataDir string) {
	cfg := logging.DefaultConfig(dataDir)
	if debugMode {
		cfg = logging.DebugConfig(dataDir)
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		// No data directory yet; stay quiet rather than creating one as
		// a side effect of an ad-hoc command.
		cfg.FilePath = ""
	}
	if _, err := logging.Setup(cfg); err != nil {
		slog.Debug("logging_setup_failed", slog.String("error", err.Error()))
	}
}
