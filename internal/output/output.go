// Package output renders search reports to the terminal. All writes are
// pipe-safe: when the downstream consumer closes early the write error is
// surfaced as a pipe error so the process can exit cleanly instead of
// panicking on every subsequent emission.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/search"
	"github.com/nsearch/ns/internal/ui"
)

// Format selects the output rendering.
type Format int

const (
	// FormatText is the human-readable default.
	FormatText Format = iota
	// FormatJSON emits the report as a single JSON object.
	FormatJSON
	// FormatPaths emits matching paths only, one per line.
	FormatPaths
)

// Write renders a report. Returns a pipe error when the sink closed.
func Write(w io.Writer, report *search.Report, format Format, styles ui.Styles) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatPaths:
		return writePaths(w, report)
	default:
		return writeText(w, report, styles)
	}
}

// writeJSON emits the verbatim JSON schema.
func writeJSON(w io.Writer, report *search.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return wrapWriteErr(err)
	}
	return nil
}

func writePaths(w io.Writer, report *search.Report) error {
	for _, r := range report.Results {
		if _, err := fmt.Fprintln(w, r.Path); err != nil {
			return wrapWriteErr(err)
		}
	}
	return nil
}

func writeText(w io.Writer, report *search.Report, styles ui.Styles) error {
	for i, r := range report.Results {
		header := fmt.Sprintf("%s %s",
			styles.Path.Render(r.Path),
			styles.Score.Render(fmt.Sprintf("(%.2f)", r.Score)))
		if len(r.MatchedSymbols) > 0 {
			header += " " + styles.Symbol.Render("sym:"+strings.Join(r.MatchedSymbols, ","))
		}
		if _, err := fmt.Fprintln(w, header); err != nil {
			return wrapWriteErr(err)
		}

		prev := 0
		for _, line := range r.Lines {
			if prev != 0 && line.Num > prev+1 {
				if _, err := fmt.Fprintln(w, styles.Dim.Render("  --")); err != nil {
					return wrapWriteErr(err)
				}
			}
			prev = line.Num
			out := fmt.Sprintf("  %s %s",
				styles.LineNum.Render(fmt.Sprintf("%4d:", line.Num)), line.Text)
			if _, err := fmt.Fprintln(w, out); err != nil {
				return wrapWriteErr(err)
			}
		}
		if i < len(report.Results)-1 && len(r.Lines) > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return wrapWriteErr(err)
			}
		}
	}

	summary := fmt.Sprintf("%d results across %d files in %dms",
		report.Stats.TotalResults, report.Stats.FilesSearched, report.Stats.ElapsedMs)
	if _, err := fmt.Fprintln(w, styles.Dim.Render(summary)); err != nil {
		return wrapWriteErr(err)
	}
	return nil
}

// wrapWriteErr classifies a sink write failure. A closed downstream is a
// clean termination, not a crash.
func wrapWriteErr(err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) {
		return nserr.Pipe(err)
	}
	return nserr.IO("write output", err)
}
