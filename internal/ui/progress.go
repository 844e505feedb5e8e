// Package ui provides terminal-aware rendering: a bubbletea progress bar
// for interactive index builds, a plain carriage-return fallback for
// pipes, and the lipgloss styles shared with the result formatter.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// ProgressRenderer receives build progress updates.
type ProgressRenderer interface {
	// Update reports done out of total files written.
	Update(done, total int)
	// Done finishes the render with a summary line.
	Done(summary string)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// NewProgress picks the renderer for the output: bubbletea when
// interactive, plain otherwise. Quiet mode discards all progress.
func NewProgress(out io.Writer, quiet bool) ProgressRenderer {
	if quiet {
		return noopRenderer{}
	}
	if IsTerminal(out) {
		return newTeaRenderer(out)
	}
	return &plainRenderer{out: out}
}

type noopRenderer struct{}

func (noopRenderer) Update(int, int) {}
func (noopRenderer) Done(string)     {}

// plainRenderer writes carriage-return progress suitable for logs and
// pipes.
type plainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last time.Time
}

func (r *plainRenderer) Update(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Throttle to keep piped output small.
	if time.Since(r.last) < 100*time.Millisecond && done != total {
		return
	}
	r.last = time.Now()
	_, _ = fmt.Fprintf(r.out, "\rindexing %d/%d", done, total)
}

func (r *plainRenderer) Done(summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "\r%s\n", summary)
}

// progressMsg carries an update into the bubbletea model.
type progressMsg struct {
	done, total int
}

// doneMsg finishes the program.
type doneMsg struct {
	summary string
}

// teaRenderer drives a bubbles progress bar in its own goroutine.
type teaRenderer struct {
	program *tea.Program
	wg      sync.WaitGroup
}

func newTeaRenderer(out io.Writer) *teaRenderer {
	m := &progressModel{
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
		),
	}
	r := &teaRenderer{
		program: tea.NewProgram(m, tea.WithOutput(out), tea.WithInput(nil)),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.program.Run()
	}()
	return r
}

func (r *teaRenderer) Update(done, total int) {
	r.program.Send(progressMsg{done: done, total: total})
}

func (r *teaRenderer) Done(summary string) {
	r.program.Send(doneMsg{summary: summary})
	r.wg.Wait()
}

// progressModel is the bubbletea model for an index build.
type progressModel struct {
	bar     progress.Model
	done    int
	total   int
	summary string
}

// Init implements tea.Model.
func (m *progressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil
	case doneMsg:
		m.summary = msg.summary
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 20
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m *progressModel) View() string {
	if m.summary != "" {
		return m.summary + "\n"
	}
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	return fmt.Sprintf("%s %d/%d\n", m.bar.ViewAs(pct), m.done, m.total)
}
