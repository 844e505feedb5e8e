package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid filesystem events so a burst of writes
// triggers one rebuild instead of many. Paths accumulate until the
// window elapses with no new events, then the batch is emitted.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	output  chan []string
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		output:  make(chan []string, 4),
	}
}

// Add records a changed path and (re)arms the flush timer.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits the pending batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(d.pending))
	for p := range d.pending {
		batch = append(batch, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	select {
	case d.output <- batch:
	default:
		// A rebuild is already queued; the next change detection pass
		// picks these paths up anyway.
	}
}

// Batches returns the channel of coalesced path batches.
func (d *Debouncer) Batches() <-chan []string {
	return d.output
}

// Stop stops the debouncer and closes the batch channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
