// debounce.go coalesces bursts of change events per path into single
// dispatch signals.
//
// Each path runs an Idle -> Pending(timer) -> Idle state machine: the first
// event arms a timer, further events reset it, and only a quiet window
// fires a dispatch. This is a debounce, not a throttle - editors that write
// a temp file and rename it produce several events per save and must
// collapse to one execution.
package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the quiet period before a change fires a dispatch.
const DefaultWindow = 100 * time.Millisecond

// Debouncer coalesces repeated events for the same path.
// Distinct paths are independent; no ordering is promised across paths.
type Debouncer struct {
	window time.Duration
	out    chan string
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	gens    map[string]uint64
	stopped bool
}

// NewDebouncer creates a debouncer with the given window.
// A non-positive window selects DefaultWindow.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window: window,
		out:    make(chan string, eventBuffer),
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
		logger: logger.With(slog.String("component", "debounce")),
	}
}

// Notify records a change for path, superseding any pending timer.
//
// Each event arms a fresh timer instead of resetting the old one: a timer
// that has already fired can have its callback blocked behind this mutex,
// and resetting it would let that stale callback emit alongside the
// re-armed one. The generation number lets fire tell the live timer's
// callback from a superseded one.
func (d *Debouncer) Notify(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.gens[path]++
	gen := d.gens[path]

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.fire(path, gen)
	})
}

// Ready returns the channel of debounced dispatch signals, one path per
// coalesced burst.
func (d *Debouncer) Ready() <-chan string {
	return d.out
}

// Stop discards all pending timers without firing them. Signals already
// emitted remain readable from Ready.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
		delete(d.gens, path)
	}
}

// fire emits the dispatch signal for path and returns it to Idle.
// A callback whose generation was superseded by a later Notify emits
// nothing; the newer timer carries the burst.
func (d *Debouncer) fire(path string, gen uint64) {
	d.mu.Lock()
	if d.stopped || d.gens[path] != gen {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	delete(d.gens, path)
	d.mu.Unlock()

	select {
	case d.out <- path:
	default:
		// The dispatcher has stalled badly; dropping is safer than
		// blocking every timer goroutine.
		d.logger.Warn("dispatch channel full, dropping signal",
			slog.String("path", path),
		)
	}
}
