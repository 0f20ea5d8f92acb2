// Package dispatch enforces single-flight execution per file path.
//
// A dispatch signal for an idle path starts an execution goroutine. A signal
// arriving while that path is already running marks one trailing rerun;
// further signals while a rerun is pending are no-ops - only the latest
// trailing intent matters, not how many saves happened. When a run finishes
// with a rerun pending, the path is executed once more immediately. A file
// saved mid-execution is therefore always re-run exactly once, never dropped
// and never queued unboundedly.
//
// Different paths execute in parallel; the same path is always serialized.
package dispatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codewatch/codewatch/internal/handlers"
	"github.com/codewatch/codewatch/internal/history"
)

// ResultFunc is invoked once per completed execution, success or failure.
type ResultFunc func(*handlers.ExecutionResult)

// Dispatcher runs files through the handler registry with per-path
// single-flight semantics and records outcomes in the history store.
type Dispatcher struct {
	registry *handlers.Registry
	store    *history.Store
	onResult ResultFunc
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]bool
	rerun   map[string]bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. onResult may be nil when the caller does not
// consume results (e.g. one-shot CLI runs go through ExecuteNow instead).
func New(registry *handlers.Registry, store *history.Store, logger *slog.Logger, onResult ResultFunc) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		store:    store,
		onResult: onResult,
		logger:   logger.With(slog.String("component", "dispatch")),
		running:  make(map[string]bool),
		rerun:    make(map[string]bool),
	}
}

// Dispatch requests an execution of path. If the path is idle a new
// execution starts immediately; if it is running, one trailing rerun is
// remembered.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running[path] {
		if !d.rerun[path] {
			d.rerun[path] = true
			d.logger.Debug("rerun queued for running path",
				slog.String("path", path),
			)
		}
		return
	}

	d.running[path] = true
	d.wg.Add(1)
	go d.runLoop(ctx, path)
}

// runLoop executes path, then keeps re-executing while trailing reruns are
// pending, and finally returns the path to idle.
func (d *Dispatcher) runLoop(ctx context.Context, path string) {
	defer d.wg.Done()

	for {
		res := d.execute(ctx, path)
		if res != nil && d.onResult != nil {
			d.onResult(res)
		}

		d.mu.Lock()
		if d.rerun[path] {
			delete(d.rerun, path)
			d.mu.Unlock()
			continue
		}
		delete(d.running, path)
		d.mu.Unlock()
		return
	}
}

// execute runs path once and appends the outcome to history. A missing
// handler yields an error result without touching the runner or the store.
// A persistence failure is logged; the result is still delivered.
func (d *Dispatcher) execute(ctx context.Context, path string) *handlers.ExecutionResult {
	res, err := d.ExecuteNow(ctx, path)
	if err != nil {
		// Unsupported input is not a recorded execution attempt, but the
		// delivered result still gets a timestamp for display.
		return &handlers.ExecutionResult{
			FilePath:     path,
			Success:      false,
			ErrorMessage: err.Error(),
			Timestamp:    time.Now().UTC(),
		}
	}
	return res
}

// ExecuteNow resolves the handler for path, runs it once, and records the
// outcome. It bypasses single-flight state entirely and is also used for
// one-shot executions outside the watch loop.
func (d *Dispatcher) ExecuteNow(ctx context.Context, path string) (*handlers.ExecutionResult, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	h, err := d.registry.Resolve(ext)
	if err != nil {
		return nil, err
	}

	d.logger.Info("executing file",
		slog.String("path", path),
		slog.String("language", h.Name()),
	)

	res := h.Execute(ctx, path)

	d.logger.Info("execution complete",
		slog.String("path", path),
		slog.Bool("success", res.Success),
		slog.Duration("duration", res.Duration),
	)

	// Failed runs persist the error message as the preview
	preview := res.Output
	if !res.Success {
		preview = res.ErrorMessage
	}

	rec := history.NewRecord(res.FilePath, res.Success, res.Duration.Seconds(), res.Timestamp, preview)
	if err := d.store.Append(rec); err != nil {
		// Persistence failures never crash the watch loop; the caller
		// still gets the in-memory result.
		d.logger.Error("failed to record execution",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	return res, nil
}

// InFlight reports whether an execution for path is currently running.
func (d *Dispatcher) InFlight(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[path]
}

// Shutdown waits for in-flight executions to finish or the context to
// expire. Subprocesses themselves are bounded by their own timeouts and by
// ctx cancellation propagating into the runner.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
