// Package session wires the watch pipeline together and exposes the
// public surface consumed by the CLI: start/stop watching, one-shot
// execution, history queries, statistics, and history clearing.
//
// All watch state is owned by the Session value. Nothing here is package
// level, so multiple sessions can coexist in one process and tests run in
// isolation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/dispatch"
	"github.com/codewatch/codewatch/internal/handlers"
	"github.com/codewatch/codewatch/internal/history"
	"github.com/codewatch/codewatch/internal/runner"
	"github.com/codewatch/codewatch/internal/watcher"
)

// stopGrace bounds how long Stop lets in-flight executions keep running
// before their process groups are killed.
const stopGrace = 10 * time.Second

// killDrain bounds the wait for killed executions to unwind; the runner's
// WaitDelay guarantees they do.
const killDrain = 10 * time.Second

// Session owns the handler registry, the history store, and at most one
// active watch pipeline.
type Session struct {
	cfg      *config.Config
	store    *history.Store
	registry *handlers.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	watching bool
}

// New opens the history store and registers the configured language
// handlers.
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	run := runner.New(logger)
	run.OutputLimit = cfg.OutputLimitBytes
	timeout := cfg.ExecTimeout()

	registry := handlers.NewRegistry()
	registry.Register("py", handlers.NewPythonHandler(run, cfg.PythonCommand, timeout))
	registry.Register("go", handlers.NewGoHandler(run, cfg.GoCommand, timeout))
	registry.Register("sh", handlers.NewShellHandler(run, cfg.ShellCommand, timeout))

	// Missing interpreters are not fatal: files of that language fail at
	// launch and the failure is recorded like any other. Resolving here
	// also primes the runner's command cache.
	for _, command := range []string{cfg.PythonCommand, cfg.GoCommand, cfg.ShellCommand} {
		if _, err := run.Resolve(command); err != nil {
			logger.Warn("interpreter not found, its files will fail to run",
				slog.String("command", command),
			)
		}
	}

	return &Session{
		cfg:      cfg,
		store:    store,
		registry: registry,
		logger:   logger.With(slog.String("component", "session")),
	}, nil
}

// Store exposes the history store for components that share it (retention).
func (s *Session) Store() *history.Store {
	return s.store
}

// Handle controls one running watch pipeline.
type Handle struct {
	cancelWatch context.CancelFunc
	cancelExec  context.CancelFunc
	disp        *dispatch.Dispatcher
	done        chan struct{}
	once        sync.Once
	sess        *Session
}

// Stop shuts the pipeline down: the detector stops accepting events and
// pending debounce timers are discarded immediately, but in-flight
// executions run on their own context and are only killed once the grace
// period expires. Returns the grace-period error when executions had to be
// force-terminated.
func (h *Handle) Stop() error {
	var err error
	h.once.Do(func() {
		// No new work: stop the detector and the dispatch loop, leave
		// running subprocesses alone.
		h.cancelWatch()

		ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		err = h.disp.Shutdown(ctx)

		// Grace expired or everything finished; either way the execution
		// context is done now. Cancellation propagates into the runner and
		// kills remaining process groups.
		h.cancelExec()
		if err != nil {
			drainCtx, drainCancel := context.WithTimeout(context.Background(), killDrain)
			defer drainCancel()
			h.disp.Shutdown(drainCtx)
		}

		<-h.done

		h.sess.mu.Lock()
		h.sess.watching = false
		h.sess.mu.Unlock()
	})
	return err
}

// Shutdown stops the pipeline; it satisfies the coordinator's Shutdowner
// interface. The handle applies its own grace period, so ctx is unused.
func (h *Handle) Shutdown(ctx context.Context) error {
	return h.Stop()
}

// StartWatch begins the watch pipeline on root and invokes onResult once
// per completed execution until the handle is stopped. Root validation
// failures are fatal; everything after startup degrades gracefully.
func (s *Session) StartWatch(ctx context.Context, root string, onResult dispatch.ResultFunc) (*Handle, error) {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is already watching")
	}
	s.watching = true
	s.mu.Unlock()

	detector, err := watcher.NewDetector(root, s.logger)
	if err != nil {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
		return nil, err
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	// Executions deliberately do not inherit the watch context: Stop cancels
	// event intake first and kills subprocesses only after the grace period.
	execCtx, cancelExec := context.WithCancel(context.Background())
	deb := watcher.NewDebouncer(s.cfg.DebounceWindow(), s.logger)
	disp := dispatch.New(s.registry, s.store, s.logger, onResult)

	done := make(chan struct{})

	go detector.Run(watchCtx)
	go s.filterLoop(detector, deb)
	go s.dispatchLoop(watchCtx, execCtx, deb, disp, done)

	s.logger.Info("watch started",
		slog.String("root", root),
		slog.Duration("debounce", s.cfg.DebounceWindow()),
	)

	return &Handle{
		cancelWatch: cancelWatch,
		cancelExec:  cancelExec,
		disp:        disp,
		done:        done,
		sess:        s,
	}, nil
}

// filterLoop feeds supported file events into the debouncer. It exits when
// the detector closes its event channel.
func (s *Session) filterLoop(detector *watcher.Detector, deb *watcher.Debouncer) {
	for ev := range detector.Events() {
		ext := strings.TrimPrefix(filepath.Ext(ev.Path), ".")
		if !s.registry.Supported(ext) {
			continue
		}
		// The file may already be gone (editor temp files)
		if info, err := os.Stat(ev.Path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		deb.Notify(ev.Path)
	}
	deb.Stop()
}

// dispatchLoop turns debounced signals into executions until the watch
// context is cancelled. Executions run on execCtx so that stopping the
// watch does not tear them down mid-run.
func (s *Session) dispatchLoop(watchCtx, execCtx context.Context, deb *watcher.Debouncer, disp *dispatch.Dispatcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-watchCtx.Done():
			return
		case path := <-deb.Ready():
			disp.Dispatch(execCtx, path)
		}
	}
}

// ExecuteOnce runs a single file outside the watch loop, bypassing
// debouncing and dispatcher state. The outcome is still recorded.
func (s *Session) ExecuteOnce(ctx context.Context, path string) (*handlers.ExecutionResult, error) {
	disp := dispatch.New(s.registry, s.store, s.logger, nil)
	return disp.ExecuteNow(ctx, path)
}

// History returns up to limit records, newest first.
func (s *Session) History(limit int) ([]history.ExecutionRecord, error) {
	return s.store.List(limit)
}

// FileHistory returns up to limit records for one file, newest first.
func (s *Session) FileHistory(path string, limit int) ([]history.ExecutionRecord, error) {
	return s.store.ListByFile(path, limit)
}

// SectionHistory returns up to limit records for one section, newest first.
func (s *Session) SectionHistory(section string, limit int) ([]history.ExecutionRecord, error) {
	return s.store.ListBySection(section, limit)
}

// Stats recomputes aggregate statistics from the full record set.
func (s *Session) Stats() (history.ExecutionStats, error) {
	return s.store.Stats()
}

// SectionStats recomputes aggregate statistics for one section.
func (s *Session) SectionStats(section string) (history.ExecutionStats, error) {
	return s.store.SectionStats(section)
}

// ClearHistory deletes all records and returns the count. Confirmation is
// the caller's concern.
func (s *Session) ClearHistory() (int, error) {
	return s.store.Clear()
}

// Sections lists the immediate subdirectories of root that contain at
// least one supported file, sorted by name.
func (s *Session) Sections(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var sections []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if s.containsSupportedFile(filepath.Join(root, entry.Name())) {
			sections = append(sections, entry.Name())
		}
	}
	sort.Strings(sections)
	return sections, nil
}

// containsSupportedFile reports whether any file under dir has a
// registered handler.
func (s *Session) containsSupportedFile(dir string) bool {
	found := false
	filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipAll
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if s.registry.Supported(ext) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// Extensions returns the registered file extensions.
func (s *Session) Extensions() []string {
	return s.registry.Extensions()
}

// Close releases the history store. Any active watch should be stopped
// first.
func (s *Session) Close() error {
	return s.store.Close()
}

// Shutdown closes the session; it satisfies the coordinator's Shutdowner
// interface.
func (s *Session) Shutdown(ctx context.Context) error {
	return s.Close()
}
