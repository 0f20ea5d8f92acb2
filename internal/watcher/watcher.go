// Package watcher turns OS-level directory notifications into a debounced
// stream of per-file change signals.
//
// The Detector subscribes to recursive filesystem notifications under a root
// directory and emits raw change events onto a bounded channel. Setup
// failures (missing or unreadable root) are fatal; runtime notification
// errors are logged and the watch continues, so a single hiccup never stops
// future detection. If the event channel is full the event is dropped with a
// warning rather than blocking the OS notification drain.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// eventBuffer is the capacity of the raw event channel. Editor save bursts
// are far smaller than this; the debouncer drains it quickly.
const eventBuffer = 256

// Event is one raw filesystem change.
type Event struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// Detector watches a directory tree and emits change events.
// A Detector is single-use: once Run returns it cannot be restarted.
type Detector struct {
	root   string
	fsw    *fsnotify.Watcher
	events chan Event
	logger *slog.Logger
}

// NewDetector validates the root directory and prepares a recursive watch.
// It fails fast when root does not exist, is not a directory, or cannot
// be read.
func NewDetector(root string, logger *slog.Logger) (*Detector, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("watch root %s is not readable: %w", root, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	return &Detector{
		root:   root,
		fsw:    fsw,
		events: make(chan Event, eventBuffer),
		logger: logger.With(slog.String("component", "watcher")),
	}, nil
}

// Events returns the channel of raw change events. The channel is closed
// when Run returns.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Root returns the watched root directory.
func (d *Detector) Root() string {
	return d.root
}

// Run watches until ctx is cancelled. It adds every directory under the
// root (new subdirectories are picked up as they are created) and forwards
// write/create events for regular files. Runtime errors from the OS
// notification channel are logged and the loop continues.
func (d *Detector) Run(ctx context.Context) {
	defer close(d.events)
	defer d.fsw.Close()

	if err := d.addTree(d.root); err != nil {
		// The root was validated in NewDetector; a failure here is a
		// transient subdirectory problem, watch what we can.
		d.logger.Warn("partial watch setup", slog.String("error", err.Error()))
	}

	d.logger.Info("watching directory tree", slog.String("root", d.root))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("watcher stopping")
			return

		case ev, ok := <-d.fsw.Events:
			if !ok {
				return
			}
			d.handleEvent(ev)

		case err, ok := <-d.fsw.Errors:
			if !ok {
				return
			}
			// Best effort: a missed event must never stop detection
			d.logger.Warn("filesystem notification error",
				slog.String("error", err.Error()),
			)
		}
	}
}

// handleEvent forwards interesting events and extends the watch to new
// directories.
func (d *Detector) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := d.addTree(ev.Name); err != nil {
				d.logger.Warn("failed to watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}

	// Saves show up as Write, or as Create for editors that write a temp
	// file and rename it into place.
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	select {
	case d.events <- Event{Path: ev.Name, Op: ev.Op, Time: time.Now()}:
	default:
		d.logger.Warn("event channel full, dropping event",
			slog.String("path", ev.Name),
		)
	}
}

// addTree registers dir and all its subdirectories with the watcher.
// Hidden directories are skipped.
func (d *Detector) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if name := entry.Name(); path != dir && strings.HasPrefix(name, ".") {
			return fs.SkipDir
		}
		if err := d.fsw.Add(path); err != nil {
			d.logger.Warn("failed to watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
}
