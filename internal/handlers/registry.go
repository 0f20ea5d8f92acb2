// Package handlers maps file extensions to language handlers.
//
// A Handler knows how to execute a file of one language through its external
// toolchain and how to interpret the exit status. Handlers are registered
// against an extension (without the leading dot) and resolved per event by
// the dispatcher. Everything here is safe for concurrent use: registration
// happens at startup, resolution happens from many execution goroutines.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedExtension is returned by Resolve for extensions with no
// registered handler. Unsupported files are never executed or recorded.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Handler executes a single file and interprets the outcome.
type Handler interface {
	// Execute runs the file and always returns a result; failures are
	// reported inside the result, never as a panic or process crash.
	Execute(ctx context.Context, path string) *ExecutionResult

	// Name is the display name of the language (e.g. "Python").
	Name() string

	// Extension is the file extension this handler serves, without the dot.
	Extension() string
}

// Registry maps file extensions to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an extension, replacing any previous binding.
func (r *Registry) Register(ext string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ext] = h
}

// Resolve returns the handler for ext or ErrUnsupportedExtension.
func (r *Registry) Resolve(ext string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedExtension, ext)
	}
	return h, nil
}

// Supported reports whether a handler is registered for ext.
func (r *Registry) Supported(ext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[ext]
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.handlers))
	for ext := range r.handlers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
