// golang.go provides the Go language handler.
package handlers

import (
	"time"

	"github.com/codewatch/codewatch/internal/runner"
)

// DefaultGoCommand is used when no toolchain command is configured.
const DefaultGoCommand = "go"

// NewGoHandler creates a handler that runs .go files with "go run".
// go run compiles and executes in one invocation, so a compile error shows
// up as a non-zero exit with the compiler diagnostics on stderr.
func NewGoHandler(r *runner.Runner, command string, timeout time.Duration) Handler {
	if command == "" {
		command = DefaultGoCommand
	}
	return &commandHandler{
		name: "Go",
		ext:  "go",
		argv: func(path string) (string, []string) {
			return command, []string{"run", path}
		},
		runner:  r,
		timeout: timeout,
	}
}
