// shell.go provides the shell script handler.
package handlers

import (
	"time"

	"github.com/codewatch/codewatch/internal/runner"
)

// DefaultShellCommand is used when no shell is configured.
const DefaultShellCommand = "bash"

// NewShellHandler creates a handler that runs .sh files with the given shell.
func NewShellHandler(r *runner.Runner, command string, timeout time.Duration) Handler {
	if command == "" {
		command = DefaultShellCommand
	}
	return &commandHandler{
		name: "Shell",
		ext:  "sh",
		argv: func(path string) (string, []string) {
			return command, []string{path}
		},
		runner:  r,
		timeout: timeout,
	}
}
