// python.go provides the Python language handler.
package handlers

import (
	"time"

	"github.com/codewatch/codewatch/internal/runner"
)

// DefaultPythonCommand is used when no interpreter is configured.
const DefaultPythonCommand = "python3"

// NewPythonHandler creates a handler that runs .py files with the given
// interpreter command (e.g. "python3").
func NewPythonHandler(r *runner.Runner, command string, timeout time.Duration) Handler {
	if command == "" {
		command = DefaultPythonCommand
	}
	return &commandHandler{
		name: "Python",
		ext:  "py",
		argv: func(path string) (string, []string) {
			return command, []string{path}
		},
		runner:  r,
		timeout: timeout,
	}
}
