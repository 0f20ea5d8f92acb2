// command.go implements the shared subprocess-backed handler logic.
// Concrete language handlers differ only in the command line they build and
// delegate everything else (timeout, output capture, exit interpretation)
// to commandHandler.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codewatch/codewatch/internal/runner"
)

// argvFunc builds the full command line for a file path.
type argvFunc func(path string) (name string, args []string)

// commandHandler runs a file through an external command and maps the
// process outcome onto an ExecutionResult.
type commandHandler struct {
	name    string
	ext     string
	argv    argvFunc
	runner  *runner.Runner
	timeout time.Duration
}

func (h *commandHandler) Name() string      { return h.name }
func (h *commandHandler) Extension() string { return h.ext }

func (h *commandHandler) Execute(ctx context.Context, path string) *ExecutionResult {
	result := newResult(path)

	name, args := h.argv(path)
	res, err := h.runner.Run(ctx, name, args, h.timeout)
	if err != nil {
		// Launch failure: interpreter or toolchain missing. Recorded as
		// a failed execution, distinct from a non-zero exit.
		return result.failure(err.Error(), 0, nil)
	}

	if res.TimedOut {
		return result.failure(
			fmt.Sprintf("execution timed out after %s", h.timeout),
			res.Duration, nil)
	}

	result.Duration = res.Duration
	exitCode := res.ExitCode
	result.ExitCode = &exitCode

	if res.ExitCode == 0 {
		result.Success = true
		result.Output = res.Output
		return result
	}

	// Expected user-code failure: surface the program's own output as the
	// error, falling back to the exit status when it printed nothing.
	result.Output = res.Output
	msg := strings.TrimSpace(res.Output)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	result.ErrorMessage = msg
	return result
}
