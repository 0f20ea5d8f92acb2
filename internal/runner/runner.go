// runner.go implements subprocess execution with timeout and process group management.
// Runners are spawned in their own process group so that a timeout kills the
// whole tree, including grandchildren such as compiler-launched binaries.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single execution when the caller does not override it.
const DefaultTimeout = 30 * time.Second

// DefaultOutputLimit caps captured combined output at 1 MiB to bound memory
// on runaway programs that write in a loop.
const DefaultOutputLimit = 1 << 20

// Runner spawns external commands with timeout and capped output capture.
type Runner struct {
	// OutputLimit is the maximum number of combined stdout+stderr bytes
	// retained per execution. Output beyond the limit is discarded.
	OutputLimit int

	lookup *CommandCache
	logger *slog.Logger
}

// New creates a Runner with the default output limit.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		OutputLimit: DefaultOutputLimit,
		lookup:      NewCommandCache(),
		logger:      logger.With(slog.String("component", "runner")),
	}
}

// Resolve returns the absolute path the named command will execute as,
// priming the cache Run consults.
func (r *Runner) Resolve(name string) (string, error) {
	return r.lookup.Resolve(name)
}

// Run executes name with args, enforcing the given timeout.
// The process runs in a new process group; on timeout the whole group is
// killed with SIGKILL. Combined stdout+stderr is captured up to OutputLimit.
//
// A non-zero exit and a timeout both return a Result and a nil error: they
// are normal, recordable execution failures. A non-nil error means the
// process could not be launched at all (missing interpreter, bad permissions).
func (r *Runner) Run(ctx context.Context, name string, args []string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Resolve once per command name; later saves of the same language skip
	// the PATH search. A missing command is a launch failure, same as a
	// spawn error would be.
	bin, err := r.lookup.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", name, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, bin, args...)

	// New process group so the kill below reaches all children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out := newCappedBuffer(r.OutputLimit)
	cmd.Stdout = out
	cmd.Stderr = out

	// Kill the entire process group (negative PID) instead of just the
	// direct child
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// WaitDelay ensures orphaned pipe holders don't block Wait()
	cmd.WaitDelay = 5 * time.Second

	result := &Result{
		StartedAt: time.Now(),
	}

	err = cmd.Run()
	result.Duration = time.Since(result.StartedAt)
	result.Output = out.String()
	result.Truncated = out.Truncated()

	if err != nil {
		// Timeout: the context deadline fired before the process finished
		if execCtx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			result.TimedOut = true
			r.logger.Warn("execution timed out",
				slog.String("command", name),
				slog.Duration("timeout", timeout),
			)
			return result, nil
		}

		// Non-zero exit is a normal failed execution, not a launch error
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		// Launch failure: command not found, permission denied, etc.
		return nil, fmt.Errorf("failed to launch %s: %w", name, err)
	}

	result.ExitCode = 0
	return result, nil
}
