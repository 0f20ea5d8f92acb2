// result.go defines the per-file execution result produced by language handlers.
package handlers

import "time"

// ExecutionResult is the transient outcome of running one file once.
// It is produced by a handler, delivered to the caller, and converted to a
// history record; it is never retained.
type ExecutionResult struct {
	// FilePath is the file that was executed.
	FilePath string

	// Success is true when the run completed with a zero exit code.
	Success bool

	// Output is the captured combined stdout+stderr, size-capped by
	// the runner.
	Output string

	// ErrorMessage describes why the run failed. Empty on success.
	ErrorMessage string

	// Duration is the wall-clock execution time.
	Duration time.Duration

	// Timestamp is when the execution started.
	Timestamp time.Time

	// ExitCode is the process exit code, or nil when the process never
	// produced one (launch failure, timeout kill).
	ExitCode *int
}

// newResult creates a result stub for a file with the timestamp set.
func newResult(path string) *ExecutionResult {
	return &ExecutionResult{
		FilePath:  path,
		Timestamp: time.Now().UTC(),
	}
}

// failure fills in the error fields and returns the result.
func (r *ExecutionResult) failure(msg string, d time.Duration, exitCode *int) *ExecutionResult {
	r.Success = false
	r.ErrorMessage = msg
	r.Duration = d
	r.ExitCode = exitCode
	return r
}
