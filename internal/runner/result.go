// result.go defines the process-level execution result structure.
package runner

import "time"

// Result holds the raw outcome of a subprocess execution.
type Result struct {
	// ExitCode is the process exit code. -1 indicates timeout or signal death.
	ExitCode int

	// Output contains combined stdout+stderr, capped at the runner's
	// output limit.
	Output string

	// Truncated is true if output exceeded the limit and was cut off.
	Truncated bool

	// Duration is wall-clock time from spawn to exit.
	Duration time.Duration

	// TimedOut is true if the process was killed because it exceeded
	// the timeout.
	TimedOut bool

	// StartedAt is when execution began.
	StartedAt time.Time
}
