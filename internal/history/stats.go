// stats.go defines aggregate statistics derived from the full record set.
package history

import "time"

// ExecutionStats summarizes all recorded executions. It is recomputed on
// demand from a full scan and never stored.
type ExecutionStats struct {
	// TotalExecutions is the number of records in the store.
	TotalExecutions uint64

	// SuccessfulExecutions counts records with Success=true.
	SuccessfulExecutions uint64

	// FailedExecutions counts records with Success=false.
	// TotalExecutions == SuccessfulExecutions + FailedExecutions always holds.
	FailedExecutions uint64

	// MostExecutedFile is the path with the highest record count, or empty
	// when the store is empty.
	MostExecutedFile string

	// AverageExecutionTime is the mean execution time in seconds.
	AverageExecutionTime float64

	// LastExecution is the timestamp of the most recent record, or nil
	// when the store is empty.
	LastExecution *time.Time
}

// SuccessRate returns the fraction of successful executions in [0, 1].
func (s ExecutionStats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
}
