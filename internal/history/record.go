// record.go defines the persisted execution record and its construction rules.
package history

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// PreviewLimit is the maximum number of characters kept from the execution
// output in a persisted record.
const PreviewLimit = 100

// ExecutionRecord is one durable history entry. Records are immutable once
// written; the only destructive operation is the store-wide Clear.
type ExecutionRecord struct {
	// ID is a globally unique identifier for this record.
	ID string `json:"id"`

	// FilePath is the file that was executed.
	FilePath string `json:"file_path"`

	// Section groups records by the file's immediate parent directory name.
	Section string `json:"section"`

	// Success is true when the run exited zero.
	Success bool `json:"success"`

	// ExecutionTime is the wall-clock duration in seconds.
	ExecutionTime float64 `json:"execution_time"`

	// Timestamp is when the execution started (RFC 3339 in JSON).
	Timestamp time.Time `json:"timestamp"`

	// OutputPreview holds at most PreviewLimit characters of output, or of
	// the error message for failed runs.
	OutputPreview string `json:"output_preview"`

	// CreatedAt is when the record was inserted into the store.
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord builds a record for a completed execution. For failed runs the
// preview is taken from the error message rather than the program output.
func NewRecord(filePath string, success bool, executionTime float64, timestamp time.Time, output string) ExecutionRecord {
	return ExecutionRecord{
		ID:            uuid.NewString(),
		FilePath:      filePath,
		Section:       SectionOf(filePath),
		Success:       success,
		ExecutionTime: executionTime,
		Timestamp:     timestamp,
		OutputPreview: truncatePreview(output, PreviewLimit),
	}
}

// SectionOf derives the section label from the file's parent directory name.
func SectionOf(path string) string {
	parent := filepath.Base(filepath.Dir(path))
	if parent == "." || parent == string(filepath.Separator) {
		return "unknown"
	}
	return parent
}

// truncatePreview cuts s to at most limit characters on a rune boundary so
// the preview is always valid text.
func truncatePreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
