package ingest

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/accesslog/internal/parser"
)

// State is the lifecycle position of a run.
type State int

const (
	StateNotStarted State = iota
	StateAlreadyLoaded
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateAlreadyLoaded:
		return "already_loaded"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LineError describes a skipped line.
type LineError struct {
	Line    int // 1-based
	Reason  parser.SkipReason
	Content string
	Err     error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID string
	State State

	Processed int // records committed to the store
	Skipped   int // non-blank lines that produced no record
	Lines     int // lines read, blank lines included
	Batches   int // committed batches

	// Errors holds the first skipped lines, in input order.
	Errors []LineError

	// Digest is the hex SHA3-256 of the lines consumed, each followed by '\n'.
	// Empty when the run never read the source.
	Digest string

	Started  time.Time
	Finished time.Time
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
