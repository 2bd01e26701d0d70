// Package history records agent runs and their tool calls.
package history

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id has no record
var ErrRunNotFound = errors.New("run not found")

// Status run lifecycle status
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStepLimit Status = "step_limit"
	StatusFailed    Status = "failed"
)

// Store run history storage interface
type Store interface {
	// Runs
	StartRun(task, model string) (string, error)
	FinishRun(runID string, status Status, answer string, steps int) error
	GetRun(runID string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	RecentTasks(limit int) ([]string, error)

	// Tool calls
	RecordToolCall(runID string, step int, name, arguments, result string) error
	ToolCalls(runID string) ([]*ToolCall, error)

	// Close connection
	Close() error
}

// Run one task submission and its outcome
type Run struct {
	ID         string
	Task       string
	Model      string
	Answer     string
	Status     Status
	Steps      int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration returns how long the run took, or zero while it is still running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ToolCall one dispatched tool invocation
type ToolCall struct {
	ID        int64
	RunID     string
	Step      int
	Name      string
	Arguments string
	Result    string
	CreatedAt time.Time
}
