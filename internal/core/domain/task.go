package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnitchSuffix marks heartbeat tasks, which are exempt from failure
// bookkeeping and retry metrics.
const SnitchSuffix = "snitch"

// TaskStatus tracks an envelope through its lifecycle.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusStarted   TaskStatus = "started"
	StatusScheduled TaskStatus = "scheduled" // failed, waiting for a retry
	StatusFinished  TaskStatus = "finished"
	StatusFailed    TaskStatus = "failed" // terminal
)

// TaskMeta carries envelope metadata used for metrics and grouping.
// StartTime is seconds since epoch, set at enqueue time so total latency
// (queue wait plus execution) can be measured when the task finishes.
type TaskMeta struct {
	TaskName  string  `json:"task_name"`
	StartTime float64 `json:"start_time"`
}

// TaskEnvelope is a deferred unit of work. It is created at enqueue time
// and mutated by the worker as attempts are made.
type TaskEnvelope struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
	Meta   TaskMeta       `json:"meta"`

	// RetriesLeft counts automatic retries remaining. Once it reaches
	// zero and the task has failed, the status is terminal.
	RetriesLeft int `json:"retries_left"`

	// RetrySchedule holds the delay, in seconds, to wait before each
	// successive retry. Empty means no automatic retry.
	RetrySchedule []int64 `json:"retry_schedule"`

	Timeout    int64      `json:"timeout"`    // seconds, per attempt
	ResultTTL  int64      `json:"result_ttl"` // seconds
	Status     TaskStatus `json:"status"`
	EnqueuedAt int64      `json:"enqueued_at"`

	// DependsOn optionally names a job that must finish before this one
	// is executed.
	DependsOn string `json:"depends_on,omitempty"`
}

// NewTaskEnvelope builds an envelope for a task call with a fresh ID.
func NewTaskEnvelope(name string, args []any, kwargs map[string]any) *TaskEnvelope {
	now := time.Now()
	return &TaskEnvelope{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       args,
		Kwargs:     kwargs,
		Status:     StatusQueued,
		EnqueuedAt: now.Unix(),
		Meta: TaskMeta{
			TaskName:  name,
			StartTime: float64(now.UnixNano()) / float64(time.Second),
		},
	}
}

// AttemptIndex returns how many retries have already been consumed.
func (e *TaskEnvelope) AttemptIndex() int {
	return len(e.RetrySchedule) - e.RetriesLeft
}

// NextDelay returns the delay to wait before the next retry, taken from
// the attached schedule. The last entry is reused if the schedule is
// shorter than the retry count.
func (e *TaskEnvelope) NextDelay() time.Duration {
	if len(e.RetrySchedule) == 0 {
		return 0
	}
	idx := e.AttemptIndex()
	if idx >= len(e.RetrySchedule) {
		idx = len(e.RetrySchedule) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return time.Duration(e.RetrySchedule[idx]) * time.Second
}

// IsSnitch reports whether this is a heartbeat task.
func (e *TaskEnvelope) IsSnitch() bool {
	return strings.HasSuffix(e.Name, SnitchSuffix)
}
