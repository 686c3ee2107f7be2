package task

import (
	"context"
	"sync"
	"time"

	"colorbot/internal/script"
)

// Status of a script run.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusBroken     Status = "broken"
	StatusCanceled   Status = "canceled"
)

func statusOf(s script.Status) Status {
	switch s {
	case script.StatusCompleted:
		return StatusCompleted
	case script.StatusStopped:
		return StatusCanceled
	default:
		return StatusBroken
	}
}

// Task is one submitted script run.
type Task struct {
	ID        string
	Script    string
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	status     Status
	message    string
	logs       []string
	result     script.Result
	finishedAt time.Time
}

// Info is a point-in-time copy of a Task.
type Info struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Trace      []string   `json:"trace"`
	Logs       []string   `json:"logs"`
	FailedLine int        `json:"failedLine,omitempty"`
}

// TaskUpdate is pushed to clients whenever a task changes status.
type TaskUpdate struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Done is closed when the run has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result is valid once Done is closed.
func (t *Task) Result() script.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := Info{
		ID:         t.ID,
		Status:     t.status,
		Message:    t.message,
		CreatedAt:  t.CreatedAt,
		Trace:      append([]string{}, t.result.Trace...),
		Logs:       append([]string{}, t.logs...),
		FailedLine: t.result.FailedLine,
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		info.FinishedAt = &finished
	}
	return info
}

func (t *Task) appendLog(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, line)
}

func (t *Task) finish(res script.Result) Info {
	t.mu.Lock()
	t.result = res
	t.status = statusOf(res.Status)
	t.finishedAt = time.Now()
	if len(t.logs) > 0 {
		t.message = t.logs[len(t.logs)-1]
	}
	t.mu.Unlock()
	return t.Info()
}
