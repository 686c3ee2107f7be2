// Package task runs scripts on a single background worker.
package task

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"colorbot/internal/script"
)

// ErrBusy is returned by Submit while another script is running.
var ErrBusy = errors.New("a script is already running")

const historySize = 20

// Executor runs one script to completion.
type Executor interface {
	Run(ctx context.Context, src string, logf func(string)) script.Result
}

// Notifier receives live updates for connected clients.
type Notifier interface {
	SendLog(line string)
	SendTaskUpdate(update TaskUpdate)
}

// Runner executes at most one script at a time.
type Runner struct {
	exec     Executor
	notifier Notifier
	lines    *log.Logger

	mu      sync.Mutex
	running *Task
	history []*Task // newest last
}

// NewRunner returns an idle runner. notifier may be nil.
func NewRunner(exec Executor, notifier Notifier) *Runner {
	return &Runner{exec: exec, notifier: notifier, lines: log.Default()}
}

// SetLineLogger sets where script log lines are mirrored for the console.
// It defaults to the standard logger and must be set before the first Submit.
func (r *Runner) SetLineLogger(l *log.Logger) {
	r.lines = l
}

// Submit starts src on the worker goroutine.
func (r *Runner) Submit(src string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running != nil {
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:        uuid.NewString(),
		Script:    src,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusInProgress,
	}
	r.running = t
	r.history = append(r.history, t)
	if len(r.history) > historySize {
		r.history = r.history[len(r.history)-historySize:]
	}

	log.Printf("Task %s started", t.ID)
	r.notify(t.Info())

	go r.execute(t)
	return t, nil
}

func (r *Runner) execute(t *Task) {
	defer close(t.done)
	defer t.cancel()

	res := r.exec.Run(t.ctx, t.Script, func(line string) {
		t.appendLog(line)
		r.lines.Printf("[%s] %s", t.ID[:8], line)
		if r.notifier != nil {
			r.notifier.SendLog(line)
		}
	})
	info := t.finish(res)

	r.mu.Lock()
	if r.running == t {
		r.running = nil
	}
	r.mu.Unlock()

	log.Printf("Task %s %s", t.ID, info.Status)
	r.notify(info)
}

func (r *Runner) notify(info Info) {
	if r.notifier == nil {
		return
	}
	r.notifier.SendTaskUpdate(TaskUpdate{
		Type:    "taskUpdate",
		TaskID:  info.ID,
		Status:  info.Status,
		Message: info.Message,
	})
}

// Cancel requests the running script to stop. It reports whether a script
// was running.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	t := r.running
	r.mu.Unlock()

	if t == nil {
		return false
	}
	log.Printf("Task %s cancel requested", t.ID)
	t.cancel()
	return true
}

// Running returns the active task, if any.
func (r *Runner) Running() (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.running != nil
}

// Get finds a recent task by ID.
func (r *Runner) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.history {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// ExecutionState summarizes the runner for clients.
type ExecutionState struct {
	Running *Info  `json:"running,omitempty"`
	Tasks   []Info `json:"tasks"`
}

// State returns the running task and recent history, newest first.
func (r *Runner) State() ExecutionState {
	r.mu.Lock()
	running := r.running
	history := append([]*Task(nil), r.history...)
	r.mu.Unlock()

	state := ExecutionState{Tasks: make([]Info, 0, len(history))}
	for i := len(history) - 1; i >= 0; i-- {
		state.Tasks = append(state.Tasks, history[i].Info())
	}
	if running != nil {
		info := running.Info()
		state.Running = &info
	}
	return state
}
