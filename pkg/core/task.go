// Package core provides the domain models for the asyncqueue package.
package core

import (
	"context"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	StatusWaiting TaskStatus = "waiting"
	StatusPending TaskStatus = "pending"
	StatusSuccess TaskStatus = "success"
	StatusFailure TaskStatus = "failure"
)

// Op is the execute capability of a task. The sequencer invokes Execute
// exactly once per run; the returned value becomes the task result and a
// non-nil error marks the task as failed.
//
// Cancellation of the underlying work is the Op's own responsibility: the
// sequencer never aborts a running Execute, it only withholds the next one.
type Op interface {
	Execute(ctx context.Context, t *Task) (any, error)
}

// OpFunc adapts a plain function to the Op interface.
type OpFunc func(ctx context.Context, t *Task) (any, error)

// Execute implements Op.
func (f OpFunc) Execute(ctx context.Context, t *Task) (any, error) {
	return f(ctx, t)
}

// Task represents one unit of asynchronous work tracked by identity.
// Tasks are created by the sequencer on submission and owned by it;
// callers must not mutate a task outside the sequencer's methods.
type Task struct {
	ID     string
	Status TaskStatus
	Op     Op

	// Result holds the value produced by a successful run.
	Result any
	// Err holds the cause of the most recent failed run.
	Err error

	CreatedAt time.Time
	StartedAt *time.Time
	SettledAt *time.Time

	// done is (re)armed each time the task goes in-flight and closed
	// when the run settles, success or failure.
	done chan struct{}
}

// NewTask creates a waiting task with the given identity and operation.
func NewTask(id string, op Op) *Task {
	return &Task{
		ID:        id,
		Status:    StatusWaiting,
		Op:        op,
		CreatedAt: time.Now(),
	}
}

// Done returns a channel that is closed when the current in-flight run
// settles. It returns a closed channel if the task is not in-flight.
func (t *Task) Done() <-chan struct{} {
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Arm prepares the settle handle for a new in-flight run.
func (t *Task) Arm() {
	t.done = make(chan struct{})
}

// Settle closes the settle handle after a run completes.
func (t *Task) Settle() {
	if t.done != nil {
		close(t.done)
	}
}

// IsWaiting reports whether the task has not yet been picked up.
func (t *Task) IsWaiting() bool { return t.Status == StatusWaiting }

// IsPending reports whether the task is currently executing.
func (t *Task) IsPending() bool { return t.Status == StatusPending }

// IsSuccess reports whether the most recent run succeeded.
func (t *Task) IsSuccess() bool { return t.Status == StatusSuccess }

// IsFailure reports whether the most recent run failed.
func (t *Task) IsFailure() bool { return t.Status == StatusFailure }
