package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskExists reports a submission whose id is already tracked in
	// one of the three lists.
	ErrTaskExists = errors.New("asyncqueue: task id already tracked")
	// ErrQueueRunning reports a reset attempted while the queue is running.
	ErrQueueRunning = errors.New("asyncqueue: queue is running")
)

// DuplicateTaskError wraps ErrTaskExists and carries the task that already
// holds the identity.
type DuplicateTaskError struct {
	ID       string
	Existing *Task
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("asyncqueue: task %q already tracked (status %s)", e.ID, e.Existing.Status)
}

func (e *DuplicateTaskError) Unwrap() error {
	return ErrTaskExists
}
