package queue

import "github.com/imhucy/async-queue/pkg/core"

// IsExist reports whether id is tracked in any of the three lists.
func (q *Queue) IsExist(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findLocked(id) != nil
}

// FindTaskByID scans the waiting, in-flight and finished lists, in that
// order, and returns the task holding id, or nil.
func (q *Queue) FindTaskByID(id string) *core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findLocked(id)
}

func (q *Queue) findLocked(id string) *core.Task {
	for _, list := range [][]*core.Task{q.waiting, q.inFlight, q.finished} {
		for _, t := range list {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}

// RemoveWaiting removes the waiting task with the given id. It reports
// whether a task was removed.
func (q *Queue) RemoveWaiting(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed bool
	q.waiting, removed = removeByID(q.waiting, id)
	return removed
}

// RemoveFinished removes the finished task with the given id. It reports
// whether a task was removed.
func (q *Queue) RemoveFinished(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed bool
	q.finished, removed = removeByID(q.finished, id)
	return removed
}

func (q *Queue) removeInFlightLocked(id string) {
	q.inFlight, _ = removeByID(q.inFlight, id)
}

func (q *Queue) removeFinishedLocked(id string) {
	q.finished, _ = removeByID(q.finished, id)
}

func removeByID(list []*core.Task, id string) ([]*core.Task, bool) {
	for i, t := range list {
		if t.ID == id {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// WaitingTasks returns a snapshot of the waiting list in FIFO order.
func (q *Queue) WaitingTasks() []*core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.waiting)
}

// InFlightTasks returns a snapshot of the in-flight list (at most one task).
func (q *Queue) InFlightTasks() []*core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.inFlight)
}

// FinishedTasks returns a snapshot of the finished list.
func (q *Queue) FinishedTasks() []*core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.finished)
}

func (q *Queue) snapshotLocked() (waiting, finished []*core.Task) {
	return snapshot(q.waiting), snapshot(q.finished)
}

func snapshot(list []*core.Task) []*core.Task {
	out := make([]*core.Task, len(list))
	copy(out, list)
	return out
}

// Status returns the queue-level status.
func (q *Queue) Status() core.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// IsWaiting reports whether the queue was constructed but never run.
func (q *Queue) IsWaiting() bool { return q.Status() == core.QueueWaiting }

// IsRunning reports whether the queue is in the running state.
func (q *Queue) IsRunning() bool { return q.Status() == core.QueueRunning }

// IsBeforePause reports whether a pause request is taking effect.
func (q *Queue) IsBeforePause() bool { return q.Status() == core.QueueBeforePause }

// IsPause reports whether the queue is paused.
func (q *Queue) IsPause() bool { return q.Status() == core.QueuePause }

// IsFinished reports whether the waiting list has drained.
func (q *Queue) IsFinished() bool { return q.Status() == core.QueueFinish }
