// Package queue provides the sequencer: a cooperatively-scheduled task
// queue that executes submitted operations strictly one at a time in
// submission order and publishes lifecycle events through a hub.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imhucy/async-queue/pkg/core"
	"github.com/imhucy/async-queue/pkg/hub"
)

// Queue is the task sequencer. It owns three ordered task lists
// (waiting, in-flight, finished) and a queue-level status, and advances
// through the waiting list one task at a time.
//
// A task identity appears in at most one of the three lists at any
// instant, and the in-flight list never holds more than one entry.
type Queue struct {
	mu       sync.Mutex
	cfg      core.Config
	status   core.QueueStatus
	waiting  []*core.Task
	inFlight []*core.Task
	finished []*core.Task

	// looping is true while the run-loop goroutine is live. It is the
	// difference between an actively running queue (redundant Exec is a
	// no-op) and a queue stalled after a failure (Exec restarts it).
	looping bool
	// loopDone is closed when the current run loop exits. Pause waits on
	// it so the loop is fully stopped before the queue transitions.
	loopDone chan struct{}

	events *hub.Hub[core.Event]
	logger *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger for advisory signals.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithHub sets the hub used to publish lifecycle events.
func WithHub(h *hub.Hub[core.Event]) Option {
	return func(q *Queue) { q.events = h }
}

// New creates a sequencer with the given configuration.
func New(cfg core.Config, opts ...Option) *Queue {
	q := &Queue{
		cfg:    cfg,
		status: core.QueueWaiting,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.events == nil {
		q.events = hub.New[core.Event](hub.WithLogger[core.Event](q.logger))
	}
	return q
}

// Hub returns the event hub. Observers subscribe to the core.Channel*
// channels on it.
func (q *Queue) Hub() *hub.Hub[core.Event] { return q.events }

// Config returns the current configuration.
func (q *Queue) Config() core.Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// SetConfig replaces the configuration as a whole.
func (q *Queue) SetConfig(cfg core.Config) {
	q.mu.Lock()
	q.cfg = cfg
	q.mu.Unlock()
}

// Submit appends a new waiting task to the tail of the waiting list.
//
// Submission is rejected when id is already tracked in any of the three
// lists; the optional onRejected callback receives the error and the
// task that holds the identity, and the same error is returned so the
// failure propagates synchronously to the caller. An empty id gets a
// generated one.
//
// With Immediate configured, submitting to an idle queue triggers Exec.
func (q *Queue) Submit(ctx context.Context, id string, op core.Op, onRejected func(error, *core.Task)) error {
	if id == "" {
		id = uuid.New().String()
	}

	q.mu.Lock()
	if existing := q.findLocked(id); existing != nil {
		q.mu.Unlock()
		err := &core.DuplicateTaskError{ID: id, Existing: existing}
		if onRejected != nil {
			onRejected(err, existing)
		}
		return err
	}

	t := core.NewTask(id, op)
	q.waiting = append(q.waiting, t)
	immediate := q.cfg.Immediate && !q.looping &&
		(q.status == core.QueueWaiting || q.status == core.QueueFinish)
	q.mu.Unlock()

	if immediate {
		q.Exec(ctx)
	}
	return nil
}

// Exec starts (or restarts) advancement through the waiting list. It is
// a no-op, with a warning, while the run loop is already live.
func (q *Queue) Exec(ctx context.Context) {
	q.mu.Lock()
	if q.looping {
		q.mu.Unlock()
		q.logger.Warn("asyncqueue: exec ignored, queue already running")
		return
	}
	if q.status == core.QueueBeforePause {
		q.mu.Unlock()
		q.logger.Warn("asyncqueue: exec ignored, pause in progress")
		return
	}
	started := q.status != core.QueueRunning
	q.status = core.QueueRunning
	q.looping = true
	done := make(chan struct{})
	q.loopDone = done
	waiting, finished := q.snapshotLocked()
	q.mu.Unlock()

	if started {
		q.events.Publish(core.ChannelQueueStart, &core.QueueStarted{
			Waiting: waiting, Finished: finished, Timestamp: time.Now(),
		})
	}
	go q.run(ctx, done)
}

// run is the advance loop. It is the only goroutine that moves tasks
// between lists, which is what makes the single in-flight invariant hold.
func (q *Queue) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		if q.status != core.QueueRunning {
			// A pause request owns the next transition.
			q.looping = false
			q.mu.Unlock()
			return
		}
		if len(q.waiting) == 0 {
			q.status = core.QueueFinish
			q.looping = false
			waiting, finished := q.snapshotLocked()
			q.mu.Unlock()
			q.events.Publish(core.ChannelQueueFinish, &core.QueueFinished{
				Waiting: waiting, Finished: finished, Timestamp: time.Now(),
			})
			return
		}

		t := q.waiting[0]
		q.waiting = q.waiting[1:]
		t.Status = core.StatusPending
		now := time.Now()
		t.StartedAt = &now
		t.Arm()
		q.inFlight = append(q.inFlight, t)
		waiting, finished := q.snapshotLocked()
		q.mu.Unlock()

		q.events.Publish(core.ChannelTaskStart, &core.TaskStarted{
			Task: t, Waiting: waiting, Finished: finished, Timestamp: time.Now(),
		})

		result, err := t.Op.Execute(ctx, t)

		q.mu.Lock()
		settled := time.Now()
		t.SettledAt = &settled
		if err != nil {
			t.Status = core.StatusFailure
			t.Err = err
		} else {
			t.Status = core.StatusSuccess
			t.Result = result
			t.Err = nil
		}
		waiting, finished = q.snapshotLocked()
		q.mu.Unlock()

		if err != nil {
			q.events.Publish(core.ChannelTaskFailure, &core.TaskFailed{
				Task: t, Waiting: waiting, Finished: finished, Cause: err, Timestamp: time.Now(),
			})
		} else {
			q.events.Publish(core.ChannelTaskSuccess, &core.TaskSucceeded{
				Task: t, Waiting: waiting, Finished: finished, Result: result, Timestamp: time.Now(),
			})
		}

		q.mu.Lock()
		if q.cfg.RetainFinished {
			q.finished = append(q.finished, t)
		}
		q.removeInFlightLocked(t.ID)
		halt := err != nil && !q.cfg.ContinueOnError
		if halt {
			// Stalled: status stays running, no loop is live. Exec (via
			// Retry) restarts advancement.
			q.looping = false
		}
		q.mu.Unlock()
		t.Settle()

		if halt {
			return
		}
	}
}

// Pause freezes advancement after the current in-flight task settles.
// It is a no-op unless the queue is running. Pause blocks until the
// in-flight task (at most one) settles, then transitions to pause, or to
// finish when nothing is left waiting. It never interrupts the task.
//
// If ctx is cancelled while Pause is waiting, the context error is
// returned and the queue rolls back to running as if the pause had
// never been requested.
func (q *Queue) Pause(ctx context.Context) error {
	q.mu.Lock()
	if q.status != core.QueueRunning {
		q.mu.Unlock()
		return nil
	}
	q.status = core.QueueBeforePause
	pending := make([]*core.Task, len(q.inFlight))
	copy(pending, q.inFlight)
	done := q.loopDone
	q.mu.Unlock()

	for _, t := range pending {
		select {
		case <-t.Done():
		case <-ctx.Done():
			q.abortPause()
			return ctx.Err()
		}
	}
	// Wait for the run loop itself to stop so a later Exec cannot race
	// a loop that has not observed the pause yet.
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			q.abortPause()
			return ctx.Err()
		}
	}

	q.mu.Lock()
	finish := len(q.waiting) == 0
	if finish {
		q.status = core.QueueFinish
	} else {
		q.status = core.QueuePause
	}
	waiting, finished := q.snapshotLocked()
	q.mu.Unlock()

	if finish {
		q.events.Publish(core.ChannelQueueFinish, &core.QueueFinished{
			Waiting: waiting, Finished: finished, Timestamp: time.Now(),
		})
	} else {
		q.events.Publish(core.ChannelQueuePause, &core.QueuePaused{
			Waiting: waiting, Finished: finished, Timestamp: time.Now(),
		})
	}
	return nil
}

// abortPause rolls a cancelled pause back to running: the pause never
// took effect. If the run loop already stopped on the pause request, the
// queue is left in the recoverable stalled state and Exec restarts it.
func (q *Queue) abortPause() {
	q.mu.Lock()
	if q.status == core.QueueBeforePause {
		q.status = core.QueueRunning
	}
	q.mu.Unlock()
}

// Resume restarts advancement from where the waiting list left off. It
// is a no-op unless the queue is paused.
func (q *Queue) Resume(ctx context.Context) {
	q.mu.Lock()
	paused := q.status == core.QueuePause
	q.mu.Unlock()
	if !paused {
		return
	}
	q.Exec(ctx)
}

// Retry moves a task from the finished list (when present) back to the
// tail of the waiting list and triggers Exec. The task keeps its settled
// status until the loop picks it up again.
func (q *Queue) Retry(ctx context.Context, t *core.Task) {
	q.mu.Lock()
	q.requeueLocked(t)
	q.mu.Unlock()
	q.Exec(ctx)
}

// RetryAll re-queues every failed task from the finished list, in order,
// and leaves the succeeded ones in place, then triggers Exec.
func (q *Queue) RetryAll(ctx context.Context) {
	q.mu.Lock()
	var failed []*core.Task
	for _, t := range q.finished {
		if t.IsFailure() {
			failed = append(failed, t)
		}
	}
	for _, t := range failed {
		q.requeueLocked(t)
	}
	q.mu.Unlock()
	q.Exec(ctx)
}

func (q *Queue) requeueLocked(t *core.Task) {
	q.removeFinishedLocked(t.ID)
	for _, list := range [][]*core.Task{q.waiting, q.inFlight} {
		for _, existing := range list {
			if existing.ID == t.ID {
				return
			}
		}
	}
	q.waiting = append(q.waiting, t)
}

// Reset concatenates the finished list onto the tail of the waiting list
// and marks every relocated task waiting again. It fails while the queue
// is running so the lists are never mutated under an active task; the
// optional onRejected callback receives the error, which is also
// returned. Queue-level status is left untouched.
func (q *Queue) Reset(onRejected func(error)) error {
	q.mu.Lock()
	if q.looping || len(q.inFlight) > 0 || q.status == core.QueueRunning || q.status == core.QueueBeforePause {
		q.mu.Unlock()
		if onRejected != nil {
			onRejected(core.ErrQueueRunning)
		}
		return core.ErrQueueRunning
	}
	for _, t := range q.finished {
		t.Status = core.StatusWaiting
		t.Result = nil
		t.Err = nil
		t.StartedAt = nil
		t.SettledAt = nil
	}
	q.waiting = append(q.waiting, q.finished...)
	q.finished = nil
	q.mu.Unlock()
	return nil
}
