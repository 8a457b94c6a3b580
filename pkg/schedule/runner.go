package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imhucy/async-queue/pkg/core"
)

// Submitter is the slice of the sequencer the Runner needs.
type Submitter interface {
	Submit(ctx context.Context, id string, op core.Op, onRejected func(error, *core.Task)) error
	Exec(ctx context.Context)
}

type entry struct {
	name  string
	op    core.Op
	sched Schedule
	next  time.Time
}

// Runner submits recurring tasks to a sequencer. Each tick that is due
// produces a fresh task with a unique id derived from the entry name, so
// recurring submissions never collide with the dedup check.
type Runner struct {
	target  Submitter
	tick    time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]*entry
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTick sets the scheduler poll interval.
func WithTick(d time.Duration) RunnerOption {
	return func(r *Runner) { r.tick = d }
}

// WithRunnerLogger sets the logger for submission failures.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner that submits into target.
func NewRunner(target Submitter, opts ...RunnerOption) *Runner {
	r := &Runner{
		target:  target,
		tick:    100 * time.Millisecond,
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a recurring task under name. The first submission happens
// at the schedule's first Next after Start.
func (r *Runner) Add(name string, op core.Op, sched Schedule) {
	r.mu.Lock()
	r.entries[name] = &entry{name: name, op: op, sched: sched}
	r.mu.Unlock()
}

// Remove deregisters a recurring task.
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

// Start runs the scheduler loop. It blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.mu.Lock()
	now := time.Now()
	for _, e := range r.entries {
		e.next = e.sched.Next(now)
	}
	r.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.submitDue(ctx, time.Now())
		}
	}
}

func (r *Runner) submitDue(ctx context.Context, now time.Time) {
	r.mu.Lock()
	var due []*entry
	for _, e := range r.entries {
		if e.next.IsZero() {
			e.next = e.sched.Next(now)
		}
		if !e.next.After(now) {
			due = append(due, e)
			e.next = e.sched.Next(now)
		}
	}
	r.mu.Unlock()

	for _, e := range due {
		id := e.name + "-" + uuid.New().String()
		if err := r.target.Submit(ctx, id, e.op, nil); err != nil {
			r.logger.Error("schedule: failed to submit recurring task",
				"name", e.name, "error", err)
		}
	}
}
