// Package asyncqueue provides a sequential task queue: submitted tasks
// execute strictly one at a time in submission order, with lifecycle
// events published through a typed notification hub.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	q := asyncqueue.New(asyncqueue.Config{RetainFinished: true})
//
//	q.Hub().Subscribe(asyncqueue.ChannelTaskSuccess, func(e asyncqueue.Event) {
//	    ev := e.(*asyncqueue.TaskSucceeded)
//	    log.Printf("task %s done: %v", ev.Task.ID, ev.Result)
//	})
//
//	q.Submit(ctx, "fetch-users", asyncqueue.OpFunc(fetchUsers), nil)
//	q.Submit(ctx, "fetch-orders", asyncqueue.OpFunc(fetchOrders), nil)
//	q.Exec(ctx)
package asyncqueue

import (
	"log/slog"

	"github.com/imhucy/async-queue/pkg/core"
	"github.com/imhucy/async-queue/pkg/hub"
	"github.com/imhucy/async-queue/pkg/queue"
)

// Type aliases re-exported from pkg/core and pkg/queue.
type (
	// Task represents one unit of asynchronous work tracked by identity.
	Task = core.Task

	// TaskStatus represents the current state of a task.
	TaskStatus = core.TaskStatus

	// QueueStatus tracks the lifecycle state of the sequencer.
	QueueStatus = core.QueueStatus

	// Op is the execute capability of a task.
	Op = core.Op

	// OpFunc adapts a plain function to the Op interface.
	OpFunc = core.OpFunc

	// Config holds the three behavior switches of a sequencer.
	Config = core.Config

	// Queue is the task sequencer.
	Queue = queue.Queue

	// Option configures a Queue.
	Option = queue.Option

	// Event is the interface for all sequencer events.
	Event = core.Event

	// TaskStarted is published when a task moves in-flight.
	TaskStarted = core.TaskStarted

	// TaskSucceeded is published when a task's operation completes.
	TaskSucceeded = core.TaskSucceeded

	// TaskFailed is published when a task's operation fails.
	TaskFailed = core.TaskFailed

	// QueueStarted is published when the queue transitions into running.
	QueueStarted = core.QueueStarted

	// QueuePaused is published when a requested pause takes effect.
	QueuePaused = core.QueuePaused

	// QueueFinished is published when the waiting list drains.
	QueueFinished = core.QueueFinished

	// Hub is the typed publish/subscribe broadcaster for lifecycle events.
	Hub = hub.Hub[core.Event]

	// Subscription is the handle returned by Hub.Subscribe.
	Subscription = hub.Subscription

	// DuplicateTaskError carries the task that already holds a submitted id.
	DuplicateTaskError = core.DuplicateTaskError
)

// Task status constants.
const (
	StatusWaiting = core.StatusWaiting
	StatusPending = core.StatusPending
	StatusSuccess = core.StatusSuccess
	StatusFailure = core.StatusFailure
)

// Queue status constants.
const (
	QueueWaiting     = core.QueueWaiting
	QueueRunning     = core.QueueRunning
	QueueBeforePause = core.QueueBeforePause
	QueuePause       = core.QueuePause
	QueueFinish      = core.QueueFinish
)

// Event channel names.
const (
	ChannelTaskStart   = core.ChannelTaskStart
	ChannelTaskSuccess = core.ChannelTaskSuccess
	ChannelTaskFailure = core.ChannelTaskFailure
	ChannelQueueStart  = core.ChannelQueueStart
	ChannelQueuePause  = core.ChannelQueuePause
	ChannelQueueFinish = core.ChannelQueueFinish
)

// Error variables.
var (
	ErrTaskExists   = core.ErrTaskExists
	ErrQueueRunning = core.ErrQueueRunning
)

// New creates a sequencer with the given configuration.
func New(cfg Config, opts ...Option) *Queue {
	return queue.New(cfg, opts...)
}

// NewHub creates a standalone lifecycle-event hub, for sharing one hub
// across several queues.
func NewHub(opts ...hub.Option[core.Event]) *Hub {
	return hub.New[core.Event](opts...)
}

// WithLogger sets the logger for advisory signals on a Queue.
func WithLogger(l *slog.Logger) Option {
	return queue.WithLogger(l)
}

// WithHub sets the hub a Queue publishes lifecycle events on.
func WithHub(h *Hub) Option {
	return queue.WithHub(h)
}
