package core

import "time"

// Hub channel names for lifecycle events.
const (
	ChannelTaskStart   = "task.start"
	ChannelTaskSuccess = "task.success"
	ChannelTaskFailure = "task.failure"
	ChannelQueueStart  = "queue.start"
	ChannelQueuePause  = "queue.pause"
	ChannelQueueFinish = "queue.finish"
)

// Event is the interface for all sequencer events. The Waiting and
// Finished fields on every event are snapshots taken at publish time;
// observers can inspect them freely without racing the sequencer.
type Event interface {
	Channel() string
	eventMarker()
}

// TaskStarted is published when a task moves in-flight.
type TaskStarted struct {
	Task      *Task
	Waiting   []*Task
	Finished  []*Task
	Timestamp time.Time
}

func (*TaskStarted) Channel() string { return ChannelTaskStart }
func (*TaskStarted) eventMarker()    {}

// TaskSucceeded is published when a task's operation completes.
type TaskSucceeded struct {
	Task      *Task
	Waiting   []*Task
	Finished  []*Task
	Result    any
	Timestamp time.Time
}

func (*TaskSucceeded) Channel() string { return ChannelTaskSuccess }
func (*TaskSucceeded) eventMarker()    {}

// TaskFailed is published when a task's operation fails.
type TaskFailed struct {
	Task      *Task
	Waiting   []*Task
	Finished  []*Task
	Cause     error
	Timestamp time.Time
}

func (*TaskFailed) Channel() string { return ChannelTaskFailure }
func (*TaskFailed) eventMarker()    {}

// QueueStarted is published once per transition into the running state.
type QueueStarted struct {
	Waiting   []*Task
	Finished  []*Task
	Timestamp time.Time
}

func (*QueueStarted) Channel() string { return ChannelQueueStart }
func (*QueueStarted) eventMarker()    {}

// QueuePaused is published when a requested pause takes effect with tasks
// still waiting.
type QueuePaused struct {
	Waiting   []*Task
	Finished  []*Task
	Timestamp time.Time
}

func (*QueuePaused) Channel() string { return ChannelQueuePause }
func (*QueuePaused) eventMarker()    {}

// QueueFinished is published when the waiting list drains.
type QueueFinished struct {
	Waiting   []*Task
	Finished  []*Task
	Timestamp time.Time
}

func (*QueueFinished) Channel() string { return ChannelQueueFinish }
func (*QueueFinished) eventMarker()    {}
