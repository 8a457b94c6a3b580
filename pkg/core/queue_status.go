package core

// QueueStatus tracks the lifecycle state of the sequencer itself.
type QueueStatus string

const (
	// QueueWaiting is the constructed, never-run state.
	QueueWaiting QueueStatus = "waiting"
	// QueueRunning means the sequencer is advancing through the waiting list.
	QueueRunning QueueStatus = "running"
	// QueueBeforePause means a pause was requested and the sequencer is
	// letting the current in-flight task settle.
	QueueBeforePause QueueStatus = "before_pause"
	// QueuePause means advancement is frozen with tasks still waiting.
	QueuePause QueueStatus = "pause"
	// QueueFinish means the waiting list drained. A finished queue can be
	// reset back to waiting.
	QueueFinish QueueStatus = "finish"
)
