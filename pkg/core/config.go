package core

// Config holds the three behavior switches of a sequencer. The zero value
// is the default behavior: manual start, discard finished tasks, halt on
// the first failure.
//
// A Config is fixed at construction and only ever replaced as a whole;
// there is no per-field patching.
type Config struct {
	// Immediate starts execution automatically when a task is submitted
	// to an idle queue.
	Immediate bool

	// RetainFinished keeps settled tasks in the finished list instead of
	// discarding them. Retained tasks still count for deduplication and
	// are the input to Retry, RetryAll and Reset.
	RetainFinished bool

	// ContinueOnError keeps advancing past a failed task. When false the
	// queue stalls after a failure until an external actor intervenes.
	ContinueOnError bool
}
