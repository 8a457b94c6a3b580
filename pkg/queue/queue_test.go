package queue_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imhucy/async-queue/pkg/core"
	"github.com/imhucy/async-queue/pkg/queue"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newQueue(cfg core.Config) *queue.Queue {
	return queue.New(cfg, queue.WithLogger(discardLogger()))
}

// recorder collects lifecycle events and signals queue transitions.
type recorder struct {
	mu       sync.Mutex
	started  []string
	events   []core.Event
	finished chan struct{}
	failed   chan struct{}
	paused   chan struct{}
}

func record(q *queue.Queue) *recorder {
	r := &recorder{
		finished: make(chan struct{}, 16),
		failed:   make(chan struct{}, 16),
		paused:   make(chan struct{}, 16),
	}
	collect := func(e core.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		if ev, ok := e.(*core.TaskStarted); ok {
			r.started = append(r.started, ev.Task.ID)
		}
		r.mu.Unlock()

		switch e.(type) {
		case *core.QueueFinished:
			r.finished <- struct{}{}
		case *core.TaskFailed:
			r.failed <- struct{}{}
		case *core.QueuePaused:
			r.paused <- struct{}{}
		}
	}
	for _, ch := range []string{
		core.ChannelTaskStart, core.ChannelTaskSuccess, core.ChannelTaskFailure,
		core.ChannelQueueStart, core.ChannelQueuePause, core.ChannelQueueFinish,
	} {
		q.Hub().Subscribe(ch, collect)
	}
	return r
}

func (r *recorder) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.started))
	copy(out, r.started)
	return out
}

func (r *recorder) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Channel() == channel {
			n++
		}
	}
	return n
}

func (r *recorder) waitFinished(t *testing.T) {
	t.Helper()
	select {
	case <-r.finished:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for queue.finish")
	}
}

func (r *recorder) waitFailed(t *testing.T) {
	t.Helper()
	select {
	case <-r.failed:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for task.failure")
	}
}

func ok(result any) core.Op {
	return core.OpFunc(func(context.Context, *core.Task) (any, error) {
		return result, nil
	})
}

func fail(err error) core.Op {
	return core.OpFunc(func(context.Context, *core.Task) (any, error) {
		return nil, err
	})
}

// failOnce fails the first run and succeeds afterwards.
func failOnce(err error) core.Op {
	var ran atomic.Bool
	return core.OpFunc(func(context.Context, *core.Task) (any, error) {
		if ran.CompareAndSwap(false, true) {
			return nil, err
		}
		return "recovered", nil
	})
}

// blocking returns an op that blocks until release is closed.
func blocking(release <-chan struct{}) core.Op {
	return core.OpFunc(func(context.Context, *core.Task) (any, error) {
		<-release
		return nil, nil
	})
}

func TestExec_FIFOOrder(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "a", ok(1), nil))
	require.NoError(t, q.Submit(ctx, "b", ok(2), nil))
	require.NoError(t, q.Submit(ctx, "c", ok(3), nil))

	q.Exec(ctx)
	r.waitFinished(t)

	assert.Equal(t, []string{"a", "b", "c"}, r.startedIDs())
	assert.Equal(t, 1, r.count(core.ChannelQueueStart))
	assert.Equal(t, 1, r.count(core.ChannelQueueFinish))
	assert.True(t, q.IsFinished())
}

func TestExec_SingleInFlight(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	var pending, maxPending int32
	op := core.OpFunc(func(context.Context, *core.Task) (any, error) {
		n := atomic.AddInt32(&pending, 1)
		for {
			m := atomic.LoadInt32(&maxPending)
			if n <= m || atomic.CompareAndSwapInt32(&maxPending, m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&pending, -1)
		return nil, nil
	})

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		require.NoError(t, q.Submit(ctx, id, op, nil))
	}

	q.Exec(ctx)
	r.waitFinished(t)

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxPending))
}

func TestSubmit_Dedup(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "dup", ok(nil), nil))

	// Duplicate while waiting.
	var rejectedErr error
	var existing *core.Task
	err := q.Submit(ctx, "dup", ok(nil), func(e error, t *core.Task) {
		rejectedErr = e
		existing = t
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskExists)
	assert.ErrorIs(t, rejectedErr, core.ErrTaskExists)
	require.NotNil(t, existing)
	assert.Equal(t, "dup", existing.ID)
	assert.Len(t, q.WaitingTasks(), 1)

	q.Exec(ctx)
	r.waitFinished(t)

	// Still blocked while retained in the finished list.
	err = q.Submit(ctx, "dup", ok(nil), nil)
	assert.ErrorIs(t, err, core.ErrTaskExists)

	var dup *core.DuplicateTaskError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, core.StatusSuccess, dup.Existing.Status)

	// Removing from the finished list frees the identity.
	assert.True(t, q.RemoveFinished("dup"))
	assert.NoError(t, q.Submit(ctx, "dup", ok(nil), nil))
}

func TestSubmit_DiscardFinishedFreesID(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "again", ok(nil), nil))
	q.Exec(ctx)
	r.waitFinished(t)

	// Finished tasks are discarded by default, so the id is free.
	assert.NoError(t, q.Submit(ctx, "again", ok(nil), nil))
}

func TestSubmit_GeneratedID(t *testing.T) {
	q := newQueue(core.Config{})
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "", ok(nil), nil))

	waiting := q.WaitingTasks()
	require.Len(t, waiting, 1)
	assert.NotEmpty(t, waiting[0].ID)
}

func TestExec_HaltOnFailure(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true})
	r := record(q)
	ctx := context.Background()

	boom := errors.New("boom")
	require.NoError(t, q.Submit(ctx, "a", ok(nil), nil))
	require.NoError(t, q.Submit(ctx, "b", failOnce(boom), nil))
	require.NoError(t, q.Submit(ctx, "c", ok(nil), nil))

	q.Exec(ctx)
	r.waitFailed(t)

	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 0
	}, waitFor, 5*time.Millisecond)

	// Queue stalled after b: c never started, still waiting.
	assert.Equal(t, []string{"a", "b"}, r.startedIDs())
	assert.True(t, q.IsRunning(), "halted queue stays in running state")
	require.Len(t, q.WaitingTasks(), 1)
	assert.Equal(t, "c", q.WaitingTasks()[0].ID)
	assert.Equal(t, 0, r.count(core.ChannelQueueFinish))

	b := q.FindTaskByID("b")
	require.NotNil(t, b)
	assert.True(t, b.IsFailure())
	assert.ErrorIs(t, b.Err, boom)

	// Retry resumes the chain; b succeeds this time and c runs.
	q.Retry(ctx, b)
	r.waitFinished(t)

	assert.Equal(t, []string{"a", "b", "c", "b"}, r.startedIDs())
	assert.True(t, b.IsSuccess())
	assert.Equal(t, 1, r.count(core.ChannelQueueFinish))
}

func TestExec_ContinueOnFailure(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true, ContinueOnError: true})
	r := record(q)
	ctx := context.Background()

	boom := errors.New("boom")
	require.NoError(t, q.Submit(ctx, "a", ok("ra"), nil))
	require.NoError(t, q.Submit(ctx, "b", fail(boom), nil))
	require.NoError(t, q.Submit(ctx, "c", ok("rc"), nil))

	q.Exec(ctx)
	r.waitFinished(t)

	assert.Equal(t, []string{"a", "b", "c"}, r.startedIDs())
	assert.Equal(t, 1, r.count(core.ChannelQueueFinish))

	assert.True(t, q.FindTaskByID("a").IsSuccess())
	assert.True(t, q.FindTaskByID("b").IsFailure())
	assert.True(t, q.FindTaskByID("c").IsSuccess())
	assert.Equal(t, "ra", q.FindTaskByID("a").Result)
}

func TestPause_Boundary(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "x", blocking(release), nil))
	require.NoError(t, q.Submit(ctx, "y", ok(nil), nil))

	q.Exec(ctx)
	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 1
	}, waitFor, 5*time.Millisecond)

	pauseDone := make(chan error, 1)
	go func() { pauseDone <- q.Pause(ctx) }()

	require.Eventually(t, q.IsBeforePause, waitFor, 5*time.Millisecond)

	// x is still in-flight: pause never interrupts it.
	assert.Len(t, q.InFlightTasks(), 1)

	close(release)
	require.NoError(t, <-pauseDone)

	// x settled, y was withheld.
	assert.True(t, q.IsPause())
	assert.Equal(t, []string{"x"}, r.startedIDs())
	require.Len(t, q.WaitingTasks(), 1)
	assert.Equal(t, "y", q.WaitingTasks()[0].ID)
	assert.Equal(t, 1, r.count(core.ChannelQueuePause))

	q.Resume(ctx)
	r.waitFinished(t)
	assert.Equal(t, []string{"x", "y"}, r.startedIDs())
}

func TestPause_EmptyWaitingFinishes(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "only", blocking(release), nil))

	q.Exec(ctx)
	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 1
	}, waitFor, 5*time.Millisecond)

	pauseDone := make(chan error, 1)
	go func() { pauseDone <- q.Pause(ctx) }()

	close(release)
	require.NoError(t, <-pauseDone)

	assert.True(t, q.IsFinished())
	assert.Equal(t, 1, r.count(core.ChannelQueueFinish))
	assert.Equal(t, 0, r.count(core.ChannelQueuePause))
}

func TestPause_CancelledContextRollsBack(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "x", blocking(release), nil))
	require.NoError(t, q.Submit(ctx, "y", ok(nil), nil))

	q.Exec(ctx)
	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 1
	}, waitFor, 5*time.Millisecond)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	// The pause never takes effect: the queue must not be left frozen
	// in before_pause with no way back.
	err := q.Pause(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, q.IsBeforePause())
	assert.True(t, q.IsRunning())

	// The chain keeps advancing once x settles: y runs and the queue
	// finishes without any further intervention.
	close(release)
	r.waitFinished(t)

	assert.Equal(t, []string{"x", "y"}, r.startedIDs())
	assert.Equal(t, 0, r.count(core.ChannelQueuePause))
	assert.True(t, q.IsFinished())
}

func TestPause_NotRunningIsNoop(t *testing.T) {
	q := newQueue(core.Config{})
	require.NoError(t, q.Pause(context.Background()))
	assert.True(t, q.IsWaiting())
}

func TestResume_OnlyFromPause(t *testing.T) {
	q := newQueue(core.Config{})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "a", ok(nil), nil))

	// Resume on a never-run queue does nothing.
	q.Resume(ctx)
	assert.True(t, q.IsWaiting())
	assert.Empty(t, r.startedIDs())
}

func TestRetryAll(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true, ContinueOnError: true})
	r := record(q)
	ctx := context.Background()

	boom := errors.New("boom")
	require.NoError(t, q.Submit(ctx, "a", failOnce(boom), nil))
	require.NoError(t, q.Submit(ctx, "b", ok("kept"), nil))
	require.NoError(t, q.Submit(ctx, "c", failOnce(boom), nil))

	q.Exec(ctx)
	r.waitFinished(t)

	b := q.FindTaskByID("b")
	require.True(t, b.IsSuccess())

	q.RetryAll(ctx)
	r.waitFinished(t)

	// Failed tasks re-ran in finished order; b was left untouched.
	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, r.startedIDs())
	assert.Same(t, b, q.FindTaskByID("b"))
	assert.True(t, b.IsSuccess())
	assert.Equal(t, "kept", b.Result)

	for _, id := range []string{"a", "c"} {
		assert.True(t, q.FindTaskByID(id).IsSuccess(), id)
	}
	assert.Len(t, q.FinishedTasks(), 3)
}

func TestReset_MergeOrder(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "a", ok(1), nil))
	require.NoError(t, q.Submit(ctx, "b", ok(2), nil))
	q.Exec(ctx)
	r.waitFinished(t)

	require.NoError(t, q.Submit(ctx, "c", ok(3), nil))

	require.NoError(t, q.Reset(nil))

	waiting := q.WaitingTasks()
	require.Len(t, waiting, 3)
	assert.Equal(t, "c", waiting[0].ID)
	assert.Equal(t, "a", waiting[1].ID)
	assert.Equal(t, "b", waiting[2].ID)
	for _, tk := range waiting {
		assert.True(t, tk.IsWaiting())
		assert.Nil(t, tk.Result)
		assert.Nil(t, tk.StartedAt, "%s reads as never-run after reset", tk.ID)
		assert.Nil(t, tk.SettledAt, "%s reads as never-run after reset", tk.ID)
	}
	assert.Empty(t, q.FinishedTasks())

	// Reset never touches queue-level status.
	assert.True(t, q.IsFinished())
}

func TestReset_RejectedWhileRunning(t *testing.T) {
	q := newQueue(core.Config{})
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "x", blocking(release), nil))
	q.Exec(ctx)
	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 1
	}, waitFor, 5*time.Millisecond)

	var rejected error
	err := q.Reset(func(e error) { rejected = e })
	assert.ErrorIs(t, err, core.ErrQueueRunning)
	assert.ErrorIs(t, rejected, core.ErrQueueRunning)

	close(release)
}

func TestSubmit_Immediate(t *testing.T) {
	q := newQueue(core.Config{Immediate: true})
	r := record(q)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, "auto", ok(nil), nil))
	r.waitFinished(t)

	assert.Equal(t, []string{"auto"}, r.startedIDs())

	// A finished queue picks up again on the next submission.
	require.NoError(t, q.Submit(ctx, "auto2", ok(nil), nil))
	r.waitFinished(t)
	assert.Equal(t, []string{"auto", "auto2"}, r.startedIDs())
}

func TestExec_RedundantIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	q := queue.New(core.Config{}, queue.WithLogger(logger))
	r := record(q)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "x", blocking(release), nil))

	q.Exec(ctx)
	require.Eventually(t, func() bool {
		return len(q.InFlightTasks()) == 1
	}, waitFor, 5*time.Millisecond)

	q.Exec(ctx)
	assert.Contains(t, buf.String(), "already running")

	close(release)
	r.waitFinished(t)

	assert.Equal(t, 1, r.count(core.ChannelQueueStart))
}

func TestEvents_PayloadSnapshots(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true})
	ctx := context.Background()

	q.Hub().Subscribe(core.ChannelTaskStart, func(e core.Event) {
		ev := e.(*core.TaskStarted)
		// Observers mutating the payload must not corrupt the queue.
		for i := range ev.Waiting {
			ev.Waiting[i] = nil
		}
	})
	r := record(q)

	require.NoError(t, q.Submit(ctx, "a", ok(nil), nil))
	require.NoError(t, q.Submit(ctx, "b", ok(nil), nil))

	q.Exec(ctx)
	r.waitFinished(t)

	assert.Equal(t, []string{"a", "b"}, r.startedIDs())
	require.Len(t, q.FinishedTasks(), 2)
	assert.NotNil(t, q.FinishedTasks()[0])
}

func TestTask_DoneHandle(t *testing.T) {
	q := newQueue(core.Config{})
	ctx := context.Background()

	started := make(chan struct{}, 1)
	q.Hub().Subscribe(core.ChannelTaskStart, func(core.Event) {
		started <- struct{}{}
	})

	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "x", blocking(release), nil))

	// Not yet in flight: Done is already closed.
	tk := q.FindTaskByID("x")
	select {
	case <-tk.Done():
	default:
		t.Fatal("Done on a waiting task should not block")
	}

	q.Exec(ctx)
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for task.start")
	}

	select {
	case <-tk.Done():
		t.Fatal("Done should block while in flight")
	default:
	}

	close(release)
	select {
	case <-tk.Done():
	case <-time.After(waitFor):
		t.Fatal("Done should close once settled")
	}
	assert.True(t, tk.IsSuccess())
}

func TestSetConfig_ReplacesWhole(t *testing.T) {
	q := newQueue(core.Config{RetainFinished: true})

	q.SetConfig(core.Config{ContinueOnError: true})

	cfg := q.Config()
	assert.True(t, cfg.ContinueOnError)
	assert.False(t, cfg.RetainFinished, "SetConfig replaces, never patches")
	assert.False(t, cfg.Immediate)
}
