// Package journal records sequencer lifecycle events to a database.
//
// A Journal attaches to the sequencer's hub and appends one row per
// event. It is a passive observer: write failures are logged and never
// propagate back into event delivery or queue state.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/imhucy/async-queue/pkg/core"
	"github.com/imhucy/async-queue/pkg/hub"
)

// Record is one journaled lifecycle event.
type Record struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Channel   string `gorm:"index;size:64;not null"`
	TaskID    string `gorm:"index;size:255"`
	Status    string `gorm:"size:20"`
	Result    []byte
	Error     string `gorm:"type:text"`
	CreatedAt time.Time
}

// Journal persists lifecycle events through GORM.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Open creates a Journal on the given database handle.
func Open(db *gorm.DB, opts ...Option) *Journal {
	j := &Journal{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Migrate creates the journal table.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.db.WithContext(ctx).AutoMigrate(&Record{})
}

// Attach subscribes the journal to every lifecycle channel on the hub.
// The returned function detaches it again.
func (j *Journal) Attach(h *hub.Hub[core.Event]) func() {
	channels := []string{
		core.ChannelTaskStart,
		core.ChannelTaskSuccess,
		core.ChannelTaskFailure,
		core.ChannelQueueStart,
		core.ChannelQueuePause,
		core.ChannelQueueFinish,
	}
	subs := make([]*hub.Subscription, 0, len(channels))
	for _, ch := range channels {
		subs = append(subs, h.Subscribe(ch, j.record))
	}
	return func() {
		for _, s := range subs {
			s.Cancel()
		}
	}
}

func (j *Journal) record(e core.Event) {
	rec := &Record{Channel: e.Channel()}

	switch ev := e.(type) {
	case *core.TaskStarted:
		rec.TaskID = ev.Task.ID
		rec.Status = string(ev.Task.Status)
		rec.CreatedAt = ev.Timestamp
	case *core.TaskSucceeded:
		rec.TaskID = ev.Task.ID
		rec.Status = string(ev.Task.Status)
		rec.CreatedAt = ev.Timestamp
		if ev.Result != nil {
			if b, err := json.Marshal(ev.Result); err == nil {
				rec.Result = b
			}
		}
	case *core.TaskFailed:
		rec.TaskID = ev.Task.ID
		rec.Status = string(ev.Task.Status)
		rec.CreatedAt = ev.Timestamp
		if ev.Cause != nil {
			rec.Error = ev.Cause.Error()
		}
	case *core.QueueStarted:
		rec.CreatedAt = ev.Timestamp
	case *core.QueuePaused:
		rec.CreatedAt = ev.Timestamp
	case *core.QueueFinished:
		rec.CreatedAt = ev.Timestamp
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := j.db.Create(rec).Error; err != nil {
		j.logger.Error("journal: failed to record event",
			"channel", rec.Channel, "task", rec.TaskID, "error", err)
	}
}

// TaskHistory returns every journaled event for a task, oldest first.
func (j *Journal) TaskHistory(ctx context.Context, taskID string) ([]Record, error) {
	var recs []Record
	err := j.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

// Failures returns every journaled task failure, oldest first.
func (j *Journal) Failures(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := j.db.WithContext(ctx).
		Where("channel = ?", core.ChannelTaskFailure).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

// Recent returns the n most recent records, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Record, error) {
	var recs []Record
	err := j.db.WithContext(ctx).
		Order("id DESC").
		Limit(n).
		Find(&recs).Error
	return recs, err
}
