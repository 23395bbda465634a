package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/model"
	"github.com/mockloc/mockloc/internal/model/convert"
	"github.com/mockloc/mockloc/internal/queue"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultQueueLimit bounds the events held while the database is unreachable.
const DefaultQueueLimit = 10000

// Recorder writes session events to the database in batches. Publish never
// blocks on the database; a background loop flushes the queue.
type Recorder struct {
	db     *gorm.DB
	queue  *queue.Queue[core.Event]
	logger zerolog.Logger

	// flushMu serializes flushes so events of one session stay ordered
	flushMu sync.Mutex

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewRecorder creates a recorder. The schema must be migrated.
func NewRecorder(db *gorm.DB, limit int, logger zerolog.Logger) *Recorder {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Recorder{
		db:       db,
		queue:    queue.New[core.Event](limit),
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish implements events.Sink.
func (r *Recorder) Publish(e core.Event) {
	if e.SessionID == "" {
		return
	}
	if dropped := r.queue.Push(e); dropped > 0 {
		r.logger.Warn().Int("dropped", dropped).Msg("Event queue full, dropped oldest events")
	}
}

// Pending returns the number of queued events.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// Start runs the flush loop until Close.
func (r *Recorder) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				if err := r.Flush(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("Failed to write session events")
				}
			}
		}
	}()
}

// Close stops the flush loop and writes what is left.
func (r *Recorder) Close(ctx context.Context) error {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	if r.started.Load() {
		select {
		case <-r.done:
		case <-ctx.Done():
		}
	}
	return r.Flush(ctx)
}

// Flush writes every queued event in one transaction. On failure the events are
// put back in the queue.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	items := r.queue.Drain()
	if len(items) == 0 {
		return nil
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range groupBySession(items) {
			if err := writeSession(tx, group); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.queue.Requeue(items...)
		return err
	}

	r.logger.Debug().Int("events", len(items)).Dur("duration", time.Since(start)).Msg("Wrote session events")
	return nil
}

// groupBySession splits events per session, keeping first-seen order.
func groupBySession(items []core.Event) [][]core.Event {
	index := make(map[string]int)
	var groups [][]core.Event
	for _, e := range items {
		i, ok := index[e.SessionID]
		if !ok {
			i = len(groups)
			index[e.SessionID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}

func writeSession(tx *gorm.DB, events []core.Event) error {
	id := events[0].SessionID

	var rec model.SessionRecord
	err := tx.Where("session_id = ?", id).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = convert.NewSessionRecord(id, events[0].Time)
	case err != nil:
		return fmt.Errorf("failed to find session %s: %w", id, err)
	}

	failures := convert.FailuresToMap(rec)
	rows := make([]model.SessionEvent, 0, len(events))
	for _, e := range events {
		apply(&rec, failures, e)
		rows = append(rows, convert.CoreToSessionEvent(e))
	}
	convert.SetFailures(&rec, failures)

	if err := tx.Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	for i := range rows {
		rows[i].SessionRecordID = rec.ID
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert events of session %s: %w", id, err)
	}
	return nil
}

// apply folds one event into the session record.
func apply(rec *model.SessionRecord, failures map[string]string, e core.Event) {
	switch e.Kind {
	case core.EventStrategyActivated:
		rec.Strategy = e.Strategy
		rec.EndedAt = nil
		if app := e.Fields["app"]; app != "" {
			rec.AppID = app
		}
		setTarget(rec, e.Fields)
	case core.EventTargetChanged:
		setTarget(rec, e.Fields)
	case core.EventStrategyFailed:
		failures[e.Strategy] = e.Detail
	case core.EventReset:
		rec.Resets++
	case core.EventStopped, core.EventExhausted:
		t := e.Time
		rec.EndedAt = &t
	}
}

func setTarget(rec *model.SessionRecord, fields map[string]string) {
	lat, err1 := strconv.ParseFloat(fields["lat"], 64)
	lng, err2 := strconv.ParseFloat(fields["lng"], 64)
	if err1 != nil || err2 != nil {
		return
	}
	if pt, err := geo.Point3857From4326(lat, lng); err == nil {
		rec.Target = pt
	}
}

// Sessions implements History.
func (r *Recorder) Sessions(ctx context.Context, limit int) ([]core.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.SessionRecord
	err := r.db.WithContext(ctx).
		Preload("Events").
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]core.SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, convert.SessionRecordToCore(row))
	}
	return out, nil
}

var _ History = (*Recorder)(nil)
