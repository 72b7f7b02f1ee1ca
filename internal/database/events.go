package database

import (
	"log"
	"sync"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/events"
)

// EventRow is one persisted instance event.
type EventRow struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instance_id"`
	Category   string    `json:"category"`
	Player     string    `json:"player,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type pendingEvent struct {
	instanceID string
	event      events.Event
}

// Recorder persists instance events asynchronously. Writes are queued on a
// buffered channel and drained by a single writer goroutine so event dispatch
// never blocks on the database.
type Recorder struct {
	db   *DB
	ch   chan pendingEvent
	done chan struct{}
	once sync.Once
}

// NewRecorder starts the background writer.
func NewRecorder(db *DB) *Recorder {
	r := &Recorder{
		db:   db,
		ch:   make(chan pendingEvent, 256),
		done: make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Record queues one event for persistence. Raw console output is not stored;
// only semantic events end up in history. If the queue is full the event is
// dropped rather than stalling the caller.
func (r *Recorder) Record(instanceID string, e events.Event) {
	if e.Category == events.CategoryRawMessage {
		return
	}
	select {
	case r.ch <- pendingEvent{instanceID: instanceID, event: e}:
	default:
		log.Printf("[Recorder] event queue full, dropping %s event for %s", e.Category, instanceID)
	}
}

// Recent returns the newest events for an instance, newest first.
func (r *Recorder) Recent(instanceID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT id, instance_id, category, COALESCE(player, ''), COALESCE(message, ''), created_at
		FROM instance_events
		WHERE instance_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventRow
	for rows.Next() {
		var row EventRow
		var created string
		if err := rows.Scan(&row.ID, &row.InstanceID, &row.Category, &row.Player, &row.Message, &created); err != nil {
			return nil, err
		}
		row.CreatedAt = parseSQLiteTime(created)
		result = append(result, row)
	}
	return result, rows.Err()
}

// parseSQLiteTime handles the text timestamp format SQLite's datetime
// functions produce.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// RecordBackup notes a completed snapshot in the backup history.
func (r *Recorder) RecordBackup(instanceID, snapshot string) {
	if _, err := r.db.Exec(
		"INSERT INTO backup_history (instance_id, snapshot) VALUES (?, ?)",
		instanceID, snapshot,
	); err != nil {
		log.Printf("[Recorder] failed to record backup for %s: %v", instanceID, err)
	}
}

// BackupHistory returns recorded snapshots for an instance, newest first.
func (r *Recorder) BackupHistory(instanceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT snapshot FROM backup_history
		WHERE instance_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Close stops the writer after draining queued events.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.ch)
		<-r.done
	})
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for p := range r.ch {
		if _, err := r.db.Exec(
			"INSERT INTO instance_events (instance_id, category, player, message) VALUES (?, ?, ?, ?)",
			p.instanceID, p.event.Category.String(), p.event.Player, p.event.Message,
		); err != nil {
			log.Printf("[Recorder] failed to persist event: %v", err)
		}
	}
}
