package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/events"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestNewDBAndMigrate(t *testing.T) {
	db := openTestDB(t)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), count)
	}

	// A second run is a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("re-migrate applied migrations twice")
	}
}

func TestRecorderPersistsEvents(t *testing.T) {
	db := openTestDB(t)
	recorder := NewRecorder(db)

	recorder.Record("inst-1", events.PlayerJoined("Steve"))
	recorder.Record("inst-1", events.Chat("Steve", "hello"))
	recorder.Record("inst-2", events.PlayerJoined("Alex"))
	// Raw console lines are not history.
	recorder.Record("inst-1", events.RawMessage("some noise"))

	recorder.Close()

	rows, err := recorder.Recent("inst-1", 10)
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 events for inst-1, got %d", len(rows))
	}
	for _, row := range rows {
		if row.InstanceID != "inst-1" {
			t.Fatalf("event from wrong instance: %+v", row)
		}
		if time.Since(row.CreatedAt) > time.Hour {
			t.Fatalf("suspicious timestamp: %v", row.CreatedAt)
		}
	}
}

func TestRecorderBackupHistory(t *testing.T) {
	db := openTestDB(t)
	recorder := NewRecorder(db)
	defer recorder.Close()

	recorder.RecordBackup("inst-1", "backup-2026-08-25_12-00-00")
	recorder.RecordBackup("inst-1", "backup-2026-08-25_13-00-00")

	snapshots, err := recorder.BackupHistory("inst-1", 10)
	if err != nil {
		t.Fatalf("failed to read backup history: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
}
