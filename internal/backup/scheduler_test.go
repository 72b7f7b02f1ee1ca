package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, tick time.Duration) (*Scheduler, string) {
	t.Helper()
	root := t.TempDir()
	worldDir := filepath.Join(root, "world")
	if err := os.MkdirAll(worldDir, 0755); err != nil {
		t.Fatalf("failed to create world dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(worldDir, "level.dat"), []byte("data"), 0644); err != nil {
		t.Fatalf("failed to seed world dir: %v", err)
	}

	backupDir := filepath.Join(root, "backups")
	s := NewScheduler(Options{
		WorldDir:  worldDir,
		BackupDir: backupDir,
		Tick:      tick,
	})
	go s.Run()
	t.Cleanup(s.Close)
	return s, backupDir
}

func countSnapshots(t *testing.T, backupDir string) int {
	t.Helper()
	snaps, err := ListSnapshots(backupDir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	return len(snaps)
}

func waitForSnapshots(t *testing.T, backupDir string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if countSnapshots(t, backupDir) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d snapshots, have %d", want, countSnapshots(t, backupDir))
}

func TestPeriodicBackupFires(t *testing.T) {
	s, backupDir := newTestScheduler(t, 2*time.Millisecond)

	if err := s.SetPeriod(5); err != nil {
		t.Fatalf("SetPeriod failed: %v", err)
	}

	waitForSnapshots(t, backupDir, 1)
}

func TestPauseDiscardsEverythingButResume(t *testing.T) {
	s, backupDir := newTestScheduler(t, 2*time.Millisecond)

	if err := s.SetPeriod(1000); err != nil {
		t.Fatalf("SetPeriod failed: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// Discarded while paused.
	if err := s.BackupNow(); err != nil {
		t.Fatalf("BackupNow failed: %v", err)
	}
	if err := s.SetPeriod(1); err != nil {
		t.Fatalf("SetPeriod failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := countSnapshots(t, backupDir); n != 0 {
		t.Fatalf("expected no snapshots while paused, got %d", n)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := s.BackupNow(); err != nil {
		t.Fatalf("BackupNow failed: %v", err)
	}
	waitForSnapshots(t, backupDir, 1)
}

func TestIneligibleTicksDoNotCount(t *testing.T) {
	root := t.TempDir()
	worldDir := filepath.Join(root, "world")
	os.MkdirAll(worldDir, 0755)
	os.WriteFile(filepath.Join(worldDir, "level.dat"), []byte("data"), 0644)
	backupDir := filepath.Join(root, "backups")

	s := NewScheduler(Options{
		WorldDir:  worldDir,
		BackupDir: backupDir,
		Tick:      2 * time.Millisecond,
		Eligible:  func() bool { return false },
	})
	go s.Run()
	defer s.Close()

	if err := s.SetPeriod(2); err != nil {
		t.Fatalf("SetPeriod failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := countSnapshots(t, backupDir); n != 0 {
		t.Fatalf("expected no snapshots while ineligible, got %d", n)
	}
}

func TestControlMethodsFailAfterClose(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)
	s.Close()

	// The failure must be deterministic, not a race the closed channel
	// happens to win, so hammer every control method.
	for i := 0; i < 50; i++ {
		if err := s.BackupNow(); err != ErrSchedulerStopped {
			t.Fatalf("BackupNow after close: expected ErrSchedulerStopped, got %v", err)
		}
		if err := s.Pause(); err != ErrSchedulerStopped {
			t.Fatalf("Pause after close: expected ErrSchedulerStopped, got %v", err)
		}
		if err := s.Resume(); err != ErrSchedulerStopped {
			t.Fatalf("Resume after close: expected ErrSchedulerStopped, got %v", err)
		}
		if err := s.SetPeriod(5); err != ErrSchedulerStopped {
			t.Fatalf("SetPeriod after close: expected ErrSchedulerStopped, got %v", err)
		}
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	backupDir := filepath.Join(root, "backups")
	os.MkdirAll(backupDir, 0755)

	names := []string{
		"backup-2026-01-01_10-00-00",
		"backup-2026-01-02_10-00-00",
		"backup-2026-01-03_10-00-00",
	}
	for _, name := range names {
		os.MkdirAll(filepath.Join(backupDir, name), 0755)
	}

	if err := Prune(backupDir, 2); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	snaps, err := ListSnapshots(backupDir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Name != "backup-2026-01-03_10-00-00" || snaps[1].Name != "backup-2026-01-02_10-00-00" {
		t.Fatalf("wrong snapshots kept: %v, %v", snaps[0].Name, snaps[1].Name)
	}
}
