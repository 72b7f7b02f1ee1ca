package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cp "github.com/otiai10/copy"
)

const snapshotPrefix = "backup-"
const snapshotTimeLayout = "2006-01-02_15-04-05"

// SnapshotInfo describes one on-disk snapshot directory.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Snapshot copies the world directory into a timestamped directory under
// backupDir and returns the snapshot path.
func Snapshot(worldDir, backupDir string) (string, error) {
	if _, err := os.Stat(worldDir); err != nil {
		return "", fmt.Errorf("world directory unavailable: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := snapshotPrefix + time.Now().Format(snapshotTimeLayout)
	dest := filepath.Join(backupDir, name)

	log.Printf("[Backup] copying %s -> %s", worldDir, dest)
	if err := cp.Copy(worldDir, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("failed to copy world directory: %w", err)
	}

	log.Printf("[Backup] snapshot complete: %s", name)
	return dest, nil
}

// ListSnapshots returns the snapshots under backupDir, newest first.
func ListSnapshots(backupDir string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []SnapshotInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}
		created, err := time.ParseInLocation(snapshotTimeLayout, strings.TrimPrefix(entry.Name(), snapshotPrefix), time.Local)
		if err != nil {
			continue
		}
		path := filepath.Join(backupDir, entry.Name())
		out = append(out, SnapshotInfo{
			Name:      entry.Name(),
			Path:      path,
			CreatedAt: created,
			SizeBytes: dirSize(path),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Prune deletes the oldest snapshots so at most retain remain.
func Prune(backupDir string, retain int) error {
	snapshots, err := ListSnapshots(backupDir)
	if err != nil {
		return err
	}
	if len(snapshots) <= retain {
		return nil
	}

	for _, snap := range snapshots[retain:] {
		log.Printf("[Backup] pruning old snapshot %s", snap.Name)
		if err := os.RemoveAll(snap.Path); err != nil {
			return fmt.Errorf("failed to prune %s: %w", snap.Name, err)
		}
	}
	return nil
}

func dirSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
