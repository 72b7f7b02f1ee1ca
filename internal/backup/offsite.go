package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Uploader ships snapshots to an offsite destination as tar.gz archives.
type Uploader struct {
	dest Destination
}

func NewUploader(dest Destination) *Uploader {
	return &Uploader{dest: dest}
}

// UploadSnapshot archives a snapshot directory, streams the archive to the
// destination, then removes the local archive. The snapshot itself stays on
// disk for fast local restores.
func (u *Uploader) UploadSnapshot(instanceName, snapshotDir string) error {
	archivePath, err := Archive(snapshotDir)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("archive unavailable: %w", err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	remoteName := fmt.Sprintf("%s_%s", instanceName, filepath.Base(archivePath))
	if err := u.dest.Upload(remoteName, file, info.Size()); err != nil {
		return err
	}

	log.Printf("[Backup] offsite upload complete: %s -> %s", remoteName, u.dest.Type())
	return nil
}
