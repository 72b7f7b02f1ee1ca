package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive packs a snapshot directory into a tar.gz file next to it and
// returns the archive path. Used for offsite uploads; local restores work
// directly off the snapshot directory.
func Archive(snapshotDir string) (string, error) {
	info, err := os.Stat(snapshotDir)
	if err != nil {
		return "", fmt.Errorf("snapshot unavailable: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("snapshot is not a directory: %s", snapshotDir)
	}

	archivePath := snapshotDir + ".tar.gz"
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	base := filepath.Base(snapshotDir)
	err = filepath.Walk(snapshotDir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(snapshotDir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		tw.Close()
		gz.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	return archivePath, nil
}
