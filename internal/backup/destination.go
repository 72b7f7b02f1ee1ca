package backup

import (
	"fmt"
	"io"

	"github.com/yourusername/minecraft-server-manager/internal/config"
)

// Destination is an offsite backup target.
type Destination interface {
	// Upload stores a file at the destination.
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// Download streams a stored file into the writer.
	Download(filename string, writer io.Writer) error

	// Delete removes a stored file.
	Delete(filename string) error

	// List returns all stored backup files.
	List() ([]RemoteFile, error)

	// Type returns the destination type identifier.
	Type() string
}

// RemoteFile describes one file stored at a destination.
type RemoteFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// NewDestination builds a destination from the application config. An empty
// type means offsite backups are disabled.
func NewDestination(cfg *config.DestinationConfig) (Destination, error) {
	switch cfg.Type {
	case "local":
		return NewLocalDestination(cfg.Path), nil
	case "s3":
		return NewS3Destination(cfg)
	case "sftp":
		return NewSFTPDestination(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}
