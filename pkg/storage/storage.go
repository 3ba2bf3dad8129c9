// Package storage archives ingested supplier price list files so a source
// document can be re-examined after its rows have been imported.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// FileInfo contains metadata about an archived price list
type FileInfo struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Supplier   string    `json:"supplier"`
	Size       int64     `json:"size"`
	Path       string    `json:"path"` // Internal storage path
	ArchivedAt time.Time `json:"archived_at"`
}

// Archive defines the interface for price list archival operations
type Archive interface {
	// Store archives a price list file and returns its metadata
	Store(ctx context.Context, supplier, filename string, r io.Reader) (*FileInfo, error)

	// Open retrieves an archived file by its ID
	Open(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Delete removes an archived file by its ID
	Delete(ctx context.Context, fileID uuid.UUID) error

	// List returns all archived files for a supplier
	List(ctx context.Context, supplier string) ([]*FileInfo, error)

	// GetInfo returns metadata for an archived file without opening it
	GetInfo(ctx context.Context, fileID uuid.UUID) (*FileInfo, error)
}

// Config holds archive configuration
type Config struct {
	LocalPath string
}

// New creates an Archive implementation based on configuration
func New(cfg *Config) (Archive, error) {
	path := cfg.LocalPath
	if path == "" {
		path = "./archive"
	}
	return NewLocalArchive(path)
}
