package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalArchive implements Archive using the local filesystem. Files live
// under one directory per supplier slug with a .meta sidecar directory
// holding per-file JSON metadata.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a local filesystem archive
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Store archives a price list file and returns its metadata
func (s *LocalArchive) Store(ctx context.Context, supplier, filename string, r io.Reader) (*FileInfo, error) {
	fileID := uuid.New()

	supplierDir := filepath.Join(s.basePath, supplierSlug(supplier))
	if err := os.MkdirAll(supplierDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create supplier directory: %w", err)
	}

	// UUID prefix keeps repeated uploads of the same filename distinct.
	safeFilename := sanitizeFilename(filepath.Base(filename))
	storedFilename := fmt.Sprintf("%s_%s", fileID.String()[:8], safeFilename)
	filePath := filepath.Join(supplierDir, storedFilename)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &FileInfo{
		ID:         fileID,
		Name:       filename,
		Supplier:   supplier,
		Size:       size,
		Path:       filepath.Join(supplierSlug(supplier), storedFilename),
		ArchivedAt: time.Now().UTC(),
	}

	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath)
		return nil, err
	}

	return info, nil
}

// Open retrieves an archived file by its ID
func (s *LocalArchive) Open(ctx context.Context, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// Delete removes an archived file by its ID
func (s *LocalArchive) Delete(ctx context.Context, fileID uuid.UUID) error {
	info, err := s.GetInfo(ctx, fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.basePath, info.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	os.Remove(s.metaPath(fileID))
	return nil
}

// List returns all archived files for a supplier
func (s *LocalArchive) List(ctx context.Context, supplier string) ([]*FileInfo, error) {
	metaDir := filepath.Join(s.basePath, ".meta")
	entries, err := os.ReadDir(metaDir)
	if os.IsNotExist(err) {
		return []*FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		info, err := s.GetInfo(ctx, id)
		if err != nil {
			continue
		}
		if supplier == "" || info.Supplier == supplier {
			files = append(files, info)
		}
	}
	return files, nil
}

// GetInfo returns metadata for an archived file without opening it
func (s *LocalArchive) GetInfo(ctx context.Context, fileID uuid.UUID) (*FileInfo, error) {
	data, err := os.ReadFile(s.metaPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", fileID)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

func (s *LocalArchive) metaPath(fileID uuid.UUID) string {
	return filepath.Join(s.basePath, ".meta", fileID.String()+".json")
}

func (s *LocalArchive) saveMetadata(info *FileInfo) error {
	metaDir := filepath.Join(s.basePath, ".meta")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(info.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// supplierSlug maps a supplier name onto a safe directory name
func supplierSlug(supplier string) string {
	slug := strings.ToLower(strings.TrimSpace(supplier))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = sanitizeFilename(slug)
	if slug == "" {
		slug = "unknown"
	}
	return slug
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
