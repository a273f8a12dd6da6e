// Package storage provides a content-addressed archive for sealed
// registration artifacts with pluggable backends.
//
// Backends are specified using URI format:
//
//	file:///var/lib/hpvs-deployer/artifacts
//	s3://bucket-name/prefix/?region=us-west-2
//
// Content is stored and retrieved by SHA-256 hash, so an archived artifact
// can be located later from the hash recorded in the deployment log.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// FileBackend implements an artifact archive using the local file system.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file archive rooted at baseDir, creating the
// directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Store persists data under its content hash.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.filePath(id)

	if err := os.WriteFile(path, data, 0644); err != nil {
		b.log.Error("Failed to write artifact", "err", err, "path", path)
		return interfaces.ContentID{}, fmt.Errorf("failed to write artifact: %w", err)
	}

	b.log.Debug("Stored artifact", "id", id.String(), "size", len(data))
	return id, nil
}

// Fetch retrieves data by content hash. Returns ErrContentNotFound if no
// artifact with that hash is archived.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	path := b.filePath(id)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	if !interfaces.ComputeID(data).Equal(id) {
		return nil, fmt.Errorf("artifact %s failed hash verification", id.String())
	}
	return data, nil
}

// Available checks whether the archive directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(b.baseDir)
	return err == nil && info.IsDir()
}

// LocationURI returns the URI this backend was created from.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) filePath(id interfaces.ContentID) string {
	return filepath.Join(b.baseDir, id.String()+".asc")
}
