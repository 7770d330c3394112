package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"camerabridge/internal/domain"
)

// Repository persists the registry as one JSON file
type Repository struct {
	path string
	mu   sync.Mutex
}

// New creates a repository writing to path. The parent directory is
// created on first save.
func New(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the snapshot location
func (r *Repository) Path() string {
	return r.path
}

// LoadDevices reads the snapshot; a missing file is an empty registry
func (r *Repository) LoadDevices(ctx context.Context) ([]domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Device{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return []domain.Device{}, nil
	}

	var devices []domain.Device
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", r.path, err)
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	return devices, nil
}

// SaveDevices writes the snapshot to a temp file and renames it into place
func (r *Repository) SaveDevices(ctx context.Context, devices []domain.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if devices == nil {
		devices = []domain.Device{}
	}

	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	committed = true

	// Best effort: make the rename itself durable
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// Close is a no-op; the file is not held open between saves
func (r *Repository) Close() error {
	return nil
}
