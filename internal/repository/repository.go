package repository

import (
	"context"

	"camerabridge/internal/domain"
)

// Repository stores full snapshots of the device registry. Every Save
// replaces the previous snapshot as a whole; a Save that fails midway must
// leave the previous snapshot readable.
type Repository interface {
	// LoadDevices returns the last saved snapshot in saved order. A store
	// that has never been written returns an empty slice and no error.
	LoadDevices(ctx context.Context) ([]domain.Device, error)

	// SaveDevices atomically replaces the snapshot
	SaveDevices(ctx context.Context, devices []domain.Device) error

	// Close releases resources
	Close() error
}
