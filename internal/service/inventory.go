package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"camerabridge/internal/domain"
)

// ImportResult reports what an inventory import did
type ImportResult struct {
	Added   []domain.Device `json:"added"`
	Skipped []ImportSkip    `json:"skipped,omitempty"`
}

// ImportSkip is one device the registry refused
type ImportSkip struct {
	ID      string `json:"id,omitempty"`
	Address string `json:"address"`
	Channel int    `json:"channel"`
	Reason  string `json:"reason"`
}

// ImportCameras adds devices one at a time in the given order. Devices
// whose id or address/channel is already registered are skipped and
// reported; a persistence failure stops the import.
func (s *CameraService) ImportCameras(ctx context.Context, devices []domain.Device) (ImportResult, error) {
	res := ImportResult{Added: []domain.Device{}}
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		added, err := s.registry.Add(ctx, d)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				res.Skipped = append(res.Skipped, ImportSkip{
					ID:      d.ID,
					Address: d.Address,
					Channel: d.Channel,
					Reason:  err.Error(),
				})
				continue
			}
			return res, fmt.Errorf("import %s: %w", d.Key(), err)
		}
		res.Added = append(res.Added, added)
	}
	s.logger.Info("inventory imported",
		zap.Int("added", len(res.Added)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
