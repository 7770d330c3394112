package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"camerabridge/internal/bridge"
	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
	"camerabridge/internal/registry"
)

// Manual-add defaults
const (
	ManualManufacturer = "Manual"
	ManualModel        = "Custom"
	ManualPort         = 554
	ManualChannel      = 1
)

// Discoverer runs one discovery pass
type Discoverer interface {
	RunDiscovery(ctx context.Context) (domain.DiscoveryResult, error)
	InProgress() bool
}

// MediaEngine is the part of the streaming engine the admin API drives
type MediaEngine interface {
	Healthy(ctx context.Context) bool
	RegisterStream(ctx context.Context, id, sourceURI string) error
}

// NewCamera is the body of a manual add
type NewCamera struct {
	Name         string              `json:"name"`
	StreamURI    string              `json:"stream_uri"`
	Address      string              `json:"address"`
	Port         int                 `json:"port,omitempty"`
	Channel      *int                `json:"channel,omitempty"`
	Manufacturer string              `json:"manufacturer,omitempty"`
	Model        string              `json:"model,omitempty"`
	Status       domain.DeviceStatus `json:"status,omitempty"`
}

// Status summarizes the registry and the engine
type Status struct {
	Total               int  `json:"total"`
	Online              int  `json:"online"`
	Offline             int  `json:"offline"`
	Unknown             int  `json:"unknown"`
	Sentinels           int  `json:"setup_required"`
	EngineReady         bool `json:"engine_ready"`
	DiscoveryInProgress bool `json:"discovery_in_progress"`
}

// CameraService provides business logic for camera operations
type CameraService struct {
	registry   *registry.Registry
	discoverer Discoverer
	tokens     *bridge.TokenIssuer
	engine     MediaEngine
	logger     *zap.Logger
}

// NewCameraService creates a new camera service. discoverer, tokens and
// engine may be nil; the corresponding operations then report an error or
// a not-ready status.
func NewCameraService(reg *registry.Registry, discoverer Discoverer, tokens *bridge.TokenIssuer, engine MediaEngine, logger *zap.Logger) *CameraService {
	return &CameraService{
		registry:   reg,
		discoverer: discoverer,
		tokens:     tokens,
		engine:     engine,
		logger:     logging.OrNop(logger),
	}
}

// ListCameras returns every registered camera in registry order
func (s *CameraService) ListCameras() []domain.Device {
	return s.registry.List()
}

// GetCamera retrieves a single camera by ID
func (s *CameraService) GetCamera(id string) (domain.Device, error) {
	d, ok := s.registry.Get(id)
	if !ok {
		return domain.Device{}, fmt.Errorf("camera %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

// AddCamera validates a manual add, applies defaults and registers it
func (s *CameraService) AddCamera(ctx context.Context, in NewCamera) (domain.Device, error) {
	if err := validateNewCamera(in); err != nil {
		return domain.Device{}, err
	}

	d := domain.Device{
		Name:         strings.TrimSpace(in.Name),
		StreamURI:    strings.TrimSpace(in.StreamURI),
		Address:      strings.TrimSpace(in.Address),
		Port:         in.Port,
		Channel:      ManualChannel,
		Manufacturer: in.Manufacturer,
		Model:        in.Model,
		Status:       in.Status,
	}
	if d.Port == 0 {
		d.Port = ManualPort
	}
	if in.Channel != nil {
		d.Channel = *in.Channel
	}
	if d.Manufacturer == "" {
		d.Manufacturer = ManualManufacturer
	}
	if d.Model == "" {
		d.Model = ManualModel
	}
	if d.Status == "" {
		d.Status = domain.DeviceStatusUnknown
	}

	added, err := s.registry.Add(ctx, d)
	if err != nil {
		return domain.Device{}, err
	}
	s.logger.Info("camera added manually", zap.String("id", added.ID), zap.String("name", added.Name))
	return added, nil
}

func validateNewCamera(in NewCamera) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.NewValidationError("name", "required")
	}
	if strings.TrimSpace(in.StreamURI) == "" {
		return domain.NewValidationError("stream_uri", "required")
	}
	if strings.TrimSpace(in.Address) == "" {
		return domain.NewValidationError("address", "required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	return nil
}

// UpdateCamera applies a partial update
func (s *CameraService) UpdateCamera(ctx context.Context, id string, patch domain.DevicePatch) (domain.Device, error) {
	if patch.Empty() {
		return domain.Device{}, domain.NewValidationError("body", "no fields to update")
	}
	ok, err := s.registry.Update(ctx, id, patch)
	if err != nil {
		return domain.Device{}, err
	}
	if !ok {
		return domain.Device{}, fmt.Errorf("camera %s: %w", id, domain.ErrNotFound)
	}
	return s.GetCamera(id)
}

// DeleteCamera removes a camera
func (s *CameraService) DeleteCamera(ctx context.Context, id string) error {
	ok, err := s.registry.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("camera %s: %w", id, domain.ErrNotFound)
	}
	s.logger.Info("camera removed", zap.String("id", id))
	return nil
}

// Discover runs one discovery pass and returns its result
func (s *CameraService) Discover(ctx context.Context) (domain.DiscoveryResult, error) {
	if s.discoverer == nil {
		return domain.DiscoveryResult{}, fmt.Errorf("discovery is not configured")
	}
	return s.discoverer.RunDiscovery(ctx)
}

// IssueToken returns a short-lived access token for a registered camera
func (s *CameraService) IssueToken(cameraID string) (bridge.AccessToken, error) {
	if s.tokens == nil {
		return bridge.AccessToken{}, fmt.Errorf("token issuer is not configured")
	}
	return s.tokens.Issue(cameraID)
}

// StartStream registers the camera's stream with the media engine and
// returns the stream name, which is the camera id
func (s *CameraService) StartStream(ctx context.Context, cameraID string) (string, error) {
	if cameraID == "" {
		return "", domain.NewValidationError("cameraId", "required")
	}
	d, ok := s.registry.Get(cameraID)
	if !ok {
		return "", fmt.Errorf("camera %s: %w", cameraID, domain.ErrNotFound)
	}
	if d.IsSentinel() {
		return "", domain.NewValidationError("cameraId", "camera needs setup before streaming")
	}
	if s.engine == nil {
		return "", fmt.Errorf("%w: no media engine configured", domain.ErrUpstreamUnavailable)
	}
	if err := s.engine.RegisterStream(ctx, d.ID, d.StreamURI); err != nil {
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		return "", err
	}
	s.logger.Info("stream started", zap.String("camera", d.ID))
	return d.ID, nil
}

// Status counts cameras by status and probes the engine
func (s *CameraService) Status(ctx context.Context) Status {
	var st Status
	for _, d := range s.registry.List() {
		st.Total++
		switch d.Status {
		case domain.DeviceStatusOnline:
			st.Online++
		case domain.DeviceStatusOffline:
			st.Offline++
		default:
			st.Unknown++
		}
		if d.IsSentinel() {
			st.Sentinels++
		}
	}
	if s.engine != nil {
		st.EngineReady = s.engine.Healthy(ctx)
	}
	if s.discoverer != nil {
		st.DiscoveryInProgress = s.discoverer.InProgress()
	}
	return st
}
