package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"camerabridge/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse accepts either a bare device array or the {"cameras": [...]}
// envelope the admin API returns
func (c *JSONCodec) Parse(r io.Reader) ([]domain.Device, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}

	var devices []domain.Device
	if err := json.Unmarshal(raw, &devices); err == nil {
		return devices, nil
	}

	var envelope struct {
		Cameras []domain.Device `json:"cameras"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return envelope.Cameras, nil
}

// Export writes devices as an indented JSON array
func (c *JSONCodec) Export(devices []domain.Device, w io.Writer) error {
	if devices == nil {
		devices = []domain.Device{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(devices); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
