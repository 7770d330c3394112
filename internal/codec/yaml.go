package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"camerabridge/internal/domain"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlInventory is the on-disk layout
type yamlInventory struct {
	Cameras []domain.Device `yaml:"cameras"`
}

// Parse imports a cameras: list
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var inv yamlInventory
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&inv); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return inv.Cameras, nil
}

// Export writes devices under a cameras: key
func (c *YAMLCodec) Export(devices []domain.Device, w io.Writer) error {
	inv := yamlInventory{Cameras: devices}
	if inv.Cameras == nil {
		inv.Cameras = []domain.Device{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
