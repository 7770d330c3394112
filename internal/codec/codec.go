// Package codec reads and writes camera inventories in external formats.
package codec

import (
	"fmt"
	"io"
	"sort"

	"camerabridge/internal/domain"
)

// Importer parses an inventory into devices
type Importer interface {
	Parse(r io.Reader) ([]domain.Device, error)
	Format() string
}

// Exporter writes devices as an inventory
type Exporter interface {
	Export(devices []domain.Device, w io.Writer) error
	Format() string
}

// Codec is both directions of one format
type Codec interface {
	Importer
	Exporter
}

var codecs = map[string]Codec{
	"json":   NewJSONCodec(),
	"yaml":   NewYAMLCodec(),
	"go2rtc": NewGo2rtcCodec(),
}

// ForFormat returns the codec registered for format
func ForFormat(format string) (Codec, error) {
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unknown inventory format %q (supported: %v)", format, Formats())
	}
	return c, nil
}

// Formats lists the supported format names
func Formats() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
