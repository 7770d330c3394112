package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DeviceStatus represents the last known reachability of a device
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

// Valid reports whether s is one of the known statuses
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusUnknown:
		return true
	}
	return false
}

// SentinelChannel marks a parent device that was found on the network but
// still needs interactive setup before any real channel can be streamed.
const SentinelChannel = 0

// DefaultMetadata is used for manufacturer and model when nothing better is known
const DefaultMetadata = "Unknown"

// Device is a single streamable camera channel held by the registry
type Device struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	StreamURI    string       `json:"stream_uri" yaml:"stream_uri"`
	Manufacturer string       `json:"manufacturer" yaml:"manufacturer"`
	Model        string       `json:"model" yaml:"model"`
	Address      string       `json:"address" yaml:"address"`
	Port         int          `json:"port" yaml:"port"`
	Channel      int          `json:"channel" yaml:"channel"`
	Status       DeviceStatus `json:"status" yaml:"status"`
	LastSeen     time.Time    `json:"last_seen" yaml:"last_seen"`
	Capabilities []string     `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// NewDeviceID generates an opaque identifier for a new registry entry
func NewDeviceID() string {
	return uuid.NewString()
}

// IsSentinel reports whether the device is an unconfigured parent placeholder
func (d *Device) IsSentinel() bool {
	return d.Channel == SentinelChannel
}

// Key returns the deduplication key of the device
func (d *Device) Key() DeviceKey {
	return DeviceKey{Address: d.Address, Channel: d.Channel}
}

// HostPort returns the address joined with the port
func (d *Device) HostPort() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// String returns a short human-readable description
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s ch%d)", d.Name, d.Address, d.Channel)
}

// Clone returns a deep copy so callers never share the registry's slices
func (d Device) Clone() Device {
	if d.Capabilities != nil {
		caps := make([]string, len(d.Capabilities))
		copy(caps, d.Capabilities)
		d.Capabilities = caps
	}
	return d
}

// ApplyDefaults fills in the synthesized values for absent fields
func (d *Device) ApplyDefaults() {
	if d.Manufacturer == "" {
		d.Manufacturer = DefaultMetadata
	}
	if d.Model == "" {
		d.Model = DefaultMetadata
	}
	if d.Name == "" {
		if d.Address != "" {
			d.Name = fmt.Sprintf("Camera %s", d.Address)
		} else {
			d.Name = "Camera"
		}
	}
	if !d.Status.Valid() {
		d.Status = DeviceStatusUnknown
	}
}

// DeviceKey identifies a device by network location; at most one registry
// entry may exist per key.
type DeviceKey struct {
	Address string
	Channel int
}

// String renders the key as address/channel
func (k DeviceKey) String() string {
	return fmt.Sprintf("%s/%d", k.Address, k.Channel)
}

// DevicePatch carries a partial update. Nil fields are left untouched.
type DevicePatch struct {
	Name         *string       `json:"name,omitempty"`
	StreamURI    *string       `json:"stream_uri,omitempty"`
	Manufacturer *string       `json:"manufacturer,omitempty"`
	Model        *string       `json:"model,omitempty"`
	Address      *string       `json:"address,omitempty"`
	Port         *int          `json:"port,omitempty"`
	Channel      *int          `json:"channel,omitempty"`
	Status       *DeviceStatus `json:"status,omitempty"`
	Capabilities []string      `json:"capabilities,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p DevicePatch) Empty() bool {
	return p.Name == nil && p.StreamURI == nil && p.Manufacturer == nil &&
		p.Model == nil && p.Address == nil && p.Port == nil &&
		p.Channel == nil && p.Status == nil && p.Capabilities == nil
}

// Validate rejects values that would break registry invariants
func (p DevicePatch) Validate() error {
	if p.Channel != nil && *p.Channel < 0 {
		return NewValidationError("channel", "must be non-negative")
	}
	if p.Port != nil && (*p.Port < 0 || *p.Port > 65535) {
		return NewValidationError("port", "out of range")
	}
	if p.Status != nil && !p.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", *p.Status))
	}
	if p.Address != nil && *p.Address == "" {
		return NewValidationError("address", "must not be empty")
	}
	return nil
}

// Apply copies the set fields onto d. The id is never touched.
func (p DevicePatch) Apply(d *Device) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.StreamURI != nil {
		d.StreamURI = *p.StreamURI
	}
	if p.Manufacturer != nil {
		d.Manufacturer = *p.Manufacturer
	}
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.Address != nil {
		d.Address = *p.Address
	}
	if p.Port != nil {
		d.Port = *p.Port
	}
	if p.Channel != nil {
		d.Channel = *p.Channel
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Capabilities != nil {
		d.Capabilities = append([]string(nil), p.Capabilities...)
	}
}
