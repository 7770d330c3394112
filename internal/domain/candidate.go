package domain

import "time"

// Method tags which discovery strategy produced a candidate or a result
type Method string

const (
	MethodSADP   Method = "sadp"
	MethodONVIF  Method = "onvif"
	MethodMDNS   Method = "mdns"
	MethodProbe  Method = "probe"
	MethodSweep  Method = "sweep"
	MethodManual Method = "manual"
)

// Candidate is a device proposed by a scanner. Scanners and the
// orchestrator only ever hand candidates to the registry; the registry
// decides whether one becomes a Device.
type Candidate struct {
	Source       Method       `json:"source"`
	Name         string       `json:"name"`
	StreamURI    string       `json:"stream_uri"`
	Manufacturer string       `json:"manufacturer"`
	Model        string       `json:"model"`
	Address      string       `json:"address"`
	Port         int          `json:"port"`
	Channel      int          `json:"channel"`
	Status       DeviceStatus `json:"status"`
	Capabilities []string     `json:"capabilities,omitempty"`
}

// Key returns the deduplication key the candidate would occupy
func (c *Candidate) Key() DeviceKey {
	return DeviceKey{Address: c.Address, Channel: c.Channel}
}

// ToDevice materializes the candidate with a fresh id and timestamp
func (c *Candidate) ToDevice(now time.Time) Device {
	d := Device{
		ID:           NewDeviceID(),
		Name:         c.Name,
		StreamURI:    c.StreamURI,
		Manufacturer: c.Manufacturer,
		Model:        c.Model,
		Address:      c.Address,
		Port:         c.Port,
		Channel:      c.Channel,
		Status:       c.Status,
		LastSeen:     now,
	}
	if len(c.Capabilities) > 0 {
		d.Capabilities = append([]string(nil), c.Capabilities...)
	}
	d.ApplyDefaults()
	return d
}

// DiscoveryResult is the snapshot returned by one discovery run
type DiscoveryResult struct {
	Devices   []Device  `json:"cameras"`
	Timestamp time.Time `json:"timestamp"`
	Method    Method    `json:"method"`
	// Added counts candidates that became new registry entries in this run
	Added int `json:"added"`
}
