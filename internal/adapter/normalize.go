package adapter

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"camerabridge/internal/domain"
)

// Ports classified by the subnet sweep
const (
	PortHTTP = 80
	PortRTSP = 554
	PortSDK  = 8000
)

// SweepPorts is the fixed probe set, in classification order
var SweepPorts = []int{PortHTTP, PortRTSP, PortSDK}

const (
	vendorDefault    = "Annke"
	modelDVRChannel  = "DVR Channel"
	modelNeedsSetup  = "Network DVR - Needs Setup"
	modelIPCamera    = "IP Camera"
	onvifDevicePort  = 80
	defaultUsername  = "admin"
	streamPathFormat = "/Streaming/Channels/%d01"
)

// sadpAllowList is matched case-insensitively against manufacturer and
// device type of a SADP reply
var sadpAllowList = []string{"hikvision", "annke", "nvr", "dvr"}

// StreamTemplate builds credentialed RTSP URIs in the vendor channel layout
// (channel N lives at /Streaming/Channels/N01).
type StreamTemplate struct {
	Username string
	Password string
	Port     int
}

// AnonymousTemplate is used when a scanner has no configured credentials
var AnonymousTemplate = StreamTemplate{Username: defaultUsername, Port: PortRTSP}

// URI returns the stream URI for address and channel
func (t StreamTemplate) URI(address string, channel int) string {
	port := t.Port
	if port == 0 {
		port = PortRTSP
	}
	u := url.URL{
		Scheme: "rtsp",
		Host:   net.JoinHostPort(address, strconv.Itoa(port)),
		Path:   fmt.Sprintf(streamPathFormat, channel),
	}
	if t.Username != "" {
		u.User = url.UserPassword(t.Username, t.Password)
	}
	return u.String()
}

// SADPFinding is the subset of a SADP ProbeMatch reply the scanner keeps
type SADPFinding struct {
	Address      string
	DeviceType   string
	DeviceName   string
	Manufacturer string
	Model        string
}

// NormalizeSADP converts a reply into a candidate. Replies that match
// nothing on the allow-list are rejected.
func NormalizeSADP(f SADPFinding) (domain.Candidate, bool) {
	if f.Address == "" {
		return domain.Candidate{}, false
	}
	deviceType := orDefault(f.DeviceType, domain.DefaultMetadata)
	manufacturer := orDefault(f.Manufacturer, vendorDefault)
	if !matchesAny(manufacturer, sadpAllowList) && !matchesAny(deviceType, sadpAllowList) {
		return domain.Candidate{}, false
	}
	return domain.Candidate{
		Source:       domain.MethodSADP,
		Name:         orDefault(f.DeviceName, "Device "+f.Address),
		StreamURI:    AnonymousTemplate.URI(f.Address, 1),
		Manufacturer: manufacturer,
		Model:        orDefault(f.Model, deviceType),
		Address:      f.Address,
		Port:         PortRTSP,
		Channel:      1,
		Status:       domain.DeviceStatusOnline,
	}, true
}

// ONVIFFinding is one WS-Discovery ProbeMatch
type ONVIFFinding struct {
	Endpoint string
	XAddrs   []string
	Scopes   []string
}

// NormalizeONVIF converts a ProbeMatch into a candidate. The address comes
// from the first advertised service URL, or the endpoint reference when
// that URL does not parse. Matches without any address are dropped.
func NormalizeONVIF(f ONVIFFinding, tmpl StreamTemplate) (domain.Candidate, bool) {
	address := onvifAddress(f)
	if address == "" {
		return domain.Candidate{}, false
	}
	scopes := parseONVIFScopes(f.Scopes)

	var caps []string
	if len(f.Scopes) > 0 {
		caps = append([]string(nil), f.Scopes...)
	}
	return domain.Candidate{
		Source:       domain.MethodONVIF,
		Name:         orDefault(scopes["name"], "Camera "+address),
		StreamURI:    tmpl.URI(address, 1),
		Manufacturer: orDefault(scopes["mfr"], domain.DefaultMetadata),
		Model:        orDefault(scopes["hardware"], domain.DefaultMetadata),
		Address:      address,
		Port:         onvifDevicePort,
		Channel:      1,
		Status:       domain.DeviceStatusOnline,
		Capabilities: caps,
	}, true
}

func onvifAddress(f ONVIFFinding) string {
	if len(f.XAddrs) == 0 {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(f.XAddrs[0]))
	if err != nil || u.Hostname() == "" {
		return f.Endpoint
	}
	return u.Hostname()
}

// parseONVIFScopes extracts name, hardware and mfr from scope URIs such as
// onvif://www.onvif.org/name/Front%20Door
func parseONVIFScopes(scopes []string) map[string]string {
	out := make(map[string]string)
	for _, scope := range scopes {
		const prefix = "onvif://www.onvif.org/"
		if !strings.HasPrefix(strings.ToLower(scope), prefix) {
			continue
		}
		key, value, ok := strings.Cut(scope[len(prefix):], "/")
		if !ok || value == "" {
			continue
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		key = strings.ToLower(key)
		if _, seen := out[key]; !seen {
			out[key] = value
		}
	}
	return out
}

// MDNSFinding is one resolved _rtsp._tcp service instance
type MDNSFinding struct {
	Instance string
	HostName string
	Addrs    []string
	Port     int
	Text     []string
}

// NormalizeMDNS converts a service instance into a candidate. TXT keys
// path, vendor (or manufacturer) and model are honored when present.
func NormalizeMDNS(f MDNSFinding) (domain.Candidate, bool) {
	if len(f.Addrs) == 0 || f.Addrs[0] == "" {
		return domain.Candidate{}, false
	}
	address := f.Addrs[0]
	port := f.Port
	if port == 0 {
		port = PortRTSP
	}

	txt := parseTXT(f.Text)
	path := txt["path"]
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	uri := url.URL{Scheme: "rtsp", Host: net.JoinHostPort(address, strconv.Itoa(port)), Path: path}
	if uri.Path == "" {
		uri.Path = "/"
	}

	return domain.Candidate{
		Source:       domain.MethodMDNS,
		Name:         orDefault(unescapeInstance(f.Instance), "Camera "+address),
		StreamURI:    uri.String(),
		Manufacturer: orDefault(txt["vendor"], orDefault(txt["manufacturer"], domain.DefaultMetadata)),
		Model:        orDefault(txt["model"], domain.DefaultMetadata),
		Address:      address,
		Port:         port,
		Channel:      1,
		Status:       domain.DeviceStatusOnline,
		Capabilities: []string{"rtsp"},
	}, true
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		k, v, _ := strings.Cut(rec, "=")
		if k != "" {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

// unescapeInstance drops DNS-SD backslash escapes from an instance name
func unescapeInstance(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ClassifySweep maps the open-port set of one host to a candidate.
// HTTP, RTSP and SDK all open is an unconfigured DVR (sentinel, offline);
// HTTP and RTSP without SDK is a standalone camera; anything else is not a
// candidate.
func ClassifySweep(address string, open map[int]bool) (domain.Candidate, bool) {
	httpOpen, rtspOpen, sdkOpen := open[PortHTTP], open[PortRTSP], open[PortSDK]
	switch {
	case httpOpen && rtspOpen && sdkOpen:
		return domain.Candidate{
			Source:       domain.MethodSweep,
			Name:         fmt.Sprintf("%s DVR %s (Setup Required)", vendorDefault, address),
			StreamURI:    AnonymousTemplate.URI(address, 1),
			Manufacturer: vendorDefault,
			Model:        modelNeedsSetup,
			Address:      address,
			Port:         PortRTSP,
			Channel:      domain.SentinelChannel,
			Status:       domain.DeviceStatusOffline,
		}, true
	case httpOpen && rtspOpen:
		return domain.Candidate{
			Source:       domain.MethodSweep,
			Name:         "Camera " + address,
			StreamURI:    AnonymousTemplate.URI(address, 1),
			Manufacturer: domain.DefaultMetadata,
			Model:        modelIPCamera,
			Address:      address,
			Port:         PortRTSP,
			Channel:      1,
			Status:       domain.DeviceStatusOnline,
		}, true
	default:
		return domain.Candidate{}, false
	}
}

func matchesAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
