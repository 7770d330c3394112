package codec

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"camerabridge/internal/domain"
)

// Go2rtcCodec reads and writes the streams: section of a go2rtc config.
// Stream names are device ids, which is the name the bridge registers at
// runtime, so an exported file preloads the same streams.
type Go2rtcCodec struct{}

// NewGo2rtcCodec creates a new go2rtc codec
func NewGo2rtcCodec() *Go2rtcCodec {
	return &Go2rtcCodec{}
}

// Format returns the codec format identifier
func (c *Go2rtcCodec) Format() string {
	return "go2rtc"
}

var channelPath = regexp.MustCompile(`(?i)/Streaming/Channels/(\d+)0\d$`)

// Parse imports every stream with an rtsp source. A stream value may be a
// single source or a list; the first rtsp:// entry is used.
func (c *Go2rtcCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var doc struct {
		Streams yaml.Node `yaml:"streams"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse go2rtc config: %w", err)
	}
	if doc.Streams.Kind == 0 {
		return nil, nil
	}
	if doc.Streams.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("go2rtc streams: expected a mapping at line %d", doc.Streams.Line)
	}

	var devices []domain.Device
	content := doc.Streams.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		src, ok := firstRTSP(content[i+1])
		if !ok {
			continue
		}
		d, err := deviceFromSource(name, src)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", name, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Export writes one stream per device, in registry order. Sentinel
// entries have no playable stream and are skipped.
func (c *Go2rtcCodec) Export(devices []domain.Device, w io.Writer) error {
	streams := &yaml.Node{Kind: yaml.MappingNode}
	for _, d := range devices {
		if d.IsSentinel() || d.StreamURI == "" {
			continue
		}
		streams.Content = append(streams.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: d.ID},
			&yaml.Node{Kind: yaml.ScalarNode, Value: d.StreamURI, LineComment: d.Name},
		)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "streams"},
		streams,
	}}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(root); err != nil {
		return fmt.Errorf("failed to encode go2rtc config: %w", err)
	}
	return nil
}

func firstRTSP(n *yaml.Node) (string, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(strings.ToLower(n.Value), "rtsp://") {
			return n.Value, true
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if src, ok := firstRTSP(item); ok {
				return src, true
			}
		}
	}
	return "", false
}

func deviceFromSource(name, src string) (domain.Device, error) {
	u, err := url.Parse(src)
	if err != nil {
		return domain.Device{}, fmt.Errorf("invalid source: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return domain.Device{}, fmt.Errorf("source has no host")
	}
	port := 554
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return domain.Device{}, fmt.Errorf("invalid port %q", p)
		}
	}

	channel := 1
	if m := channelPath.FindStringSubmatch(u.Path); m != nil {
		channel, _ = strconv.Atoi(m[1])
	} else if v := u.Query().Get("channel"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			channel = n
		}
	}

	d := domain.Device{
		ID:        name,
		Name:      name,
		StreamURI: src,
		Address:   host,
		Port:      port,
		Channel:   channel,
	}
	d.ApplyDefaults()
	return d, nil
}
