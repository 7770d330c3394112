package adapter

import (
	"context"
	"fmt"

	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// MaxProbeChannels is the hard upper bound on probed channels
const MaxProbeChannels = 16

// ChannelProber enumerates the channels of one configured DVR. A channel is
// emitted when its synthesized URI parses as an RTSP URL; the stream itself
// is never opened, so an emitted channel may not exist on the device.
type ChannelProber struct {
	address     string
	template    StreamTemplate
	maxChannels int
	logger      *zap.Logger
}

// NewChannelProber creates a prober for the DVR at address. maxChannels is
// clamped to 1..MaxProbeChannels.
func NewChannelProber(address string, tmpl StreamTemplate, maxChannels int, logger *zap.Logger) *ChannelProber {
	if maxChannels > MaxProbeChannels {
		maxChannels = MaxProbeChannels
	}
	if maxChannels < 1 {
		maxChannels = 1
	}
	return &ChannelProber{
		address:     address,
		template:    tmpl,
		maxChannels: maxChannels,
		logger:      logging.OrNop(logger),
	}
}

// Name returns the method tag
func (p *ChannelProber) Name() domain.Method {
	return domain.MethodProbe
}

// MaxChannels returns the effective channel count
func (p *ChannelProber) MaxChannels() int {
	return p.maxChannels
}

// Scan returns one candidate per syntactically valid channel URI
func (p *ChannelProber) Scan(ctx context.Context) ([]domain.Candidate, error) {
	if p.address == "" {
		return nil, nil
	}
	p.logger.Info("probing dvr channels", zap.String("address", p.address), zap.Int("max_channels", p.maxChannels))

	found := make([]domain.Candidate, 0, p.maxChannels)
	for ch := 1; ch <= p.maxChannels; ch++ {
		if err := ctx.Err(); err != nil {
			return found, nil
		}
		uri := p.template.URI(p.address, ch)
		if !validRTSPURI(uri) {
			p.logger.Debug("channel uri rejected", zap.Int("channel", ch))
			continue
		}
		port := p.template.Port
		if port == 0 {
			port = PortRTSP
		}
		found = append(found, domain.Candidate{
			Source:       domain.MethodProbe,
			Name:         fmt.Sprintf("%s Camera %d", vendorDefault, ch),
			StreamURI:    uri,
			Manufacturer: vendorDefault,
			Model:        modelDVRChannel,
			Address:      p.address,
			Port:         port,
			Channel:      ch,
			Status:       domain.DeviceStatusOnline,
		})
	}
	return found, nil
}

// validRTSPURI reports whether uri parses as rtsp:// or rtsps://
func validRTSPURI(uri string) bool {
	u, err := base.ParseURL(uri)
	return err == nil && u.Host != ""
}
