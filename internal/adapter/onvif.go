package adapter

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// WS-Discovery endpoint
const (
	WSDiscoveryAddr = "239.255.255.250:3702"
	onvifTTL        = 4
)

const wsProbeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<e:Envelope xmlns:e="http://www.w3.org/2003/05/soap-envelope" xmlns:w="http://schemas.xmlsoap.org/ws/2004/08/addressing" xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery" xmlns:dn="http://www.onvif.org/ver10/network/wsdl">
<e:Header>
<w:MessageID>uuid:%s</w:MessageID>
<w:To e:mustUnderstand="true">urn:schemas-xmlsoap-org:ws:2005:04:discovery</w:To>
<w:Action e:mustUnderstand="true">http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</w:Action>
</e:Header>
<e:Body>
<d:Probe><d:Types>dn:NetworkVideoTransmitter</d:Types></d:Probe>
</e:Body>
</e:Envelope>`

// probeMatchEnvelope matches the SOAP envelope by local element names
type probeMatchEnvelope struct {
	Matches []struct {
		Endpoint string `xml:"EndpointReference>Address"`
		Types    string `xml:"Types"`
		Scopes   string `xml:"Scopes"`
		XAddrs   string `xml:"XAddrs"`
	} `xml:"Body>ProbeMatches>ProbeMatch"`
}

// ONVIFOption configures an ONVIFScanner
type ONVIFOption func(*ONVIFScanner)

// WithONVIFWindow sets how long ProbeMatches are collected
func WithONVIFWindow(d time.Duration) ONVIFOption {
	return func(s *ONVIFScanner) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithONVIFTarget overrides the discovery destination (host:port)
func WithONVIFTarget(addr string) ONVIFOption {
	return func(s *ONVIFScanner) {
		s.target = addr
	}
}

// WithONVIFLogger sets the scanner logger
func WithONVIFLogger(l *zap.Logger) ONVIFOption {
	return func(s *ONVIFScanner) {
		s.logger = logging.OrNop(l)
	}
}

// WithONVIFPublisher sets the progress publisher
func WithONVIFPublisher(pub EventPublisher) ONVIFOption {
	return func(s *ONVIFScanner) {
		s.publisher = pub
	}
}

// ONVIFScanner finds ONVIF video transmitters with WS-Discovery
type ONVIFScanner struct {
	template  StreamTemplate
	window    time.Duration
	target    string
	logger    *zap.Logger
	publisher EventPublisher
}

// NewONVIFScanner creates a scanner. tmpl supplies the credentials and RTSP
// port used to synthesize each candidate's stream URI.
func NewONVIFScanner(tmpl StreamTemplate, opts ...ONVIFOption) *ONVIFScanner {
	s := &ONVIFScanner{
		template: tmpl,
		window:   10 * time.Second,
		target:   WSDiscoveryAddr,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the method tag
func (s *ONVIFScanner) Name() domain.Method {
	return domain.MethodONVIF
}

// Scan multicasts one Probe and collects ProbeMatches for the window
func (s *ONVIFScanner) Scan(ctx context.Context) ([]domain.Candidate, error) {
	dst, err := net.ResolveUDPAddr("udp4", s.target)
	if err != nil {
		return nil, fmt.Errorf("%w: onvif target: %v", domain.ErrNetworkProbe, err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: onvif listen: %v", domain.ErrNetworkProbe, err)
	}
	defer conn.Close()

	if dst.IP.IsMulticast() {
		if err := ipv4.NewPacketConn(conn).SetMulticastTTL(onvifTTL); err != nil {
			s.logger.Debug("onvif: set multicast ttl failed", zap.Error(err))
		}
	}

	probe := fmt.Sprintf(wsProbeTemplate, uuid.NewString())
	if _, err := conn.WriteTo([]byte(probe), dst); err != nil {
		return nil, fmt.Errorf("%w: onvif probe: %v", domain.ErrNetworkProbe, err)
	}
	s.logger.Debug("onvif probe sent", zap.Stringer("target", dst), zap.Duration("window", s.window))
	publish(s.publisher, EventScanStarted, map[string]any{"method": domain.MethodONVIF})

	found := s.collect(ctx, conn, time.Now().Add(s.window))
	s.logger.Info("onvif discovery finished", zap.Int("found", len(found)))
	publish(s.publisher, EventScanCompleted, map[string]any{"method": domain.MethodONVIF, "found": len(found)})
	return found, nil
}

func (s *ONVIFScanner) collect(ctx context.Context, conn net.PacketConn, deadline time.Time) []domain.Candidate {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var found []domain.Candidate
	seen := make(map[string]bool)
	buf := make([]byte, maxDatagram)

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("onvif: read failed", zap.Error(err))
			}
			return found
		}

		for _, finding := range parseProbeMatches(buf[:n]) {
			key := finding.Endpoint
			if key == "" && len(finding.XAddrs) > 0 {
				key = finding.XAddrs[0]
			}
			if seen[key] {
				continue
			}
			c, ok := NormalizeONVIF(finding, s.template)
			if !ok {
				s.logger.Debug("onvif: match without address", zap.String("endpoint", finding.Endpoint))
				continue
			}
			seen[key] = true
			found = append(found, c)
		}
	}
}

// parseProbeMatches decodes a ProbeMatches envelope; anything else yields
// no findings
func parseProbeMatches(data []byte) []ONVIFFinding {
	var env probeMatchEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil
	}
	out := make([]ONVIFFinding, 0, len(env.Matches))
	for _, m := range env.Matches {
		out = append(out, ONVIFFinding{
			Endpoint: strings.TrimSpace(m.Endpoint),
			XAddrs:   strings.Fields(m.XAddrs),
			Scopes:   strings.Fields(m.Scopes),
		})
	}
	return out
}
