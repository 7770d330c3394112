package adapter

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// SADP wire constants
const (
	SADPPort      = 37020
	SADPMulticast = "239.255.255.250"
	sadpTTL       = 128
	maxDatagram   = 64 * 1024
)

// sadpProbe is the inquiry every SADP-capable device answers
var sadpProbe = []byte(`<?xml version="1.0" encoding="utf-8"?>
<Probe>
<Uuid>00000000-0000-0000-0000-000000000000</Uuid>
<Types>inquiry</Types>
</Probe>`)

// sadpReply is the part of a ProbeMatch the scanner reads
type sadpReply struct {
	XMLName      xml.Name `xml:"ProbeMatch"`
	DeviceType   string   `xml:"DeviceType"`
	DeviceName   string   `xml:"DeviceName"`
	Manufacturer string   `xml:"Manufacturer"`
	Model        string   `xml:"Model"`
	Description  string   `xml:"DeviceDescription"`
}

// SADPOption configures an SADPScanner
type SADPOption func(*SADPScanner)

// WithSADPWindow sets how long replies are collected
func WithSADPWindow(d time.Duration) SADPOption {
	return func(s *SADPScanner) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSADPPort overrides the UDP port used to listen and send
func WithSADPPort(port int) SADPOption {
	return func(s *SADPScanner) {
		s.port = port
	}
}

// WithSADPLogger sets the scanner logger
func WithSADPLogger(l *zap.Logger) SADPOption {
	return func(s *SADPScanner) {
		s.logger = logging.OrNop(l)
	}
}

// WithSADPPublisher sets the progress publisher
func WithSADPPublisher(pub EventPublisher) SADPOption {
	return func(s *SADPScanner) {
		s.publisher = pub
	}
}

// SADPScanner discovers Hikvision-family devices with the SADP inquiry
type SADPScanner struct {
	window    time.Duration
	port      int
	logger    *zap.Logger
	publisher EventPublisher
}

// NewSADPScanner creates a scanner with a 5s window on the standard port
func NewSADPScanner(opts ...SADPOption) *SADPScanner {
	s := &SADPScanner{
		window: 5 * time.Second,
		port:   SADPPort,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the method tag
func (s *SADPScanner) Name() domain.Method {
	return domain.MethodSADP
}

// Scan joins the SADP group, sends the inquiry to the group and every local
// broadcast address, then collects replies until the window closes.
func (s *SADPScanner) Scan(ctx context.Context) ([]domain.Candidate, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(ctx, "udp4", ":"+strconv.Itoa(s.port))
	if err != nil {
		return nil, fmt.Errorf("%w: sadp listen: %v", domain.ErrNetworkProbe, err)
	}
	defer conn.Close()

	group := net.ParseIP(SADPMulticast)
	pc := ipv4.NewPacketConn(conn)
	joined := s.joinGroup(pc, group)
	if err := pc.SetMulticastTTL(sadpTTL); err != nil {
		s.logger.Debug("sadp: set multicast ttl failed", zap.Error(err))
	}

	targets := []net.IP{group}
	targets = append(targets, localBroadcasts()...)
	sent := s.sendProbes(conn, targets)

	s.logger.Info("sadp probe sent",
		zap.Int("targets", sent),
		zap.Int("joined_interfaces", joined),
		zap.Duration("window", s.window))
	publish(s.publisher, EventScanStarted, map[string]any{"method": domain.MethodSADP, "targets": sent})

	if sent == 0 {
		return nil, fmt.Errorf("%w: sadp probe could not be sent", domain.ErrNetworkProbe)
	}

	found := s.collect(ctx, conn, time.Now().Add(s.window))
	publish(s.publisher, EventScanCompleted, map[string]any{"method": domain.MethodSADP, "found": len(found)})
	return found, nil
}

func (s *SADPScanner) joinGroup(pc *ipv4.PacketConn, group net.IP) int {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0
	}
	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
			s.logger.Debug("sadp: join group failed", zap.String("iface", iface.Name), zap.Error(err))
			continue
		}
		joined++
	}
	return joined
}

func (s *SADPScanner) sendProbes(conn net.PacketConn, targets []net.IP) int {
	sent := 0
	for _, ip := range targets {
		dst := &net.UDPAddr{IP: ip, Port: s.port}
		if _, err := conn.WriteTo(sadpProbe, dst); err != nil {
			s.logger.Debug("sadp: send failed", zap.Stringer("target", dst), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// collect reads replies until deadline or ctx is done. Each sender
// contributes at most one candidate.
func (s *SADPScanner) collect(ctx context.Context, conn net.PacketConn, deadline time.Time) []domain.Candidate {
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
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("sadp: read failed", zap.Error(err))
			}
			return found
		}

		udp, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		address := udp.IP.String()
		if seen[address] {
			continue
		}

		finding, ok := parseSADPReply(buf[:n], address)
		if !ok {
			continue
		}
		c, ok := NormalizeSADP(finding)
		if !ok {
			s.logger.Debug("sadp: reply not on allow-list",
				zap.String("address", address),
				zap.String("manufacturer", finding.Manufacturer),
				zap.String("device_type", finding.DeviceType))
			continue
		}
		seen[address] = true
		found = append(found, c)
		s.logger.Info("found sadp device", zap.String("name", c.Name), zap.String("address", address))
	}
}

// parseSADPReply decodes a ProbeMatch. Our own inquiry echoed back by the
// multicast loop is not a ProbeMatch and is rejected here.
func parseSADPReply(data []byte, address string) (SADPFinding, bool) {
	var reply sadpReply
	if err := xml.Unmarshal(data, &reply); err != nil {
		return SADPFinding{}, false
	}
	return SADPFinding{
		Address:      address,
		DeviceType:   reply.DeviceType,
		DeviceName:   reply.DeviceName,
		Manufacturer: reply.Manufacturer,
		Model:        orDefault(reply.Model, reply.Description),
	}, true
}
