package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// mDNS service browsed for RTSP sources
const (
	RTSPServiceType = "_rtsp._tcp"
	ServiceDomain   = "local."
)

// MDNSScanner browses the local link for advertised RTSP services
type MDNSScanner struct {
	window    time.Duration
	logger    *zap.Logger
	publisher EventPublisher
}

// NewMDNSScanner creates a scanner that browses for window
func NewMDNSScanner(window time.Duration, logger *zap.Logger, pub EventPublisher) *MDNSScanner {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &MDNSScanner{
		window:    window,
		logger:    logging.OrNop(logger),
		publisher: pub,
	}
}

// Name returns the method tag
func (s *MDNSScanner) Name() domain.Method {
	return domain.MethodMDNS
}

// Scan browses until the window elapses
func (s *MDNSScanner) Scan(ctx context.Context) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.window)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: mdns resolver: %v", domain.ErrNetworkProbe, err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		found []domain.Candidate
		seen  = make(map[domain.DeviceKey]bool)
		done  = make(chan struct{})
	)

	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				c, ok := NormalizeMDNS(findingFromEntry(entry))
				if !ok {
					continue
				}
				mu.Lock()
				if !seen[c.Key()] {
					seen[c.Key()] = true
					found = append(found, c)
					s.logger.Info("found mdns rtsp service", zap.String("name", c.Name), zap.String("address", c.Address))
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	publish(s.publisher, EventScanStarted, map[string]any{"method": domain.MethodMDNS})
	if err := resolver.Browse(ctx, RTSPServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("%w: mdns browse: %v", domain.ErrNetworkProbe, err)
	}

	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	publish(s.publisher, EventScanCompleted, map[string]any{"method": domain.MethodMDNS, "found": len(found)})
	return found, nil
}

// findingFromEntry flattens a zeroconf entry, IPv4 addresses first
func findingFromEntry(entry *zeroconf.ServiceEntry) MDNSFinding {
	if entry == nil {
		return MDNSFinding{}
	}
	f := MDNSFinding{
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		Text:     entry.Text,
	}
	for _, ip := range entry.AddrIPv4 {
		f.Addrs = append(f.Addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		f.Addrs = append(f.Addrs, ip.String())
	}
	return f
}
