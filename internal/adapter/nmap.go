package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"camerabridge/internal/domain"
)

// NmapSweeper classifies subnet hosts from a single nmap connect scan. It
// applies the same port policy as SweepScanner and is selected with
// sweep engine "nmap".
type NmapSweeper struct {
	subnet            string
	portRange         string
	timeout           time.Duration
	hostTimeout       time.Duration
	skipHostDiscovery bool
	binaryPath        string
	logger            *zap.Logger
	publisher         EventPublisher
}

// NewNmapSweeper creates an nmap-backed sweep of subnet
func NewNmapSweeper(subnet string, opts ...NmapOption) *NmapSweeper {
	n := &NmapSweeper{
		subnet:            NormalizeSubnet(subnet),
		portRange:         joinPorts(SweepPorts),
		timeout:           5 * time.Minute,
		hostTimeout:       10 * time.Second,
		skipHostDiscovery: true,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the method tag
func (n *NmapSweeper) Name() domain.Method {
	return domain.MethodSweep
}

// Scan runs nmap and classifies every host that reported open ports
func (n *NmapSweeper) Scan(ctx context.Context) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(n.subnet),
		nmap.WithPorts(n.portRange),
		nmap.WithConnectScan(),
		nmap.WithHostTimeout(n.hostTimeout),
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}
	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		if errors.Is(err, nmap.ErrNmapNotInstalled) {
			return nil, fmt.Errorf("%w: nmap binary not found in PATH", domain.ErrNetworkProbe)
		}
		return nil, fmt.Errorf("%w: create nmap scanner: %v", domain.ErrNetworkProbe, err)
	}

	n.logger.Info("nmap sweep starting", zap.String("subnet", n.subnet), zap.String("ports", n.portRange))
	publish(n.publisher, EventScanStarted, map[string]any{"method": domain.MethodSweep, "engine": "nmap", "subnet": n.subnet})

	result, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Debug("nmap warnings", zap.Strings("warnings", *warnings))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: nmap run: %v", domain.ErrNetworkProbe, err)
	}

	found := n.processResults(result)
	n.logger.Info("nmap sweep complete", zap.Int("found", len(found)))
	publish(n.publisher, EventScanCompleted, map[string]any{"method": domain.MethodSweep, "engine": "nmap", "found": len(found)})
	return found, nil
}

// processResults classifies up hosts, ordered by address
func (n *NmapSweeper) processResults(result *nmap.Run) []domain.Candidate {
	if result == nil {
		return nil
	}

	type hostPorts struct {
		ip   net.IP
		open map[int]bool
	}
	var hosts []hostPorts

	for _, host := range result.Hosts {
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}
		ip := hostIPv4(host)
		if ip == nil {
			continue
		}
		open := make(map[int]bool)
		for _, p := range getOpenPorts(host.Ports) {
			open[p] = true
		}
		if len(open) > 0 {
			hosts = append(hosts, hostPorts{ip: ip, open: open})
		}
	}

	sort.Slice(hosts, func(i, j int) bool {
		return bytesLess(hosts[i].ip.To4(), hosts[j].ip.To4())
	})

	var found []domain.Candidate
	for _, h := range hosts {
		if c, ok := ClassifySweep(h.ip.String(), h.open); ok {
			found = append(found, c)
		}
	}
	return found
}

// hostIPv4 returns the first IPv4 address of a host
func hostIPv4(host nmap.Host) net.IP {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			return net.ParseIP(addr.Addr)
		}
	}
	return nil
}

// getOpenPorts extracts list of open port numbers
func getOpenPorts(ports []nmap.Port) []int {
	var openPorts []int
	for _, port := range ports {
		if port.State.State == "open" {
			openPorts = append(openPorts, int(port.ID))
		}
	}
	return openPorts
}

func bytesLess(a, b net.IP) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
