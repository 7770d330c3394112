package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// DialFunc opens a TCP connection; tests substitute it
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SweepConfig holds configuration for the subnet sweep
type SweepConfig struct {
	// Subnet is CIDR, a bare address, or a three-octet /24 prefix
	Subnet string
	// Ports probed on every host
	Ports []int
	// Timeout for individual connection attempts
	Timeout time.Duration
	// MaxConcurrent limits in-flight connection attempts
	MaxConcurrent int
}

// DefaultSweepConfig returns the classic 192.168.1.0/24 sweep
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Subnet:        "192.168.1.0/24",
		Ports:         SweepPorts,
		Timeout:       300 * time.Millisecond,
		MaxConcurrent: 64,
	}
}

// SweepScanner classifies every host of a subnet by its open ports
type SweepScanner struct {
	config    SweepConfig
	dial      DialFunc
	logger    *zap.Logger
	publisher EventPublisher
}

// NewSweepScanner creates a sweep scanner. Zero fields fall back to
// DefaultSweepConfig.
func NewSweepScanner(config SweepConfig, logger *zap.Logger, pub EventPublisher) *SweepScanner {
	def := DefaultSweepConfig()
	if config.Subnet == "" {
		config.Subnet = def.Subnet
	}
	if len(config.Ports) == 0 {
		config.Ports = def.Ports
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	return &SweepScanner{
		config:    config,
		dial:      (&net.Dialer{}).DialContext,
		logger:    logging.OrNop(logger),
		publisher: pub,
	}
}

// SetDialer replaces the connection function
func (s *SweepScanner) SetDialer(dial DialFunc) {
	s.dial = dial
}

// Name returns the method tag
func (s *SweepScanner) Name() domain.Method {
	return domain.MethodSweep
}

// Scan probes every host/port pair through a bounded pool and returns one
// candidate per classified host, in address order
func (s *SweepScanner) Scan(ctx context.Context) ([]domain.Candidate, error) {
	ips, err := expandCIDR(s.config.Subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subnet %q: %v", domain.ErrNetworkProbe, s.config.Subnet, err)
	}

	s.logger.Info("starting subnet sweep",
		zap.String("subnet", s.config.Subnet),
		zap.Int("hosts", len(ips)),
		zap.Ints("ports", s.config.Ports),
		zap.Int("max_concurrent", s.config.MaxConcurrent))
	publish(s.publisher, EventScanStarted, map[string]any{
		"method": domain.MethodSweep,
		"subnet": s.config.Subnet,
		"total":  len(ips),
	})

	open := make([]map[int]bool, len(ips))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for i, ip := range ips {
		for _, port := range s.config.Ports {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if !s.probePort(gctx, ip, port) {
					return nil
				}
				mu.Lock()
				if open[i] == nil {
					open[i] = make(map[int]bool, len(s.config.Ports))
				}
				open[i][port] = true
				mu.Unlock()
				return nil
			})
		}
	}
	g.Wait()

	var found []domain.Candidate
	for i, ip := range ips {
		if open[i] == nil {
			continue
		}
		c, ok := ClassifySweep(ip, open[i])
		if !ok {
			continue
		}
		found = append(found, c)
		s.logger.Info("sweep classified host",
			zap.String("address", ip),
			zap.Int("channel", c.Channel),
			zap.String("model", c.Model))
		publish(s.publisher, EventScanProgress, map[string]any{
			"method":  domain.MethodSweep,
			"address": ip,
			"model":   c.Model,
		})
	}

	s.logger.Info("subnet sweep complete", zap.Int("found", len(found)))
	publish(s.publisher, EventScanCompleted, map[string]any{"method": domain.MethodSweep, "found": len(found)})
	return found, nil
}

// probePort reports whether a TCP connect succeeds within the timeout. A
// panicking dialer counts as closed so one host never aborts the sweep.
func (s *SweepScanner) probePort(ctx context.Context, ip string, port int) (open bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sweep probe panicked", zap.String("address", ip), zap.Int("port", port), zap.Any("panic", r))
			open = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
