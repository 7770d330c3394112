package adapter

import (
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/logging"
)

// NmapOption is a functional option for configuring NmapSweeper
type NmapOption func(*NmapSweeper)

// WithNmapTimeout sets the timeout for the entire nmap run
func WithNmapTimeout(d time.Duration) NmapOption {
	return func(n *NmapSweeper) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithHostTimeout bounds how long nmap spends on any single host
func WithHostTimeout(d time.Duration) NmapOption {
	return func(n *NmapSweeper) {
		if d > 0 {
			n.hostTimeout = d
		}
	}
}

// WithSkipHostDiscovery sets whether to treat all hosts as online (-Pn).
// DVRs commonly drop ICMP, so this defaults to true.
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapSweeper) {
		n.skipHostDiscovery = skip
	}
}

// WithBinaryPath points at a specific nmap executable
func WithBinaryPath(path string) NmapOption {
	return func(n *NmapSweeper) {
		n.binaryPath = path
	}
}

// WithNmapLogger sets the logger
func WithNmapLogger(l *zap.Logger) NmapOption {
	return func(n *NmapSweeper) {
		n.logger = logging.OrNop(l)
	}
}

// WithNmapPublisher sets the progress publisher
func WithNmapPublisher(pub EventPublisher) NmapOption {
	return func(n *NmapSweeper) {
		n.publisher = pub
	}
}
