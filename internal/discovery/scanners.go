package discovery

import (
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/adapter"
	"camerabridge/internal/config"
	"camerabridge/internal/logging"
)

// SweepEngineNmap selects the nmap-backed sweep
const SweepEngineNmap = "nmap"

// scannerGrace is added to the longest listening window when deriving the
// per-scanner hard timeout
const scannerGrace = 5 * time.Second

// FromConfig builds an orchestrator with the scanners enabled in cfg, in
// merge order: SADP, ONVIF, mDNS, then the DVR channel probe when a DVR
// address is configured. The subnet sweep is the fallback.
func FromConfig(cfg *config.Config, registry Merger, logger *zap.Logger, pub adapter.EventPublisher) *Orchestrator {
	log := logging.OrNop(logger).Named("discovery")
	d := cfg.Discovery

	tmpl := adapter.StreamTemplate{
		Username: cfg.DVR.Username,
		Password: cfg.DVR.Password,
		Port:     cfg.DVR.Port,
	}

	var primary []adapter.Scanner
	longest := time.Duration(0)

	if d.SADP.Enabled {
		primary = append(primary, adapter.NewSADPScanner(
			adapter.WithSADPWindow(d.SADP.Timeout.Duration()),
			adapter.WithSADPLogger(log.Named("sadp")),
			adapter.WithSADPPublisher(pub),
		))
		longest = max(longest, d.SADP.Timeout.Duration())
	}
	if d.ONVIF.Enabled {
		primary = append(primary, adapter.NewONVIFScanner(tmpl,
			adapter.WithONVIFWindow(d.ONVIF.Timeout.Duration()),
			adapter.WithONVIFLogger(log.Named("onvif")),
			adapter.WithONVIFPublisher(pub),
		))
		longest = max(longest, d.ONVIF.Timeout.Duration())
	}
	if d.MDNS.Enabled {
		primary = append(primary, adapter.NewMDNSScanner(d.MDNS.Timeout.Duration(), log.Named("mdns"), pub))
		longest = max(longest, d.MDNS.Timeout.Duration())
	}
	if cfg.DVR.IP != "" {
		primary = append(primary, adapter.NewChannelProber(cfg.DVR.IP, tmpl, cfg.DVR.MaxChannels, log.Named("probe")))
	} else {
		log.Info("no DVR IP configured, skipping channel probing")
	}

	opts := []Option{
		WithLogger(log),
		WithPublisher(pub),
		WithScannerTimeout(longest + scannerGrace),
	}

	if d.Sweep.Enabled {
		var sweep adapter.Scanner
		if d.Sweep.Engine == SweepEngineNmap {
			nm := d.Sweep.Nmap
			sweep = adapter.NewNmapSweeper(d.Sweep.Subnet,
				adapter.WithBinaryPath(nm.Path),
				adapter.WithSkipHostDiscovery(!nm.PingHosts),
				adapter.WithNmapTimeout(nm.Timeout.Duration()),
				adapter.WithHostTimeout(nm.HostTimeout.Duration()),
				adapter.WithNmapLogger(log.Named("nmap")),
				adapter.WithNmapPublisher(pub),
			)
			// nmap runs are slower than the TCP pool
			opts = append(opts, WithScannerTimeout(max(longest, nm.Timeout.Duration())+scannerGrace))
		} else {
			sweep = adapter.NewSweepScanner(adapter.SweepConfig{
				Subnet:        d.Sweep.Subnet,
				Ports:         adapter.SweepPorts,
				Timeout:       d.Sweep.DialTimeout.Duration(),
				MaxConcurrent: d.Sweep.Concurrency,
			}, log.Named("sweep"), pub)
			opts = append(opts, WithScannerTimeout(max(longest, sweepBudget(d.Sweep))+scannerGrace))
		}
		opts = append(opts, WithFallback(sweep))
	}

	return New(registry, primary, opts...)
}

// sweepBudget estimates the wall time of a full /24 TCP sweep
func sweepBudget(s config.SweepConfig) time.Duration {
	conc := s.Concurrency
	if conc <= 0 {
		conc = 1
	}
	pairs := 254 * len(adapter.SweepPorts)
	waves := (pairs + conc - 1) / conc
	return time.Duration(waves) * s.DialTimeout.Duration()
}
