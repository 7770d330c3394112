package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/config"
	"camerabridge/internal/logging"
)

// Result contains all bootstrap findings
type Result struct {
	Timestamp      time.Time      `json:"timestamp"`
	Duration       time.Duration  `json:"duration"`
	Evidence       []Evidence     `json:"evidence"`
	Recommendation Recommendation `json:"recommendation"`
}

// Run gathers evidence about the host and synthesizes discovery settings
// for cfg
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Result {
	log := logging.OrNop(logger)
	start := time.Now()

	evidence := NewEvidenceSet()
	evidence.AddAll(DetectEnvironment())
	evidence.AddAll(DetectNetwork())
	evidence.AddAll(DetectCapabilities(ctx, cfg.Storage.Path, cfg.Discovery.Sweep.Nmap.Path))

	rec := Synthesize(evidence, cfg.Discovery)
	result := &Result{
		Timestamp:      time.Now(),
		Duration:       time.Since(start),
		Evidence:       evidence.All(),
		Recommendation: rec,
	}

	log.Debug("bootstrap complete",
		zap.Duration("duration", result.Duration),
		zap.Int("evidence", evidence.Count()))
	for _, r := range rec.Reasons {
		log.Info("bootstrap: " + r)
	}
	for _, w := range rec.Warnings {
		log.Warn("bootstrap: " + w)
	}
	return result
}

// Apply writes the recommended sweep settings into cfg
func (r *Result) Apply(cfg *config.Config) {
	cfg.Discovery.Sweep.Subnet = r.Recommendation.SweepSubnet
	cfg.Discovery.Sweep.Engine = r.Recommendation.SweepEngine
}
