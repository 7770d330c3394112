package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"camerabridge/internal/discovery"
	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
	"camerabridge/internal/registry"
)

var discoverDryRun bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery pass and print the registry",
	Long: `Run every enabled scanner once, merge the results into the registry and
print the discovery result as JSON. With --dry-run the store is not
written; the registry starts from the stored snapshot and is discarded.`,
	Example: `  # Scan and persist
  camerabridge discover

  # Scan without touching the store
  camerabridge discover --dry-run --log-level debug`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "Do not persist newly found cameras")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	ctx := cmd.Context()
	reg, store, err := openRegistry(ctx, cfg, registry.WithLogger(logging.Named("registry")))
	if err != nil {
		return err
	}
	defer store.Close()

	var merger discovery.Merger = reg
	if discoverDryRun {
		merger = &dryRunMerger{reg: reg}
	}

	preflight(ctx, cfg)
	orch := discovery.FromConfig(cfg, merger, logging.GetLogger(), nil)
	result, err := orch.RunDiscovery(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// dryRunMerger reports what a merge would add without writing the store
type dryRunMerger struct {
	reg     *registry.Registry
	pending []domain.Device
	seen    map[domain.DeviceKey]bool
}

func (m *dryRunMerger) MergeCandidates(_ context.Context, candidates []domain.Candidate) ([]domain.Device, error) {
	if m.seen == nil {
		m.seen = make(map[domain.DeviceKey]bool)
	}
	now := time.Now()
	var added []domain.Device
	for _, c := range candidates {
		if c.Address == "" || c.Channel < 0 || m.seen[c.Key()] {
			continue
		}
		if _, exists := m.reg.FindByKey(c.Key()); exists {
			continue
		}
		m.seen[c.Key()] = true
		added = append(added, c.ToDevice(now))
	}
	m.pending = append(m.pending, added...)
	return added, nil
}

func (m *dryRunMerger) List() []domain.Device {
	return append(m.reg.List(), m.pending...)
}
