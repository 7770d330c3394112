package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"camerabridge/internal/adapter"
	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// StatusStore is the registry surface the health monitor needs
type StatusStore interface {
	List() []domain.Device
	Update(ctx context.Context, id string, patch domain.DevicePatch) (bool, error)
}

// Prober checks devices and returns one result per device
type Prober interface {
	Verify(ctx context.Context, devices []domain.Device) []adapter.ProbeResult
}

// HealthSummary reports one verification pass
type HealthSummary struct {
	Checked int `json:"checked"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Changed int `json:"changed"`
}

// HealthMonitor periodically re-checks registered devices and writes
// status transitions back to the registry
type HealthMonitor struct {
	store  StatusStore
	prober Prober
	logger *zap.Logger

	runMu sync.Mutex

	schedMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHealthMonitor creates a monitor
func NewHealthMonitor(store StatusStore, prober Prober, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		store:  store,
		prober: prober,
		logger: logging.OrNop(logger),
	}
}

// Check runs one pass. Devices that were removed or changed while the pass
// ran are skipped; only status moves are persisted.
func (m *HealthMonitor) Check(ctx context.Context) (HealthSummary, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	devices := m.store.List()
	results := m.prober.Verify(ctx, devices)

	var sum HealthSummary
	for i, r := range results {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		if r.Status == domain.DeviceStatusOnline {
			sum.Online++
		} else {
			sum.Offline++
		}
		if r.Status == devices[i].Status {
			continue
		}
		status := r.Status
		found, err := m.store.Update(ctx, r.DeviceID, domain.DevicePatch{Status: &status})
		if err != nil {
			return sum, err
		}
		if !found {
			continue
		}
		sum.Changed++
		m.logger.Info("camera status changed",
			zap.String("id", r.DeviceID),
			zap.String("from", string(devices[i].Status)),
			zap.String("to", string(status)),
			zap.String("reason", r.Error))
	}

	m.logger.Debug("health check completed",
		zap.Int("checked", sum.Checked),
		zap.Int("online", sum.Online),
		zap.Int("changed", sum.Changed))
	return sum, nil
}

// Start runs Check every interval until Stop or ctx cancellation. The first
// pass runs after one interval so it does not race the startup discovery.
func (m *HealthMonitor) Start(ctx context.Context, interval time.Duration) error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("health check failed", zap.Error(err))
				}
			}
		}
	}()

	m.logger.Info("health checks scheduled", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the schedule and waits for an in-flight pass
func (m *HealthMonitor) Stop() {
	m.schedMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.schedMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}
