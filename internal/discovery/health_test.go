package discovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/adapter"
	"camerabridge/internal/domain"
)

// fixedProber reports every device with the status in its table
type fixedProber struct {
	status map[string]domain.DeviceStatus
	calls  atomic.Int32
}

func (p *fixedProber) Verify(_ context.Context, devices []domain.Device) []adapter.ProbeResult {
	p.calls.Add(1)
	out := make([]adapter.ProbeResult, len(devices))
	for i, d := range devices {
		st, ok := p.status[d.Address]
		if !ok {
			st = domain.DeviceStatusOffline
		}
		out[i] = adapter.ProbeResult{DeviceID: d.ID, Status: st}
	}
	return out
}

func TestHealthMonitorCheck(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	_, err := reg.MergeCandidates(ctx, []domain.Candidate{
		cand(domain.MethodSADP, "10.0.0.1", 1),
		cand(domain.MethodSADP, "10.0.0.2", 1),
	})
	require.NoError(t, err)

	prober := &fixedProber{status: map[string]domain.DeviceStatus{"10.0.0.1": domain.DeviceStatusOnline}}
	mon := NewHealthMonitor(reg, prober, nil)

	sum, err := mon.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.Equal(t, 1, sum.Online)
	assert.Equal(t, 1, sum.Offline)

	for _, d := range reg.List() {
		if d.Address == "10.0.0.1" {
			assert.Equal(t, domain.DeviceStatusOnline, d.Status)
		} else {
			assert.Equal(t, domain.DeviceStatusOffline, d.Status)
		}
	}

	sum, err = mon.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Changed, "steady state writes nothing")
}

func TestHealthMonitorSchedule(t *testing.T) {
	reg := newRegistry(t)
	prober := &fixedProber{}
	mon := NewHealthMonitor(reg, prober, nil)

	require.NoError(t, mon.Start(context.Background(), 10*time.Millisecond))
	assert.ErrorIs(t, mon.Start(context.Background(), time.Second), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return prober.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	mon.Stop()
	n := prober.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, prober.calls.Load(), "no passes after Stop")

	mon.Stop()
}
