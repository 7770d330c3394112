package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func sampleDevices() []domain.Device {
	seen := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	return []domain.Device{
		{
			ID: "b-second", Name: "Driveway", StreamURI: "rtsp://admin:pw@10.0.0.5:554/Streaming/Channels/201",
			Manufacturer: "Annke", Model: "DVR Channel", Address: "10.0.0.5", Port: 554, Channel: 2,
			Status: domain.DeviceStatusOnline, LastSeen: seen,
		},
		{
			ID: "a-first", Name: "Camera 10.0.0.9", StreamURI: "rtsp://10.0.0.9:554/",
			Manufacturer: "Unknown", Model: "IP Camera", Address: "10.0.0.9", Port: 554, Channel: 1,
			Status: domain.DeviceStatusUnknown, Capabilities: []string{"video", "audio"},
		},
	}
}

func TestEmptyDatabaseLoadsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	devices, err := repo.LoadDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSaveLoadPreservesOrderAndFields(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	want := sampleDevices()
	require.NoError(t, repo.SaveDevices(ctx, want))

	got, err := repo.LoadDevices(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-second", got[0].ID, "saved order, not id order")
	assert.Equal(t, want[0].Name, got[0].Name)
	assert.True(t, want[0].LastSeen.Equal(got[0].LastSeen))
	assert.Equal(t, want[1].Capabilities, got[1].Capabilities)
	assert.True(t, got[1].LastSeen.IsZero())
}

func TestSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveDevices(ctx, sampleDevices()))
	require.NoError(t, repo.SaveDevices(ctx, sampleDevices()[1:]))

	n, err := repo.CountDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDuplicateIDRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveDevices(ctx, sampleDevices()))

	dup := sampleDevices()
	dup[1].ID = dup[0].ID
	assert.Error(t, repo.SaveDevices(ctx, dup))

	got, err := repo.LoadDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed save leaves the previous snapshot")
}

func TestReopenFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cameras.db")

	repo, err := New(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveDevices(ctx, sampleDevices()))
	require.NoError(t, repo.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
