package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/config"
	"camerabridge/internal/domain"
	"camerabridge/internal/repository/jsonfile"
	"camerabridge/internal/repository/sqlite"
	"camerabridge/internal/service"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "cameras.json")
	store, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &jsonfile.Repository{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "cameras.db")
	store, err = openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Repository{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Driver = "postgres"
	_, err = openStore(cfg)
	assert.Error(t, err)
}

func TestDryRunMerger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "cameras.json")
	ctx := context.Background()

	reg, store, err := openRegistry(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()
	_, err = reg.Add(ctx, domain.Device{Name: "Known", Address: "10.0.0.1", Channel: 1})
	require.NoError(t, err)

	m := &dryRunMerger{reg: reg}
	added, err := m.MergeCandidates(ctx, []domain.Candidate{
		{Address: "10.0.0.1", Channel: 1},
		{Address: "10.0.0.2", Channel: 1},
		{Address: "10.0.0.2", Channel: 1},
		{Address: "", Channel: 1},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "10.0.0.2", added[0].Address)

	assert.Len(t, m.List(), 2)
	assert.Equal(t, 1, reg.Len(), "registry untouched")

	loaded, err := store.LoadDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1, "store untouched")
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camerabridge.yaml")
	cfg := config.DefaultConfig()
	cfg.DVR.Password = "hunter2"
	require.NoError(t, cfg.Save(path))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	var out bytes.Buffer
	configShowCmd.SetOut(&out)
	configShowCmd.SetErr(&bytes.Buffer{})
	require.NoError(t, configShowCmd.RunE(configShowCmd, nil))

	assert.Contains(t, out.String(), "***")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestImportInventory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "cameras.json")
	ctx := context.Background()

	reg, store, err := openRegistry(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()
	svc := service.NewCameraService(reg, nil, nil, nil, nil)

	inv := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(inv, []byte(`cameras:
  - name: Porch
    address: 10.0.0.2
    channel: 1
    stream_uri: rtsp://10.0.0.2:554/Streaming/Channels/101
`), 0644))

	res, err := importInventory(ctx, svc, inv, "yaml")
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)

	res, err = importInventory(ctx, svc, inv, "yaml")
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Len(t, res.Skipped, 1, "re-import is idempotent")

	_, err = importInventory(ctx, svc, inv, "xml")
	assert.Error(t, err)
	_, err = importInventory(ctx, svc, filepath.Join(dir, "missing.yaml"), "yaml")
	assert.Error(t, err)
}
