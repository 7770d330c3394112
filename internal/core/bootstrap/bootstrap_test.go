package bootstrap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/config"
)

func TestNewEvidence(t *testing.T) {
	e := NewEvidence(CategoryEnvironment, "test_prop", "test_value", 0.95, "test_source", "test method")

	assert.Equal(t, CategoryEnvironment, e.Category)
	assert.Equal(t, "test_prop", e.Property)
	assert.Equal(t, "test_value", e.Value)
	assert.Equal(t, 0.95, e.Confidence)
	assert.Len(t, e.ID, 16)
}

func TestEvidenceSet_BestValue(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryNetwork, "private_subnet", "10.0.0.0/24", 0.80, "netlink", "m1"))
	es.Add(NewEvidence(CategoryNetwork, "private_subnet", "192.168.1.0/24", 0.90, "inference", "m2"))

	val, conf, found := es.BestValue(CategoryNetwork, "private_subnet")
	require.True(t, found)
	assert.Equal(t, "192.168.1.0/24", val)
	assert.Equal(t, 0.90, conf)

	_, _, found = es.BestValue(CategoryNetwork, "missing")
	assert.False(t, found)

	es.Add(NewEvidence(CategoryCapability, "has_nmap", true, 0.9, "probe", "m"))
	b, ok := es.Bool(CategoryCapability, "has_nmap")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = es.Bool(CategoryNetwork, "private_subnet")
	assert.False(t, ok, "not a bool")
}

func TestEvidenceSet_AggregateConfidence(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryEnvironment, "single", "v", 0.80, "s", "m"))
	assert.Equal(t, 0.80, es.AggregateConfidence(CategoryEnvironment, "single"))

	es.Add(NewEvidence(CategoryEnvironment, "multi", "v", 0.80, "s1", "m"))
	es.Add(NewEvidence(CategoryEnvironment, "multi", "v", 0.70, "s2", "m"))
	assert.InDelta(t, 0.87, es.AggregateConfidence(CategoryEnvironment, "multi"), 0.001)

	for i := 0; i < 5; i++ {
		es.Add(NewEvidence(CategoryEnvironment, "capped", "v", 0.98, "s", "m"))
	}
	assert.Equal(t, 0.99, es.AggregateConfidence(CategoryEnvironment, "capped"))
	assert.Zero(t, es.AggregateConfidence(CategoryEnvironment, "none"))
}

func fakeProbe(files map[string]string, env map[string]string) fsProbe {
	return fsProbe{
		stat: func(p string) bool {
			_, ok := files[p]
			return ok
		},
		read:    func(p string) string { return files[p] },
		getenv:  func(k string) string { return env[k] },
		cgroups: "/proc/1/cgroup",
	}
}

func TestDetectEnvironment(t *testing.T) {
	es := NewEvidenceSet()
	es.AddAll(detectEnvironment(fakeProbe(map[string]string{
		"/.dockerenv":    "",
		"/proc/1/cgroup": "0::/docker/abc123",
	}, nil)))
	inContainer, ok := es.Bool(CategoryEnvironment, "containerized")
	require.True(t, ok)
	assert.True(t, inContainer)
	rt, _ := es.String(CategoryEnvironment, "container_runtime")
	assert.Equal(t, string(RuntimeDocker), rt)

	es = NewEvidenceSet()
	es.AddAll(detectEnvironment(fakeProbe(nil, map[string]string{"KUBERNETES_SERVICE_HOST": "10.96.0.1"})))
	rt, _ = es.String(CategoryEnvironment, "container_runtime")
	assert.Equal(t, string(RuntimeKubernetes), rt)

	es = NewEvidenceSet()
	es.AddAll(detectEnvironment(fakeProbe(nil, nil)))
	inContainer, _ = es.Bool(CategoryEnvironment, "containerized")
	assert.False(t, inContainer)
	rt, _ = es.String(CategoryEnvironment, "container_runtime")
	assert.Equal(t, string(RuntimeNone), rt)
}

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	ip, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	n.IP = ip
	return n
}

func TestSubnetEvidence(t *testing.T) {
	ev := subnetEvidence([]ifaceAddr{
		{Name: "eth0", Net: mustCIDR(t, "192.168.1.23/24")},
		{Name: "eth1", Net: mustCIDR(t, "10.20.30.40/16")},
		{Name: "eth2", Net: mustCIDR(t, "172.20.0.9/25")},
		{Name: "wan0", Net: mustCIDR(t, "203.0.113.7/24")},
	})

	var subnets []string
	var count any
	for _, e := range ev {
		switch e.Property {
		case "private_subnet":
			subnets = append(subnets, e.Value.(string))
		case "private_interface_count":
			count = e.Value
		}
	}
	assert.Equal(t, []string{"192.168.1.0/24", "10.20.30.0/24", "172.20.0.0/25"}, subnets)
	assert.Equal(t, 3, count)
}

func TestIsVirtual(t *testing.T) {
	assert.True(t, isVirtual("docker0"))
	assert.True(t, isVirtual("veth12ab"))
	assert.False(t, isVirtual("eth0"))
	assert.False(t, isVirtual("enp3s0"))
}

func TestSynthesize(t *testing.T) {
	base := config.DefaultConfig().Discovery

	t.Run("auto subnet picks best evidence", func(t *testing.T) {
		d := base
		d.Sweep.Subnet = config.SubnetAuto
		es := NewEvidenceSet()
		es.Add(NewEvidence(CategoryNetwork, "private_subnet", "10.0.5.0/24", 0.80, "netlink", "m"))
		es.Add(NewEvidence(CategoryNetwork, "private_subnet", "192.168.7.0/24", 0.90, "inference", "m"))

		rec := Synthesize(es, d)
		assert.Equal(t, "192.168.7.0/24", rec.SweepSubnet)
		require.Len(t, rec.Reasons, 2)
		assert.Contains(t, rec.Reasons[1], "10.0.5.0/24")
		assert.Empty(t, rec.Warnings)
	})

	t.Run("auto subnet without evidence falls back", func(t *testing.T) {
		d := base
		d.Sweep.Subnet = "AUTO"
		rec := Synthesize(NewEvidenceSet(), d)
		assert.Equal(t, config.DefaultSubnet, rec.SweepSubnet)
		assert.Len(t, rec.Warnings, 1)
	})

	t.Run("explicit subnet kept", func(t *testing.T) {
		d := base
		d.Sweep.Subnet = "10.1.1.0/24"
		es := NewEvidenceSet()
		es.Add(NewEvidence(CategoryNetwork, "private_subnet", "192.168.7.0/24", 0.90, "inference", "m"))
		assert.Equal(t, "10.1.1.0/24", Synthesize(es, d).SweepSubnet)
	})

	t.Run("missing nmap falls back to tcp", func(t *testing.T) {
		d := base
		d.Sweep.Engine = "nmap"
		es := NewEvidenceSet()
		es.Add(NewEvidence(CategoryCapability, "has_nmap", false, 0.95, "probe", "m"))
		rec := Synthesize(es, d)
		assert.Equal(t, "tcp", rec.SweepEngine)
		assert.Len(t, rec.Warnings, 1)
	})

	t.Run("multicast and storage warnings", func(t *testing.T) {
		es := NewEvidenceSet()
		es.Add(NewEvidence(CategoryCapability, "can_multicast", false, 0.9, "probe", "m"))
		es.Add(NewEvidence(CategoryEnvironment, "containerized", true, 0.9, "inference", "m"))
		es.Add(NewEvidence(CategoryEnvironment, "container_runtime", "docker", 0.9, "filesystem", "m"))
		es.Add(NewEvidence(CategoryCapability, "data_dir_writable", false, 0.9, "probe", "m"))
		rec := Synthesize(es, base)
		require.Len(t, rec.Warnings, 3)
		assert.Contains(t, rec.Warnings[1], "docker")

		d := base
		d.SADP.Enabled, d.ONVIF.Enabled, d.MDNS.Enabled = false, false, false
		assert.Len(t, Synthesize(es, d).Warnings, 1, "multicast warnings only when multicast scanners run")
	})
}

func TestNmapCapabilityConfiguredPath(t *testing.T) {
	ev := probeNmap(context.Background(), filepath.Join(t.TempDir(), "missing-nmap"))
	require.Len(t, ev, 1)
	assert.Equal(t, false, ev[0].Value)

	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	fake := filepath.Join(t.TempDir(), "nmap")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\necho 'Nmap version 7.94'\n"), 0755))
	ev = probeNmap(context.Background(), fake)
	require.Len(t, ev, 1)
	assert.Equal(t, true, ev[0].Value)
	assert.Equal(t, "Nmap version 7.94", ev[0].Raw["nmap_version"])
}

func TestProbeDataDir(t *testing.T) {
	dir := t.TempDir()
	ev := probeDataDir(filepath.Join(dir, "nested", "cameras.json"))
	require.Len(t, ev, 1)
	assert.Equal(t, true, ev[0].Value)

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file removed")

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	ev = probeDataDir(filepath.Join(blocker, "cameras.json"))
	assert.Equal(t, false, ev[0].Value)
}

func TestRunAndApply(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "cameras.json")
	cfg.Discovery.Sweep.Subnet = config.SubnetAuto

	res := Run(context.Background(), cfg, nil)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Evidence)
	assert.NotEqual(t, config.SubnetAuto, res.Recommendation.SweepSubnet)

	res.Apply(cfg)
	assert.Equal(t, res.Recommendation.SweepSubnet, cfg.Discovery.Sweep.Subnet)
	_, _, err := net.ParseCIDR(cfg.Discovery.Sweep.Subnet)
	assert.NoError(t, err)
}
