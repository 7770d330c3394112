package bootstrap

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

// multicastGroup is the SSDP/WS-Discovery group the SADP and ONVIF probes use
var multicastGroup = net.IPv4(239, 255, 255, 250)

// DetectCapabilities probes what discovery can actually do on this host
// nmapPath may be empty to search PATH.
func DetectCapabilities(ctx context.Context, storagePath, nmapPath string) []Evidence {
	var evidence []Evidence
	evidence = append(evidence, probeNmap(ctx, nmapPath)...)
	evidence = append(evidence, probeMulticast()...)
	if storagePath != "" {
		evidence = append(evidence, probeDataDir(storagePath)...)
	}
	return evidence
}

func probeNmap(ctx context.Context, binary string) []Evidence {
	if binary == "" {
		binary = "nmap"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "has_nmap", false,
			0.95, "probe", binary+" not found",
		)}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "has_nmap", false,
			0.85, "probe", "nmap exists but --version failed: "+err.Error(),
		).WithRaw(map[string]any{"nmap_path": path})}
	}

	version := strings.Split(string(output), "\n")[0]
	return []Evidence{NewEvidence(
		CategoryCapability, "has_nmap", true,
		0.99, "probe", "nmap --version succeeded",
	).WithRaw(map[string]any{
		"nmap_path":    path,
		"nmap_version": version,
	})}
}

// probeMulticast joins the discovery group on the first multicast-capable
// interface
func probeMulticast() []Evidence {
	pc, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "can_multicast", false,
			0.95, "probe", "udp4 listen failed: "+err.Error(),
		)}
	}
	defer pc.Close()
	p := ipv4.NewPacketConn(pc)

	ifaces, err := net.Interfaces()
	if err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "can_multicast", false,
			0.80, "probe", "list interfaces failed: "+err.Error(),
		)}
	}

	var lastErr error
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if err := p.JoinGroup(&iface, &net.UDPAddr{IP: multicastGroup}); err != nil {
			lastErr = err
			continue
		}
		_ = p.LeaveGroup(&iface, &net.UDPAddr{IP: multicastGroup})
		return []Evidence{NewEvidence(
			CategoryCapability, "can_multicast", true,
			0.95, "probe", "joined 239.255.255.250 on "+iface.Name,
		).WithRaw(map[string]any{"interface": iface.Name})}
	}

	method := "no multicast-capable interface"
	if lastErr != nil {
		method = "join 239.255.255.250 failed: " + lastErr.Error()
	}
	return []Evidence{NewEvidence(
		CategoryCapability, "can_multicast", false,
		0.90, "probe", method,
	)}
}

// probeDataDir checks that the snapshot directory exists or can be created
// and accepts writes
func probeDataDir(storagePath string) []Evidence {
	dir := filepath.Dir(storagePath)
	raw := map[string]any{"dir": dir}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "data_dir_writable", false,
			0.95, "probe", "mkdir failed: "+err.Error(),
		).WithRaw(raw)}
	}
	f, err := os.CreateTemp(dir, ".camerabridge-probe-*")
	if err != nil {
		return []Evidence{NewEvidence(
			CategoryCapability, "data_dir_writable", false,
			0.95, "probe", "create failed: "+err.Error(),
		).WithRaw(raw)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return []Evidence{NewEvidence(
		CategoryCapability, "data_dir_writable", true,
		0.99, "probe", "created and removed a temp file",
	).WithRaw(raw)}
}
