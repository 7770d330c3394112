package bootstrap

import (
	"fmt"
	"net"
	"strings"
)

// ifaceAddr is one IPv4 address on a usable interface
type ifaceAddr struct {
	Name string
	Net  *net.IPNet
	MAC  string
}

// virtualPrefixes name interfaces that never face the camera LAN
var virtualPrefixes = []string{"veth", "docker", "br-", "cni", "flannel", "cali", "virbr", "tailscale", "wg"}

// DetectNetwork gathers evidence about the local IPv4 networks
func DetectNetwork() []Evidence {
	var evidence []Evidence
	evidence = append(evidence, subnetEvidence(listInterfaceAddrs())...)
	evidence = append(evidence, detectLocalIP()...)
	return evidence
}

func listInterfaceAddrs() []ifaceAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []ifaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtual(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				out = append(out, ifaceAddr{Name: iface.Name, Net: ipnet, MAC: iface.HardwareAddr.String()})
			}
		}
	}
	return out
}

func isVirtual(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// isPrivate reports RFC1918 membership
func isPrivate(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	return ip4[0] == 10 ||
		(ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31) ||
		(ip4[0] == 192 && ip4[1] == 168)
}

// sweepSubnet narrows a network to the /24 around ip; wider networks would
// take the TCP sweep far too long
func sweepSubnet(ipnet *net.IPNet) string {
	ip4 := ipnet.IP.To4()
	ones, _ := ipnet.Mask.Size()
	if ones >= 24 {
		return fmt.Sprintf("%s/%d", ip4.Mask(ipnet.Mask), ones)
	}
	return fmt.Sprintf("%d.%d.%d.0/24", ip4[0], ip4[1], ip4[2])
}

func subnetEvidence(addrs []ifaceAddr) []Evidence {
	var evidence []Evidence
	for _, a := range addrs {
		if !isPrivate(a.Net.IP) {
			continue
		}
		ones, _ := a.Net.Mask.Size()
		raw := map[string]any{
			"interface": a.Name,
			"ip":        a.Net.IP.String(),
			"mask_bits": ones,
			"mac":       a.MAC,
		}
		evidence = append(evidence, NewEvidence(
			CategoryNetwork, "private_subnet", sweepSubnet(a.Net),
			0.80, "netlink", "private IPv4 address on "+a.Name,
		).WithRaw(raw))
	}
	evidence = append(evidence, NewEvidence(
		CategoryNetwork, "private_interface_count", len(evidence),
		0.99, "netlink", "count of private IPv4 addresses on physical interfaces",
	))
	return evidence
}

// detectLocalIP finds the address the default route would use. A UDP dial
// only selects a route; nothing is sent.
func detectLocalIP() []Evidence {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return nil
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || localAddr.IP.To4() == nil {
		return nil
	}
	ip := localAddr.IP.To4()

	evidence := []Evidence{NewEvidence(
		CategoryNetwork, "local_ip", ip.String(),
		0.95, "netlink", "UDP dial to 8.8.8.8:53 local address",
	)}
	if isPrivate(ip) {
		// the default-route interface is the best guess for the camera LAN
		evidence = append(evidence, NewEvidence(
			CategoryNetwork, "private_subnet", fmt.Sprintf("%d.%d.%d.0/24", ip[0], ip[1], ip[2]),
			0.90, "inference", "default-route local address",
		).WithRaw(map[string]any{"local_ip": ip.String()}))
	}
	return evidence
}
