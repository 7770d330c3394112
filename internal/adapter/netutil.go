package adapter

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// maxSweepHosts bounds how large a range a single sweep may cover
const maxSweepHosts = 1024

// NormalizeSubnet accepts CIDR notation, a bare IPv4 address, or a
// three-octet prefix such as "192.168.1" (read as a /24).
func NormalizeSubnet(subnet string) string {
	subnet = strings.TrimSpace(subnet)
	if strings.Contains(subnet, "/") {
		return subnet
	}
	if strings.Count(subnet, ".") == 2 {
		return subnet + ".0/24"
	}
	return subnet
}

// ValidateSubnet reports whether subnet names an IPv4 range or address
func ValidateSubnet(subnet string) error {
	subnet = NormalizeSubnet(subnet)
	if ip := net.ParseIP(subnet); ip != nil {
		if ip.To4() == nil {
			return fmt.Errorf("subnet %q is not IPv4", subnet)
		}
		return nil
	}
	ip, _, err := net.ParseCIDR(subnet)
	if err != nil {
		return fmt.Errorf("subnet %q: %w", subnet, err)
	}
	if ip.To4() == nil {
		return fmt.Errorf("subnet %q is not IPv4", subnet)
	}
	return nil
}

// expandCIDR lists the host addresses of a CIDR range. Network and
// broadcast addresses are skipped for /24 and larger.
func expandCIDR(cidr string) ([]string, error) {
	cidr = NormalizeSubnet(cidr)
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		if ip := net.ParseIP(cidr); ip != nil && ip.To4() != nil {
			return []string{ip.String()}, nil
		}
		return nil, err
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("only IPv4 supported")
	}

	networkInt := binary.BigEndian.Uint32(ip)
	maskInt := binary.BigEndian.Uint32(net.IP(ipNet.Mask).To4())

	firstIP := networkInt & maskInt
	lastIP := firstIP | ^maskInt

	ones, bits := ipNet.Mask.Size()
	if ones <= 24 && bits == 32 {
		firstIP++
		lastIP--
	}

	if lastIP-firstIP >= maxSweepHosts {
		return nil, fmt.Errorf("CIDR range too large (max %d IPs)", maxSweepHosts)
	}

	ips := make([]string, 0, lastIP-firstIP+1)
	for n := uint64(firstIP); n <= uint64(lastIP); n++ {
		b := make(net.IP, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		ips = append(ips, b.String())
	}
	return ips, nil
}

// broadcastAddr returns the directed broadcast address of an IPv4 network
func broadcastAddr(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if ip == nil || len(mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

// localBroadcasts computes the broadcast address of every non-loopback
// IPv4 interface network
func localBroadcasts() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.IP
	seen := make(map[string]bool)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if b := broadcastAddr(ipNet); b != nil && !seen[b.String()] {
				seen[b.String()] = true
				out = append(out, b)
			}
		}
	}
	return out
}
