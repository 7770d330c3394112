package bootstrap

import (
	"fmt"
	"strings"

	"camerabridge/internal/config"
)

// Recommendation is what the evidence says discovery should use
type Recommendation struct {
	SweepSubnet string   `json:"sweep_subnet"`
	SweepEngine string   `json:"sweep_engine"`
	Reasons     []string `json:"reasons,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Synthesize turns evidence into discovery settings for d. Explicit
// settings are kept unless they cannot work on this host.
func Synthesize(es *EvidenceSet, d config.DiscoveryConfig) Recommendation {
	rec := Recommendation{
		SweepSubnet: d.Sweep.Subnet,
		SweepEngine: d.Sweep.Engine,
	}

	if strings.EqualFold(d.Sweep.Subnet, config.SubnetAuto) {
		if subnet, ok := es.String(CategoryNetwork, "private_subnet"); ok {
			rec.SweepSubnet = subnet
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("sweep subnet %s detected (confidence %.0f%%)",
				subnet, es.AggregateConfidence(CategoryNetwork, "private_subnet")*100))
			if others := otherSubnets(es, subnet); len(others) > 0 {
				rec.Reasons = append(rec.Reasons, "other private subnets: "+strings.Join(others, ", "))
			}
		} else {
			rec.SweepSubnet = config.DefaultSubnet
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("no private IPv4 subnet found, sweeping %s", config.DefaultSubnet))
		}
	}

	if d.Sweep.Enabled && d.Sweep.Engine == "nmap" {
		if has, ok := es.Bool(CategoryCapability, "has_nmap"); ok && !has {
			rec.SweepEngine = "tcp"
			rec.Warnings = append(rec.Warnings, "nmap is not installed, using the built-in TCP sweep")
		}
	}

	multicastWanted := d.SADP.Enabled || d.ONVIF.Enabled || d.MDNS.Enabled
	if multicastWanted {
		if can, ok := es.Bool(CategoryCapability, "can_multicast"); ok && !can {
			rec.Warnings = append(rec.Warnings, "cannot join multicast groups; SADP, ONVIF and mDNS will find nothing")
		}
		if inContainer, _ := es.Bool(CategoryEnvironment, "containerized"); inContainer {
			runtime, _ := es.String(CategoryEnvironment, "container_runtime")
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("running under %s; multicast discovery needs host networking", runtime))
		}
	}

	if writable, ok := es.Bool(CategoryCapability, "data_dir_writable"); ok && !writable {
		rec.Warnings = append(rec.Warnings, "storage directory is not writable; the registry cannot persist")
	}

	return rec
}

func otherSubnets(es *EvidenceSet, chosen string) []string {
	seen := map[string]bool{chosen: true}
	var out []string
	for _, e := range es.ByProperty(CategoryNetwork, "private_subnet") {
		s, ok := e.Value.(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
