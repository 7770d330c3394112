// Package adapter implements the network discovery strategies.
//
// Every strategy implements Scanner and produces domain.Candidate values,
// never registry entries. Raw findings are normalized in normalize.go
// before they leave the package, so callers see one shape regardless of
// which protocol found the device.
//
// # Scanners
//
// SADPScanner sends the vendor search-active-devices probe to the SADP
// multicast group and every local broadcast address, then collects
// ProbeMatch replies for a fixed window.
//
// ONVIFScanner sends a WS-Discovery Probe for NetworkVideoTransmitter
// endpoints and reads ProbeMatches until its window elapses.
//
// MDNSScanner browses _rtsp._tcp on the local link.
//
// SweepScanner dials three fixed ports on every host of a subnet through a
// bounded worker pool and classifies each host by which ports answered.
// NmapSweeper does the same classification from a single nmap run.
//
// ChannelProber synthesizes one candidate per channel of a known DVR. It
// checks that the stream URI parses as RTSP; it does not open the stream.
package adapter
