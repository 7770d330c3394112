// Package domain defines the core types of the camera bridge.
//
// # Core Types
//
// Device is one streamable camera channel owned by the registry. A device
// whose Channel is SentinelChannel (0) stands for a DVR that answered a
// subnet sweep but still needs interactive setup; it is never streamed.
//
// Candidate is what scanners propose. Every scanner normalizes its raw
// findings into a Candidate tagged with the producing Method before merge
// logic sees it, so deduplication never depends on the discovery protocol.
//
// DiscoveryResult is the immutable snapshot returned by one discovery run.
//
// # Errors
//
// The error taxonomy (ErrNotFound, ErrValidation, ErrUpstreamUnavailable,
// ErrNetworkProbe and *AuthError) is shared by every layer. Kind maps any
// wrapped error onto the tag reported to directive and HTTP callers.
package domain
