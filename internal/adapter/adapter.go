package adapter

import (
	"context"

	"camerabridge/internal/domain"
)

// Scanner is one discovery strategy. Scan blocks until the scanner's own
// window elapses or ctx is done and returns whatever it found. A non-nil
// error means the scanner could not run at all (socket, resolver or binary
// unavailable); per-host and per-response failures never surface.
type Scanner interface {
	// Name returns the method tag the scanner stamps on its candidates
	Name() domain.Method

	// Scan probes the network and returns candidates in discovery order
	Scan(ctx context.Context) ([]domain.Candidate, error)
}

// EventPublisher receives scanner progress for live feedback
type EventPublisher interface {
	PublishDiscoveryEvent(eventType string, payload any)
}

// Progress event types emitted by scanners
const (
	EventScanStarted   = "scan_started"
	EventScanProgress  = "scan_progress"
	EventScanCompleted = "scan_completed"
)

func publish(pub EventPublisher, eventType string, payload map[string]any) {
	if pub != nil {
		pub.PublishDiscoveryEvent(eventType, payload)
	}
}
