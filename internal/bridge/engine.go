package bridge

import (
	"context"
)

// Engine is the delegated media engine. Implementations report transport
// and upstream failures wrapped in domain.ErrUpstreamUnavailable.
type Engine interface {
	// RegisterStream makes sourceURI available under id. Registering an
	// existing id again must succeed.
	RegisterStream(ctx context.Context, id, sourceURI string) error

	// Negotiate exchanges an SDP offer for the stream id for an SDP answer
	Negotiate(ctx context.Context, id, offerSDP string) (string, error)

	// RemoveStream drops the stream id
	RemoveStream(ctx context.Context, id string) error
}
