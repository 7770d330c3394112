// Package bridge translates voice-platform directives into calls against
// the registry and the delegated media engine, and issues the short-lived
// tokens that scope a client to one device.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"camerabridge/internal/domain"
	"camerabridge/internal/logging"
)

// DeviceSource is the read side of the registry
type DeviceSource interface {
	List() []domain.Device
	Get(id string) (domain.Device, bool)
}

// NegotiationState tracks one InitiateSessionWithOffer request
type NegotiationState int

const (
	StateIdle NegotiationState = iota
	StateStreamEnsured
	StateNegotiating
	StateActive
	StateError
)

func (s NegotiationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamEnsured:
		return "stream_ensured"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Bridge
type Option func(*Bridge)

// WithEngineTimeout bounds each engine call
func WithEngineTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.engineTimeout = d
		}
	}
}

// WithTeardownOnDisconnect removes the engine stream after
// SessionDisconnected. The acknowledgment never waits for it.
func WithTeardownOnDisconnect(enabled bool) Option {
	return func(b *Bridge) {
		b.teardown = enabled
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = logging.OrNop(l)
	}
}

// WithMessageIDs overrides the message id generator
func WithMessageIDs(fn func() string) Option {
	return func(b *Bridge) {
		b.newID = fn
	}
}

// Bridge handles directives. It never returns a Go error to its caller:
// every failure becomes an ErrorResponse.
type Bridge struct {
	devices       DeviceSource
	engine        Engine
	engineTimeout time.Duration
	teardown      bool
	logger        *zap.Logger
	newID         func() string

	wg sync.WaitGroup
}

// New creates a bridge over the registry and engine
func New(devices DeviceSource, engine Engine, opts ...Option) *Bridge {
	b := &Bridge{
		devices:       devices,
		engine:        engine,
		engineTimeout: 10 * time.Second,
		logger:        zap.NewNop(),
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle parses a raw request body and dispatches it
func (b *Bridge) Handle(ctx context.Context, body []byte) Response {
	d, err := ParseDirective(body)
	if err != nil {
		return b.errorResponse(Header{}, err)
	}
	return b.Dispatch(ctx, d)
}

// Dispatch routes a parsed directive
func (b *Bridge) Dispatch(ctx context.Context, d Directive) Response {
	h := d.Header
	b.logger.Info("received directive", zap.String("namespace", h.Namespace), zap.String("name", h.Name))

	switch {
	case h.Namespace == NamespaceDiscovery && h.Name == NameDiscover:
		return b.discover(h)
	case h.Namespace == NamespaceLegacy && h.Name == NameDiscoverAppliances:
		return b.legacyDiscover()
	case h.Namespace == NamespaceRTCSession && h.Name == NameInitiateSession:
		return b.initiateSession(ctx, d)
	case h.Namespace == NamespaceRTCSession && h.Name == NameSessionDisconnected:
		return b.sessionDisconnected(d)
	case h.Namespace == NamespaceAlexa && h.Name == NameReportState:
		return b.errorEvent(h, ErrTypeInvalidDirective, "Not implemented")
	default:
		return b.errorEvent(h, ErrTypeInvalidDirective, fmt.Sprintf("Unknown directive %s::%s", h.Namespace, h.Name))
	}
}

// Close waits for background stream teardowns
func (b *Bridge) Close() {
	b.wg.Wait()
}

// Endpoints maps the registry to endpoint descriptors
func (b *Bridge) Endpoints() []EndpointDescriptor {
	devices := b.devices.List()
	out := make([]EndpointDescriptor, 0, len(devices))
	for _, d := range devices {
		out = append(out, EndpointDescriptor{
			EndpointID:        d.ID,
			ManufacturerName:  orDefault(d.Manufacturer, "Annke"),
			FriendlyName:      d.Name,
			Description:       fmt.Sprintf("Smart Camera %d", d.Channel),
			DisplayCategories: []string{"CAMERA"},
			Capabilities:      endpointCapabilities(),
		})
	}
	return out
}

func endpointCapabilities() []Capability {
	return []Capability{
		{
			Type:          "AlexaInterface",
			Interface:     NamespaceRTCSession,
			Version:       payloadVersion,
			Configuration: map[string]any{"isFullDuplexAudioSupported": false},
		},
		{
			Type:      "AlexaInterface",
			Interface: NamespaceEndpointHealth,
			Version:   payloadVersion,
			Properties: &CapabilityProp{
				Supported:           []map[string]string{{"name": "connectivity"}},
				ProactivelyReported: true,
				Retrievable:         true,
			},
		},
		{
			Type:      "AlexaInterface",
			Interface: NamespaceAlexa,
			Version:   payloadVersion,
		},
	}
}

func (b *Bridge) discover(h Header) Response {
	messageID := h.MessageID
	if messageID == "" {
		messageID = b.newID()
	}
	endpoints := b.Endpoints()
	b.logger.Info("discovery response", zap.Int("endpoints", len(endpoints)))
	return Response{Event: &Event{
		Header: Header{
			Namespace:      NamespaceDiscovery,
			Name:           NameDiscoverResponse,
			PayloadVersion: payloadVersion,
			MessageID:      messageID,
		},
		Payload: DiscoverPayload{Endpoints: endpoints},
	}}
}

// legacyDiscover answers from the same descriptor list as discover
func (b *Bridge) legacyDiscover() Response {
	b.logger.Warn("legacy discovery request, answering in v2 shape")
	endpoints := b.Endpoints()
	models := make(map[string]string)
	for _, d := range b.devices.List() {
		models[d.ID] = d.Model
	}

	appliances := make([]Appliance, 0, len(endpoints))
	for _, e := range endpoints {
		appliances = append(appliances, Appliance{
			ApplianceID:                e.EndpointID,
			ManufacturerName:           e.ManufacturerName,
			ModelName:                  orDefault(models[e.EndpointID], "Security Camera"),
			Version:                    "1.0",
			FriendlyName:               e.FriendlyName,
			FriendlyDescription:        e.Description,
			IsReachable:                true,
			Actions:                    []string{"turnOn", "turnOff"},
			AdditionalApplianceDetails: map[string]string{"conf": "legacy"},
		})
	}
	return Response{
		Header: &Header{
			Namespace:      NamespaceLegacy,
			Name:           NameDiscoverAppliancesResult,
			PayloadVersion: legacyPayloadVersion,
			MessageID:      b.newID(),
		},
		Payload: LegacyDiscoverPayload{DiscoveredAppliances: appliances},
	}
}

func (b *Bridge) initiateSession(ctx context.Context, d Directive) Response {
	h := d.Header
	state := StateIdle
	log := b.logger.With(zap.String("correlation", h.CorrelationToken))
	fail := func(err error) Response {
		log.Warn("session negotiation failed",
			zap.Stringer("state", state),
			zap.Error(err))
		state = StateError
		return b.errorResponse(h, err)
	}

	var endpointID string
	if d.Endpoint != nil {
		endpointID = d.Endpoint.EndpointID
	}
	var p initiatePayload
	if len(d.Payload) > 0 {
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return fail(domain.NewValidationError("payload", "malformed payload"))
		}
	}
	if endpointID == "" {
		return fail(domain.NewValidationError("endpoint.endpointId", "required"))
	}
	if p.Offer == nil || p.Offer.Value == "" {
		return fail(domain.NewValidationError("payload.offer", "SDP offer required"))
	}

	device, ok := b.devices.Get(endpointID)
	if !ok {
		return fail(fmt.Errorf("camera %s: %w", endpointID, domain.ErrNotFound))
	}
	log = log.With(zap.String("endpoint", endpointID), zap.String("session", p.SessionID))

	if err := b.callEngine(ctx, func(ctx context.Context) error {
		return b.engine.RegisterStream(ctx, endpointID, device.StreamURI)
	}); err != nil {
		return fail(err)
	}
	state = StateStreamEnsured
	log.Debug("stream ensured", zap.Stringer("state", state))

	state = StateNegotiating
	var answer string
	if err := b.callEngine(ctx, func(ctx context.Context) error {
		var err error
		answer, err = b.engine.Negotiate(ctx, endpointID, p.Offer.Value)
		if err == nil && answer == "" {
			err = fmt.Errorf("%w: engine returned an empty answer", domain.ErrUpstreamUnavailable)
		}
		return err
	}); err != nil {
		return fail(err)
	}
	state = StateActive
	log.Info("session answer generated", zap.Stringer("state", state))

	var payload AnswerPayload
	payload.Answer.Format = formatSDP
	payload.Answer.Value = answer
	payload.SessionID = p.SessionID

	return Response{Event: &Event{
		Header: Header{
			Namespace:        NamespaceRTCSession,
			Name:             NameAnswerGenerated,
			PayloadVersion:   payloadVersion,
			MessageID:        b.newID(),
			CorrelationToken: h.CorrelationToken,
		},
		Endpoint: &Endpoint{EndpointID: endpointID},
		Payload:  payload,
	}}
}

// callEngine runs fn with the engine timeout; anything that is not
// already classified becomes ErrUpstreamUnavailable
func (b *Bridge) callEngine(ctx context.Context, fn func(context.Context) error) error {
	if b.engine == nil {
		return fmt.Errorf("%w: no media engine configured", domain.ErrUpstreamUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, b.engineTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func (b *Bridge) sessionDisconnected(d Directive) Response {
	h := d.Header
	if b.teardown && d.Endpoint != nil && d.Endpoint.EndpointID != "" && b.engine != nil {
		id := d.Endpoint.EndpointID
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), b.engineTimeout)
			defer cancel()
			if err := b.engine.RemoveStream(ctx, id); err != nil {
				b.logger.Debug("stream teardown failed", zap.String("endpoint", id), zap.Error(err))
			}
		}()
	}

	return Response{Event: &Event{
		Header: Header{
			Namespace:        NamespaceAlexa,
			Name:             NameResponse,
			PayloadVersion:   payloadVersion,
			MessageID:        b.newID(),
			CorrelationToken: h.CorrelationToken,
		},
		Payload: struct{}{},
	}}
}

// errorResponse maps an error to its protocol type
func (b *Bridge) errorResponse(h Header, err error) Response {
	var errType string
	switch domain.Kind(err) {
	case domain.KindValidation:
		errType = ErrTypeInvalidValue
	case domain.KindNotFound:
		errType = ErrTypeNoSuchEndpoint
	case domain.KindUpstreamUnavailable:
		errType = ErrTypeUnreachable
	case domain.KindAuth:
		errType = ErrTypeInvalidCredential
	default:
		errType = ErrTypeInternal
	}
	return b.errorEvent(h, errType, err.Error())
}

func (b *Bridge) errorEvent(h Header, errType, message string) Response {
	return Response{Event: &Event{
		Header: Header{
			Namespace:        NamespaceAlexa,
			Name:             NameErrorResponse,
			PayloadVersion:   payloadVersion,
			MessageID:        b.newID(),
			CorrelationToken: h.CorrelationToken,
		},
		Payload: ErrorPayload{Type: errType, Message: message},
	}}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
