package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

type fakeDevices struct {
	mu      sync.Mutex
	devices []domain.Device
	gets    int
}

func newFakeDevices(devices ...domain.Device) *fakeDevices {
	return &fakeDevices{devices: devices}
}

func (f *fakeDevices) List() []domain.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Device(nil), f.devices...)
}

func (f *fakeDevices) Get(id string) (domain.Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	for _, d := range f.devices {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Device{}, false
}

func testDevice(id, addr string, ch int) domain.Device {
	return domain.Device{
		ID:           id,
		Name:         fmt.Sprintf("Annke Camera %d", ch),
		StreamURI:    fmt.Sprintf("rtsp://admin:pw@%s:554/Streaming/Channels/%d01", addr, ch),
		Manufacturer: "Annke",
		Model:        "DVR Channel",
		Address:      addr,
		Port:         554,
		Channel:      ch,
		Status:       domain.DeviceStatusOnline,
	}
}

type fakeEngine struct {
	mu          sync.Mutex
	registered  map[string]string
	negotiated  int
	removed     []string
	registerErr error
	negotiate   func(ctx context.Context, id, offer string) (string, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registered: make(map[string]string),
		negotiate: func(_ context.Context, _, _ string) (string, error) {
			return "v=0\r\nanswer", nil
		},
	}
}

func (e *fakeEngine) RegisterStream(_ context.Context, id, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registerErr != nil {
		return e.registerErr
	}
	e.registered[id] = src
	return nil
}

func (e *fakeEngine) Negotiate(ctx context.Context, id, offer string) (string, error) {
	e.mu.Lock()
	e.negotiated++
	fn := e.negotiate
	e.mu.Unlock()
	return fn(ctx, id, offer)
}

func (e *fakeEngine) RemoveStream(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, id)
	return nil
}

func (e *fakeEngine) negotiations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.negotiated
}

func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func initiateBody(endpointID, offer string) []byte {
	d := map[string]any{
		"directive": map[string]any{
			"header": map[string]any{
				"namespace":        NamespaceRTCSession,
				"name":             NameInitiateSession,
				"payloadVersion":   "3",
				"messageId":        "m-1",
				"correlationToken": "corr-42",
			},
			"endpoint": map[string]any{"endpointId": endpointID},
			"payload": map[string]any{
				"sessionId": "session-7",
				"offer":     map[string]any{"format": "SDP", "value": offer},
			},
		},
	}
	b, _ := json.Marshal(d)
	return b
}

func errorPayload(t *testing.T, r Response) ErrorPayload {
	t.Helper()
	require.True(t, r.IsError(), "expected an error response")
	p, ok := r.Event.Payload.(ErrorPayload)
	require.True(t, ok)
	return p
}

func TestBridge_Discover(t *testing.T) {
	devices := newFakeDevices(
		testDevice("cam-1", "192.168.1.64", 1),
		testDevice("cam-2", "192.168.1.64", 2),
		testDevice("cam-3", "192.168.1.70", 1),
	)
	b := New(devices, newFakeEngine(), WithMessageIDs(fixedIDs()))

	body := []byte(`{"directive":{"header":{"namespace":"Alexa.Discovery","name":"Discover","payloadVersion":"3","messageId":"abc-123"},"payload":{}}}`)
	r := b.Handle(context.Background(), body)

	require.NotNil(t, r.Event)
	assert.False(t, r.IsError())
	assert.Equal(t, NameDiscoverResponse, r.Event.Header.Name)
	assert.Equal(t, "abc-123", r.Event.Header.MessageID)

	p, ok := r.Event.Payload.(DiscoverPayload)
	require.True(t, ok)
	require.Len(t, p.Endpoints, 3)
	assert.Equal(t, "cam-1", p.Endpoints[0].EndpointID)
	assert.Equal(t, "Smart Camera 2", p.Endpoints[1].Description)
	assert.Equal(t, []string{"CAMERA"}, p.Endpoints[2].DisplayCategories)

	var ifaces []string
	for _, c := range p.Endpoints[0].Capabilities {
		ifaces = append(ifaces, c.Interface)
	}
	assert.Equal(t, []string{NamespaceRTCSession, NamespaceEndpointHealth, NamespaceAlexa}, ifaces)
}

func TestBridge_DiscoverEmptyRegistry(t *testing.T) {
	b := New(newFakeDevices(), newFakeEngine())
	r := b.Handle(context.Background(), []byte(`{"directive":{"header":{"namespace":"Alexa.Discovery","name":"Discover"}}}`))

	p, ok := r.Event.Payload.(DiscoverPayload)
	require.True(t, ok)
	assert.Empty(t, p.Endpoints)
	assert.NotEmpty(t, r.Event.Header.MessageID)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"endpoints":[]`)
}

func TestBridge_LegacyDiscover(t *testing.T) {
	devices := newFakeDevices(testDevice("cam-1", "192.168.1.64", 1), testDevice("cam-2", "192.168.1.64", 2))
	b := New(devices, newFakeEngine(), WithMessageIDs(fixedIDs()))

	body := []byte(`{"header":{"namespace":"Alexa.ConnectedHome.Discovery","name":"DiscoverAppliancesRequest","payloadVersion":"2"}}`)
	r := b.Handle(context.Background(), body)

	assert.Nil(t, r.Event)
	require.NotNil(t, r.Header)
	assert.Equal(t, NameDiscoverAppliancesResult, r.Header.Name)
	assert.Equal(t, "2", r.Header.PayloadVersion)

	p, ok := r.Payload.(LegacyDiscoverPayload)
	require.True(t, ok)
	require.Len(t, p.DiscoveredAppliances, 2)
	assert.Equal(t, "cam-1", p.DiscoveredAppliances[0].ApplianceID)
	assert.Equal(t, "DVR Channel", p.DiscoveredAppliances[0].ModelName)
	assert.True(t, p.DiscoveredAppliances[0].IsReachable)
	assert.Equal(t, len(b.Endpoints()), len(p.DiscoveredAppliances))
}

func TestBridge_InitiateSession(t *testing.T) {
	devices := newFakeDevices(testDevice("cam-1", "192.168.1.64", 1))
	engine := newFakeEngine()
	b := New(devices, engine, WithMessageIDs(fixedIDs()))

	r := b.Handle(context.Background(), initiateBody("cam-1", "v=0\r\noffer"))
	require.NotNil(t, r.Event)
	assert.False(t, r.IsError())
	assert.Equal(t, NameAnswerGenerated, r.Event.Header.Name)
	assert.Equal(t, "corr-42", r.Event.Header.CorrelationToken)
	assert.Equal(t, "cam-1", r.Event.Endpoint.EndpointID)

	p, ok := r.Event.Payload.(AnswerPayload)
	require.True(t, ok)
	assert.Equal(t, "SDP", p.Answer.Format)
	assert.Equal(t, "v=0\r\nanswer", p.Answer.Value)
	assert.Equal(t, "session-7", p.SessionID)

	assert.Equal(t, "rtsp://admin:pw@192.168.1.64:554/Streaming/Channels/101", engine.registered["cam-1"])
	assert.Equal(t, 1, engine.negotiations())
}

func TestBridge_InitiateSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"missing offer", initiateBody("cam-1", "")},
		{"missing endpoint", initiateBody("", "v=0")},
		{"no payload", []byte(`{"directive":{"header":{"namespace":"Alexa.RTCSessionController","name":"InitiateSessionWithOffer"},"endpoint":{"endpointId":"cam-1"}}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices := newFakeDevices(testDevice("cam-1", "192.168.1.64", 1))
			engine := newFakeEngine()
			b := New(devices, engine)

			r := b.Handle(context.Background(), tt.body)
			assert.Equal(t, ErrTypeInvalidValue, errorPayload(t, r).Type)
			assert.Zero(t, devices.gets, "no registry lookup")
			assert.Empty(t, engine.registered)
			assert.Zero(t, engine.negotiations())
		})
	}
}

func TestBridge_InitiateSessionUnknownEndpoint(t *testing.T) {
	engine := newFakeEngine()
	b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), engine)

	r := b.Handle(context.Background(), initiateBody("ghost", "v=0"))
	assert.Equal(t, ErrTypeNoSuchEndpoint, errorPayload(t, r).Type)
	assert.Equal(t, "corr-42", r.Event.Header.CorrelationToken)
	assert.Empty(t, engine.registered)
	assert.Zero(t, engine.negotiations())
}

func TestBridge_InitiateSessionEngineFailure(t *testing.T) {
	t.Run("register fails", func(t *testing.T) {
		engine := newFakeEngine()
		engine.registerErr = errors.New("connection refused")
		b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), engine)

		r := b.Handle(context.Background(), initiateBody("cam-1", "v=0"))
		assert.Equal(t, ErrTypeUnreachable, errorPayload(t, r).Type)
		assert.Zero(t, engine.negotiations())
	})

	t.Run("negotiate fails", func(t *testing.T) {
		engine := newFakeEngine()
		engine.negotiate = func(context.Context, string, string) (string, error) {
			return "", fmt.Errorf("%w: status 500", domain.ErrUpstreamUnavailable)
		}
		b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), engine)

		r := b.Handle(context.Background(), initiateBody("cam-1", "v=0"))
		assert.Equal(t, ErrTypeUnreachable, errorPayload(t, r).Type)
	})

	t.Run("empty answer", func(t *testing.T) {
		engine := newFakeEngine()
		engine.negotiate = func(context.Context, string, string) (string, error) {
			return "", nil
		}
		b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), engine)

		r := b.Handle(context.Background(), initiateBody("cam-1", "v=0"))
		assert.Equal(t, ErrTypeUnreachable, errorPayload(t, r).Type)
	})

	t.Run("timeout", func(t *testing.T) {
		engine := newFakeEngine()
		engine.negotiate = func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), engine, WithEngineTimeout(20*time.Millisecond))

		start := time.Now()
		r := b.Handle(context.Background(), initiateBody("cam-1", "v=0"))
		assert.Equal(t, ErrTypeUnreachable, errorPayload(t, r).Type)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("no engine", func(t *testing.T) {
		b := New(newFakeDevices(testDevice("cam-1", "192.168.1.64", 1)), nil)
		r := b.Handle(context.Background(), initiateBody("cam-1", "v=0"))
		assert.Equal(t, ErrTypeUnreachable, errorPayload(t, r).Type)
	})
}

func TestBridge_SessionDisconnected(t *testing.T) {
	body := []byte(`{"directive":{"header":{"namespace":"Alexa.RTCSessionController","name":"SessionDisconnected","correlationToken":"c-9"},"endpoint":{"endpointId":"cam-1"},"payload":{"sessionId":"s"}}}`)

	t.Run("ack only", func(t *testing.T) {
		engine := newFakeEngine()
		b := New(newFakeDevices(), engine)
		r := b.Handle(context.Background(), body)
		b.Close()

		require.NotNil(t, r.Event)
		assert.Equal(t, NamespaceAlexa, r.Event.Header.Namespace)
		assert.Equal(t, NameResponse, r.Event.Header.Name)
		assert.Equal(t, "c-9", r.Event.Header.CorrelationToken)
		assert.Empty(t, engine.removed)
	})

	t.Run("teardown", func(t *testing.T) {
		engine := newFakeEngine()
		b := New(newFakeDevices(), engine, WithTeardownOnDisconnect(true))
		r := b.Handle(context.Background(), body)
		b.Close()

		assert.False(t, r.IsError())
		assert.Equal(t, []string{"cam-1"}, engine.removed)
	})
}

func TestBridge_UnsupportedDirectives(t *testing.T) {
	b := New(newFakeDevices(), newFakeEngine())

	r := b.Handle(context.Background(), []byte(`{"directive":{"header":{"namespace":"Alexa","name":"ReportState","correlationToken":"t"}}}`))
	p := errorPayload(t, r)
	assert.Equal(t, ErrTypeInvalidDirective, p.Type)
	assert.Equal(t, "t", r.Event.Header.CorrelationToken)

	r = b.Handle(context.Background(), []byte(`{"directive":{"header":{"namespace":"Alexa.PowerController","name":"TurnOn"}}}`))
	p = errorPayload(t, r)
	assert.Equal(t, ErrTypeInvalidDirective, p.Type)
	assert.Contains(t, p.Message, "Alexa.PowerController::TurnOn")
}

func TestBridge_MalformedBody(t *testing.T) {
	b := New(newFakeDevices(), newFakeEngine())
	r := b.Handle(context.Background(), []byte(`{not json`))
	assert.Equal(t, ErrTypeInvalidValue, errorPayload(t, r).Type)
}

func TestNegotiationState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "state(9)", NegotiationState(9).String())
}
