package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/service"
)

func startHub(t *testing.T, opts ...Option) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func connect(t *testing.T, srv *httptest.Server) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func readUntil(t *testing.T, r *bufio.Reader, prefix string) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line)
		}
	}
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	h, srv := startHub(t)
	r, done := connect(t, srv)
	defer done()

	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Broadcast(service.Event{Type: service.EventDeviceAdded, Payload: map[string]string{"id": "cam-1"}})

	assert.Equal(t, "event: device_added", readUntil(t, r, "event:"))
	data := readUntil(t, r, "data:")
	assert.Contains(t, data, `"type":"device_added"`)
	assert.Contains(t, data, `"id":"cam-1"`)
}

func TestHub_StreamOutlivesWriteTimeout(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewUnstartedServer(h)
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	r, done := connect(t, srv)
	defer done()
	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	time.Sleep(500 * time.Millisecond)
	h.Broadcast(service.Event{Type: service.EventDeviceRemoved, Payload: map[string]string{"id": "cam-2"}})
	assert.Equal(t, "event: device_removed", readUntil(t, r, "event:"))
}

func TestHub_ClientRemovedOnDisconnect(t *testing.T) {
	h, srv := startHub(t)
	r, done := connect(t, srv)
	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	done()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_KeepAlive(t *testing.T) {
	_, srv := startHub(t, WithKeepAlive(20*time.Millisecond))
	r, done := connect(t, srv)
	defer done()

	assert.Equal(t, ": keepalive", readUntil(t, r, ": keepalive"))
}

func TestHub_AttachForwardsBusEvents(t *testing.T) {
	h, srv := startHub(t)
	bus := service.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Attach(ctx, bus)

	r, done := connect(t, srv)
	defer done()
	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.PublishDiscoveryEvent("discovery_completed", map[string]any{"added": 2})
	assert.Equal(t, "event: discovery_completed", readUntil(t, r, "event:"))
}
