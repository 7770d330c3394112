package go2rtc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

type fakeGo2rtc struct {
	mu      sync.Mutex
	streams map[string]string
	offers  []string
}

func (f *fakeGo2rtc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api" && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"version":"1.9.0"}`))
	case r.URL.Path == "/api/streams" && r.Method == http.MethodPut:
		f.streams[r.URL.Query().Get("name")] = r.URL.Query().Get("src")
	case r.URL.Path == "/api/streams" && r.Method == http.MethodDelete:
		id := r.URL.Query().Get("src")
		if _, ok := f.streams[id]; !ok {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}
		delete(f.streams, id)
	case r.URL.Path == "/api/webrtc" && r.Method == http.MethodPost:
		if r.Header.Get("Content-Type") != "application/sdp" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		if _, ok := f.streams[r.URL.Query().Get("src")]; !ok {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}
		offer, _ := io.ReadAll(r.Body)
		f.offers = append(f.offers, string(offer))
		_, _ = w.Write([]byte("v=0\r\no=- answer\r\n"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGo2rtc) snapshot() (map[string]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	streams := make(map[string]string, len(f.streams))
	for k, v := range f.streams {
		streams[k] = v
	}
	return streams, append([]string(nil), f.offers...)
}

func newFakeServer(t *testing.T) (*fakeGo2rtc, *Client) {
	t.Helper()
	fake := &fakeGo2rtc{streams: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, NewClient(srv.URL + "/")
}

func TestClient_StreamLifecycle(t *testing.T) {
	fake, c := newFakeServer(t)
	ctx := context.Background()

	assert.True(t, c.Healthy(ctx))

	src := "rtsp://admin:p@ss@192.168.1.64:554/Streaming/Channels/101"
	require.NoError(t, c.RegisterStream(ctx, "cam-1", src))
	require.NoError(t, c.RegisterStream(ctx, "cam-1", src), "re-registering is idempotent")
	streams, _ := fake.snapshot()
	assert.Equal(t, src, streams["cam-1"])

	answer, err := c.Negotiate(ctx, "cam-1", "v=0\r\no=- offer\r\n")
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\no=- answer\r\n", answer)
	_, offers := fake.snapshot()
	assert.Equal(t, []string{"v=0\r\no=- offer\r\n"}, offers)

	require.NoError(t, c.RemoveStream(ctx, "cam-1"))
	require.NoError(t, c.RemoveStream(ctx, "cam-1"), "missing stream is not an error")
	streams, _ = fake.snapshot()
	assert.Empty(t, streams)
}

func TestClient_NegotiateUnknownStream(t *testing.T) {
	_, c := newFakeServer(t)

	_, err := c.Negotiate(context.Background(), "ghost", "v=0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "404")
}

func TestClient_EmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Negotiate(context.Background(), "cam-1", "v=0")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithTimeout(500*time.Millisecond))
	ctx := context.Background()

	assert.False(t, c.Healthy(ctx))
	assert.ErrorIs(t, c.RegisterStream(ctx, "cam-1", "rtsp://x"), domain.ErrUpstreamUnavailable)
	_, err := c.Negotiate(ctx, "cam-1", "v=0")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorIs(t, c.RemoveStream(ctx, "cam-1"), domain.ErrUpstreamUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	start := time.Now()
	err := c.RegisterStream(context.Background(), "cam-1", "rtsp://x")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).RegisterStream(context.Background(), "cam-1", "rtsp://x")
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstreamUnavailable, domain.Kind(err))
	assert.Contains(t, err.Error(), "boom")
}
