package adapter

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

// fakeRTSP answers every request with reply; an empty reply closes the
// connection without answering
func fakeRTSP(t *testing.T, reply string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if reply == "" {
					return
				}
				br := bufio.NewReader(c)
				for {
					line, err := br.ReadString('\n')
					if err != nil {
						return
					}
					if line == "\r\n" {
						break
					}
				}
				_, _ = c.Write([]byte(reply))
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func rtspDevice(id, host string, port int) domain.Device {
	return domain.Device{
		ID:        id,
		Address:   host,
		Port:      port,
		Channel:   1,
		StreamURI: "rtsp://admin:pw@" + net.JoinHostPort(host, strconv.Itoa(port)) + "/Streaming/Channels/101",
		Status:    domain.DeviceStatusUnknown,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishDiscoveryEvent(eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func TestVerifier_Verify(t *testing.T) {
	authHost, authPort := fakeRTSP(t, "RTSP/1.0 401 Unauthorized\r\nCSeq: 1\r\nWWW-Authenticate: Basic realm=\"cam\"\r\n\r\n")
	okHost, okPort := fakeRTSP(t, "RTSP/1.0 200 OK\r\nCSeq: 1\r\nPublic: DESCRIBE, SETUP, PLAY\r\n\r\n")
	mute, mutePort := fakeRTSP(t, "")
	closed := closedPort(t)

	sentinel := domain.Device{ID: "dvr", Address: okHost, Port: okPort, Channel: domain.SentinelChannel}

	devices := []domain.Device{
		rtspDevice("auth", authHost, authPort),
		rtspDevice("ok", okHost, okPort),
		rtspDevice("mute", mute, mutePort),
		rtspDevice("closed", "127.0.0.1", closed),
		sentinel,
		{ID: "noaddr", Channel: 1},
	}

	pub := &recordingPublisher{}
	v := NewVerifier(VerifierConfig{DialTimeout: time.Second, MaxConcurrent: 2, RTSPOptions: true}, nil, pub)
	results := v.Verify(context.Background(), devices)
	require.Len(t, results, len(devices))

	byID := map[string]ProbeResult{}
	for i, r := range results {
		assert.Equal(t, devices[i].ID, r.DeviceID, "results keep input order")
		byID[r.DeviceID] = r
	}

	assert.Equal(t, domain.DeviceStatusOnline, byID["auth"].Status, "401 still proves an rtsp server")
	assert.Equal(t, 401, byID["auth"].RTSPStatus)
	assert.Equal(t, domain.DeviceStatusOnline, byID["ok"].Status)
	assert.Equal(t, 200, byID["ok"].RTSPStatus)

	assert.Equal(t, domain.DeviceStatusOffline, byID["mute"].Status)
	assert.True(t, byID["mute"].Reachable)
	assert.NotEmpty(t, byID["mute"].Error)

	assert.Equal(t, domain.DeviceStatusOffline, byID["closed"].Status)
	assert.False(t, byID["closed"].Reachable)

	assert.Equal(t, domain.DeviceStatusOnline, byID["dvr"].Status, "sentinels only need tcp")
	assert.Zero(t, byID["dvr"].RTSPStatus)

	assert.Equal(t, domain.DeviceStatusOffline, byID["noaddr"].Status)
	assert.Equal(t, "no address", byID["noaddr"].Error)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, EventVerifyStarted, pub.events[0])
	assert.Equal(t, EventVerifyCompleted, pub.events[len(pub.events)-1])
	assert.Len(t, pub.events, len(devices)+2)
}

func TestVerifier_TCPOnly(t *testing.T) {
	host, port := fakeRTSP(t, "")
	v := NewVerifier(VerifierConfig{RTSPOptions: false}, nil, nil)

	results := v.Verify(context.Background(), []domain.Device{rtspDevice("cam", host, port)})
	require.Len(t, results, 1)
	assert.Equal(t, domain.DeviceStatusOnline, results[0].Status)
}

func TestVerifier_Empty(t *testing.T) {
	v := NewVerifier(VerifierConfig{}, nil, nil)
	assert.Empty(t, v.Verify(context.Background(), nil))
	assert.Equal(t, DefaultVerifierConfig().DialTimeout, v.config.DialTimeout)
	assert.Equal(t, DefaultVerifierConfig().MaxConcurrent, v.config.MaxConcurrent)
}

func TestVerifier_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := rtspDevice("cam", "127.0.0.1", closedPort(t))
	d.Status = domain.DeviceStatusOnline
	results := NewVerifier(VerifierConfig{}, nil, nil).Verify(ctx, []domain.Device{d})
	require.Len(t, results, 1)
	assert.Equal(t, domain.DeviceStatusOnline, results[0].Status, "status kept when not probed")
	assert.NotEmpty(t, results[0].Error)
}
