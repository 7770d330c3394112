package adapter

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

const sampleProbeMatch = `<?xml version="1.0" encoding="UTF-8"?>
<ProbeMatch>
<Uuid>3A5B1C2D-0000-0000-0000-000000000000</Uuid>
<Types>inquiry</Types>
<DeviceType>139</DeviceType>
<DeviceDescription>DVR-4CH</DeviceDescription>
<DeviceName>Backyard DVR</DeviceName>
<Manufacturer>Annke</Manufacturer>
<IPv4Address>192.168.1.64</IPv4Address>
</ProbeMatch>`

func TestParseSADPReply(t *testing.T) {
	f, ok := parseSADPReply([]byte(sampleProbeMatch), "192.168.1.64")
	require.True(t, ok)
	assert.Equal(t, "Backyard DVR", f.DeviceName)
	assert.Equal(t, "Annke", f.Manufacturer)
	assert.Equal(t, "DVR-4CH", f.Model)
	assert.Equal(t, "192.168.1.64", f.Address)

	_, ok = parseSADPReply(sadpProbe, "192.168.1.10")
	assert.False(t, ok, "our own inquiry is not a reply")

	_, ok = parseSADPReply([]byte("garbage"), "192.168.1.10")
	assert.False(t, ok)
}

func TestSADPCollect(t *testing.T) {
	listener, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	sender, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	dst := listener.LocalAddr()
	go func() {
		sender.WriteTo([]byte(sampleProbeMatch), dst)
		sender.WriteTo([]byte(sampleProbeMatch), dst)
		sender.WriteTo([]byte(`<ProbeMatch><Manufacturer>Acme</Manufacturer><DeviceType>Printer</DeviceType></ProbeMatch>`), dst)
	}()

	s := NewSADPScanner()
	found := s.collect(context.Background(), listener, time.Now().Add(300*time.Millisecond))

	require.Len(t, found, 1, "duplicate replies from one sender collapse")
	assert.Equal(t, "127.0.0.1", found[0].Address)
	assert.Equal(t, 1, found[0].Channel)
	assert.Equal(t, domain.DeviceStatusOnline, found[0].Status)
	assert.Equal(t, "rtsp://admin:@127.0.0.1:554/Streaming/Channels/101", found[0].StreamURI)
}

func TestSADPCollectStopsOnCancel(t *testing.T) {
	listener, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	found := NewSADPScanner().collect(ctx, listener, time.Now().Add(5*time.Second))
	assert.Empty(t, found)
	assert.Less(t, time.Since(start), 2*time.Second)
}
