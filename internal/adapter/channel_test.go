package adapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camerabridge/internal/domain"
)

func TestChannelProber(t *testing.T) {
	p := NewChannelProber("10.0.0.20", StreamTemplate{Username: "admin", Password: "pw", Port: 554}, 4, nil)

	found, err := p.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 4)

	for i, c := range found {
		ch := i + 1
		assert.Equal(t, ch, c.Channel)
		assert.Equal(t, fmt.Sprintf("Annke Camera %d", ch), c.Name)
		assert.Equal(t, fmt.Sprintf("rtsp://admin:pw@10.0.0.20:554/Streaming/Channels/%d01", ch), c.StreamURI)
		assert.Equal(t, "DVR Channel", c.Model)
		assert.Equal(t, domain.MethodProbe, c.Source)
		assert.Equal(t, domain.DeviceStatusOnline, c.Status)
	}
}

func TestChannelProberClampsChannels(t *testing.T) {
	assert.Equal(t, MaxProbeChannels, NewChannelProber("10.0.0.20", AnonymousTemplate, 64, nil).MaxChannels())
	assert.Equal(t, 1, NewChannelProber("10.0.0.20", AnonymousTemplate, 0, nil).MaxChannels())
}

func TestChannelProberNoAddress(t *testing.T) {
	found, err := NewChannelProber("", AnonymousTemplate, 4, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestValidRTSPURI(t *testing.T) {
	assert.True(t, validRTSPURI("rtsp://admin:@10.0.0.1:554/Streaming/Channels/101"))
	assert.True(t, validRTSPURI("rtsps://cam.local/stream"))
	assert.False(t, validRTSPURI("http://10.0.0.1/"))
	assert.False(t, validRTSPURI("not a url"))
}
