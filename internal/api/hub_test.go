package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

func TestHubLatest(t *testing.T) {
	hub := NewFrameHub()

	_, ok := hub.Latest()
	assert.False(t, ok)

	hub.Publish(mmwave.Frame{Header: mmwave.FrameHeader{FrameNumber: 1}})
	hub.Publish(mmwave.Frame{Header: mmwave.FrameHeader{FrameNumber: 2}})

	frame, ok := hub.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(2), frame.Header.FrameNumber)
}

func TestHubSubscribeReceivesInOrder(t *testing.T) {
	hub := NewFrameHub()
	id, frames := hub.Subscribe()
	defer hub.Unsubscribe(id)

	hub.Publish(mmwave.Frame{Header: mmwave.FrameHeader{FrameNumber: 1}})
	hub.Publish(mmwave.Frame{Header: mmwave.FrameHeader{FrameNumber: 2}})

	for want := uint32(1); want <= 2; want++ {
		select {
		case frame := <-frames:
			assert.Equal(t, want, frame.Header.FrameNumber)
		case <-time.After(time.Second):
			t.Fatalf("frame %d never arrived", want)
		}
	}
}

// A subscriber that stops draining misses frames; the publisher never blocks.
func TestHubSlowSubscriberDropsFrames(t *testing.T) {
	hub := NewFrameHub()
	id, frames := hub.Subscribe()
	defer hub.Unsubscribe(id)

	// Overfill the subscriber buffer.
	for i := 1; i <= 40; i++ {
		hub.Publish(mmwave.Frame{Header: mmwave.FrameHeader{FrameNumber: uint32(i)}})
	}

	received := 0
	for {
		select {
		case <-frames:
			received++
			continue
		default:
		}
		break
	}
	assert.Greater(t, received, 0)
	assert.Less(t, received, 40)

	// The hub itself kept the newest frame.
	latest, ok := hub.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(40), latest.Header.FrameNumber)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewFrameHub()
	id, frames := hub.Subscribe()
	hub.Unsubscribe(id)

	_, open := <-frames
	assert.False(t, open)

	// Double unsubscribe is harmless.
	hub.Unsubscribe(id)
	hub.Publish(mmwave.Frame{})
}
