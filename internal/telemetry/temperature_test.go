package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemperatureClimbsWhileCapturing(t *testing.T) {
	s := NewSimulator(func() bool { return true }, nil)
	start := s.Temperature()

	for i := 0; i < 10; i++ {
		s.step()
	}
	assert.InDelta(t, start+10*heatStep, s.Temperature(), 1e-9)
}

func TestTemperatureCoolsToFloor(t *testing.T) {
	s := NewSimulator(func() bool { return false }, nil)

	// Far more ticks than needed to reach the floor.
	for i := 0; i < 1000; i++ {
		s.step()
	}
	assert.Equal(t, minTemp, s.Temperature())
}

func TestTemperatureCapsAtCeiling(t *testing.T) {
	s := NewSimulator(func() bool { return true }, nil)
	for i := 0; i < 10000; i++ {
		s.step()
	}
	assert.Equal(t, maxTemp, s.Temperature())
	assert.True(t, s.Overheated())
}

func TestOverheatedThreshold(t *testing.T) {
	s := NewSimulator(func() bool { return true }, nil)
	assert.False(t, s.Overheated())

	// Heat to just past the warning threshold.
	for s.Temperature() <= WarnTemp {
		s.step()
	}
	assert.True(t, s.Overheated())
}

func TestRunObservesEachTick(t *testing.T) {
	seen := make(chan float64, 8)
	s := NewSimulator(func() bool { return true }, func(c float64) { seen <- c })
	s.SetTick(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	var first, second float64
	select {
	case first = <-seen:
	case <-time.After(time.Second):
		t.Fatal("no observation arrived")
	}
	select {
	case second = <-seen:
	case <-time.After(time.Second):
		t.Fatal("second observation never arrived")
	}
	require.Greater(t, second, first)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
