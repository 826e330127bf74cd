// Package telemetry simulates the sensor temperature channel. The IWR1843
// demo firmware exposes no thermometer over the data path, so the service
// models one: temperature climbs while capturing, drifts back
// down otherwise. It exists to drive the overheat-protection workflow
// (pause/resume), not to measure anything.
package telemetry

import (
	"context"
	"sync"
	"time"
)

const (
	startTemp = 25.0
	minTemp   = 20.0
	maxTemp   = 80.0

	heatStep = 0.1  // per tick while capturing
	coolStep = 0.05 // per tick while idle

	// WarnTemp is the advisory threshold above which operators should
	// pause the sensor.
	WarnTemp = 70.0

	defaultTick = time.Second
)

// Simulator runs the periodic temperature model. It shares exactly one piece
// of state with the capture side: the capturing flag, sampled through the
// injected func each tick.
type Simulator struct {
	capturing func() bool
	observer  func(celsius float64)
	tick      time.Duration

	mu   sync.Mutex
	temp float64
}

// NewSimulator creates a simulator reading the capturing flag via capturing
// and reporting each tick's temperature to observer. A nil observer is
// allowed; Temperature remains queryable either way.
func NewSimulator(capturing func() bool, observer func(float64)) *Simulator {
	return &Simulator{
		capturing: capturing,
		observer:  observer,
		tick:      defaultTick,
		temp:      startTemp,
	}
}

// SetTick overrides the update period, for tests.
func (s *Simulator) SetTick(d time.Duration) {
	s.tick = d
}

// Temperature returns the current simulated temperature in °C.
func (s *Simulator) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp
}

// Overheated reports whether the simulated temperature has crossed WarnTemp.
func (s *Simulator) Overheated() bool {
	return s.Temperature() > WarnTemp
}

// Run advances the model once per tick until ctx is cancelled. The task has
// no ordering relationship with frame delivery.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := s.step()
			if s.observer != nil {
				s.observer(t)
			}
		}
	}
}

// step applies one tick of the model and returns the new temperature.
func (s *Simulator) step() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturing() {
		s.temp += heatStep
	} else {
		s.temp -= coolStep
	}
	if s.temp > maxTemp {
		s.temp = maxTemp
	}
	if s.temp < minTemp {
		s.temp = minTemp
	}
	return s.temp
}
