package rangeprofile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

func TestComputeBinsByRange(t *testing.T) {
	points := []mmwave.Point{
		{X: 3, Y: 4},         // range 5.0
		{X: 0, Y: 0.55},      // range 0.55
		{X: 0, Y: 0.56},      // range 0.56, same bin as above
		{X: 0, Y: 20},        // beyond max range, dropped
		{X: 0.1, Y: 0, Z: 0}, // range 0.1
	}

	p := Compute(points, 0.1, 10.0)
	require.Len(t, p.Bins, 100)
	assert.Equal(t, 0.1, p.Resolution)
	assert.Equal(t, 10.0, p.MaxRange)

	var total float64
	for _, c := range p.Bins {
		total += c
	}
	assert.Equal(t, 4.0, total)

	assert.Equal(t, 2.0, p.Bins[5])  // the two ~0.55m points
	assert.Equal(t, 1.0, p.Bins[50]) // the 5.0m point
	assert.Equal(t, 3, p.Occupied())
}

func TestComputeEmptyInput(t *testing.T) {
	p := Compute(nil, 0, 0)
	require.Len(t, p.Bins, 100)
	assert.Equal(t, 0, p.Occupied())
	assert.Equal(t, DefaultResolution, p.Resolution)
	assert.Equal(t, DefaultMaxRange, p.MaxRange)
}

func TestDefaultMatchesExplicit(t *testing.T) {
	points := []mmwave.Point{{X: 1, Y: 1, Z: 1}}
	assert.Equal(t, Compute(points, DefaultResolution, DefaultMaxRange), Default(points))
}

func TestComputeUnsortedInput(t *testing.T) {
	// Ranges arrive in wire order, not sorted; the histogram must not care.
	points := []mmwave.Point{
		{X: 0, Y: 9.5},
		{X: 0, Y: 0.25},
		{X: 0, Y: 4.2},
	}
	p := Compute(points, 0.5, 10.0)
	require.Len(t, p.Bins, 20)
	assert.Equal(t, 1.0, p.Bins[19])
	assert.Equal(t, 1.0, p.Bins[0])
	assert.Equal(t, 1.0, p.Bins[8])
}
