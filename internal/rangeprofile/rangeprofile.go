// Package rangeprofile derives a histogram of point ranges from a decoded
// frame. This is presentation-side bookkeeping over already-decoded points,
// not the sensor's native range profile TLV, and it claims no physical
// accuracy.
package rangeprofile

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

// Default binning: 0.1 m bins out to 10 m.
const (
	DefaultResolution = 0.1
	DefaultMaxRange   = 10.0
)

// Profile is one computed range histogram.
type Profile struct {
	Resolution float64   `json:"resolution_m"`
	MaxRange   float64   `json:"max_range_m"`
	Bins       []float64 `json:"bins"`
}

// Compute bins the straight-line ranges of points into a histogram with the
// given bin width and upper bound. Points at or beyond maxRange fall outside
// every bin and are not counted.
func Compute(points []mmwave.Point, resolution, maxRange float64) Profile {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if maxRange <= 0 {
		maxRange = DefaultMaxRange
	}
	numBins := int(maxRange / resolution)

	dividers := make([]float64, numBins+1)
	floats.Span(dividers, 0, maxRange)

	ranges := make([]float64, 0, len(points))
	for _, p := range points {
		if r := p.Range(); r < maxRange {
			ranges = append(ranges, r)
		}
	}
	sort.Float64s(ranges)

	return Profile{
		Resolution: resolution,
		MaxRange:   maxRange,
		Bins:       stat.Histogram(make([]float64, numBins), dividers, ranges, nil),
	}
}

// Default computes a profile with the default binning.
func Default(points []mmwave.Point) Profile {
	return Compute(points, DefaultResolution, DefaultMaxRange)
}

// Occupied returns the number of non-empty bins, the figure the status
// surface reports as the profile length.
func (p Profile) Occupied() int {
	n := 0
	for _, c := range p.Bins {
		if c > 0 {
			n++
		}
	}
	return n
}
