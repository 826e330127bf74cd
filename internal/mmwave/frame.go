// Package mmwave decodes the binary point-cloud frame stream emitted by TI
// mmWave sensors (IWR1843 demo firmware) on their data channel.
//
// Each frame on the wire is a fixed 8-byte sync marker, a 32-byte header of
// seven little-endian uint32 fields, one TLV (type-length-value) block header,
// and a run of 16-byte point records. All decode functions in this package are
// pure transformations over byte slices so they can be unit tested without a
// serial port or a running capture worker.
package mmwave

import "math"

// Wire format constants. Offsets are relative to the first byte of the sync
// marker.
const (
	SyncSize      = 8                          // sync marker bytes
	HeaderSize    = 40                         // sync marker + 7 × uint32 header fields
	TLVHeaderSize = 8                          // 2 × uint32 TLV header fields
	PointSize     = 16                         // 4 × float32 per point record
	PointDataOff  = HeaderSize + TLVHeaderSize // first point record offset

	// TypePointCloud is the TLV type carrying detected-object point records.
	TypePointCloud = 1

	// MaxPointsPerFrame caps the point count computed from a TLV length.
	// A frame claiming more points than this is treated as corrupt and
	// dropped whole rather than partially parsed.
	MaxPointsPerFrame = 1000
)

// SyncMarker is the fixed byte sequence that begins every valid frame.
var SyncMarker = []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// FrameHeader is the fixed-size header following the sync marker. No field is
// validated against the TLV contents; the demo firmware is trusted to emit
// consistent values and the decoder tolerates it when it does not.
type FrameHeader struct {
	Version            uint32
	TotalPacketLength  uint32
	Platform           uint32
	FrameNumber        uint32
	CPUCycles          uint32
	NumDetectedObjects uint32
	NumTLVs            uint32
}

// TLVHeader bounds one type-length-value block. Length counts the value bytes
// only, excluding this header.
type TLVHeader struct {
	Type   uint32
	Length uint32
}

// Point is one detected object: position in metres, radial velocity in m/s.
type Point struct {
	X        float32
	Y        float32
	Z        float32
	Velocity float32
}

// Range returns the straight-line distance from the sensor in metres.
func (p Point) Range() float64 {
	return math.Sqrt(float64(p.X)*float64(p.X) + float64(p.Y)*float64(p.Y) + float64(p.Z)*float64(p.Z))
}

// IsZero reports whether the position triple is exactly (0,0,0). The demo
// firmware pads undetected slots with zeroed records; the comparison is
// bit-exact on purpose, not a tolerance check, and velocity never counts.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

// Frame is one decoded sensor report: the header plus the point records of
// its point-cloud TLV, in wire order.
type Frame struct {
	Header FrameHeader
	TLV    TLVHeader
	Points []Point
}

// TLVPolicy selects how the decoder treats the TLV type field.
type TLVPolicy int

const (
	// TLVAcceptAny attempts point decoding regardless of TLV type. This
	// matches the demo firmware reader, which only ever configures the
	// point-cloud output.
	TLVAcceptAny TLVPolicy = iota

	// TLVRequirePointCloud yields an empty frame for any TLV type other
	// than TypePointCloud.
	TLVRequirePointCloud
)

func (p TLVPolicy) String() string {
	switch p {
	case TLVAcceptAny:
		return "accept-any"
	case TLVRequirePointCloud:
		return "require-pointcloud"
	default:
		return "unknown"
	}
}
