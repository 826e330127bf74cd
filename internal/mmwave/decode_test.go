package mmwave

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(frameNum uint32) FrameHeader {
	return FrameHeader{
		Version:     0x03060000,
		Platform:    0xa1843,
		FrameNumber: frameNum,
		CPUCycles:   123456,
	}
}

func TestFindSync(t *testing.T) {
	buf := append([]byte{0xde, 0xad, 0xbe, 0xef}, SyncMarker...)
	assert.Equal(t, 4, FindSync(buf))
	assert.Equal(t, -1, FindSync([]byte{0x02, 0x01, 0x04}))
	assert.Equal(t, -1, FindSync(nil))
}

func TestDecodeHeaderFields(t *testing.T) {
	frame := EncodeFrame(testHeader(42), TypePointCloud, []Point{{X: 1}})

	h, err := DecodeHeader(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x03060000), h.Version)
	assert.Equal(t, uint32(0xa1843), h.Platform)
	assert.Equal(t, uint32(42), h.FrameNumber)
	assert.Equal(t, uint32(123456), h.CPUCycles)
	assert.Equal(t, uint32(1), h.NumDetectedObjects)
	assert.Equal(t, uint32(1), h.NumTLVs)
	assert.Equal(t, uint32(PointDataOff+PointSize), h.TotalPacketLength)
}

func TestDecodeHeaderNeedMoreData(t *testing.T) {
	frame := EncodeFrame(testHeader(1), TypePointCloud, nil)

	// Anything short of the full 40-byte header is a wait, not an error.
	for _, n := range []int{0, SyncSize, HeaderSize - 1} {
		_, err := DecodeHeader(frame[:n], 0)
		assert.ErrorIs(t, err, ErrNeedMoreData, "len=%d", n)
	}

	_, err := DecodeHeader(frame, len(frame)-4)
	assert.ErrorIs(t, err, ErrNeedMoreData)
}

func TestDecodeTLVHeaderNeedMoreData(t *testing.T) {
	frame := EncodeFrame(testHeader(1), TypePointCloud, nil)
	_, err := DecodeTLVHeader(frame[:HeaderSize+TLVHeaderSize-1], 0)
	assert.ErrorIs(t, err, ErrNeedMoreData)

	tlv, err := DecodeTLVHeader(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(TypePointCloud), tlv.Type)
	assert.Equal(t, uint32(0), tlv.Length)
}

// Mirrors the wire capture this reader was built against: three records with
// a zeroed slot in the middle decode to the two real detections, in order.
func TestDecodeFrameFiltersZeroRecord(t *testing.T) {
	points := []Point{
		{X: 1.5, Y: 2.0, Z: 0.25, Velocity: -3.0},
		{}, // padded slot
		{X: -0.5, Y: 4.0, Z: 1.0, Velocity: 0.75},
	}
	buf := EncodeFrame(testHeader(7), TypePointCloud, points)

	frame, err := DecodeFrame(buf, 0, TLVAcceptAny)
	require.NoError(t, err)
	require.Len(t, frame.Points, 3)

	got := FilterZero(frame.Points)
	want := []Point{points[0], points[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filtered points mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFrameOffsetIntoBuffer(t *testing.T) {
	frame := EncodeFrame(testHeader(3), TypePointCloud, []Point{{X: 1, Y: 2, Z: 3, Velocity: 4}})
	buf := append([]byte{0x00, 0x13, 0x37}, frame...)

	off := FindSync(buf)
	require.Equal(t, 3, off)

	decoded, err := DecodeFrame(buf, off, TLVAcceptAny)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), decoded.Header.FrameNumber)
	require.Len(t, decoded.Points, 1)
	assert.Equal(t, Point{X: 1, Y: 2, Z: 3, Velocity: 4}, decoded.Points[0])
}

func TestDecodeFrameCorruptionCap(t *testing.T) {
	// TLV length of 16100 bytes computes to 1006 points, over the cap.
	buf := EncodeFrame(testHeader(9), TypePointCloud, nil)
	binary.LittleEndian.PutUint32(buf[HeaderSize+4:], 16100)

	frame, err := DecodeFrame(buf, 0, TLVAcceptAny)
	assert.ErrorIs(t, err, ErrCorruptFrame)
	assert.Empty(t, frame.Points)
}

func TestDecodeFrameCapBoundary(t *testing.T) {
	buf := EncodeFrame(testHeader(9), TypePointCloud, nil)
	binary.LittleEndian.PutUint32(buf[HeaderSize+4:], uint32(MaxPointsPerFrame*PointSize))

	// Exactly at the cap is accepted; the records are simply not present in
	// the buffer so decode returns none.
	frame, err := DecodeFrame(buf, 0, TLVAcceptAny)
	require.NoError(t, err)
	assert.Empty(t, frame.Points)
}

func TestDecodeFrameTLVPolicy(t *testing.T) {
	buf := EncodeFrame(testHeader(2), 6 /* azimuth heat map */, []Point{{X: 1, Y: 1, Z: 1}})

	// Permissive policy decodes the payload as points regardless of type.
	frame, err := DecodeFrame(buf, 0, TLVAcceptAny)
	require.NoError(t, err)
	assert.Len(t, frame.Points, 1)

	// Strict policy rejects the frame whole.
	frame, err = DecodeFrame(buf, 0, TLVRequirePointCloud)
	assert.ErrorIs(t, err, ErrCorruptFrame)
	assert.Empty(t, frame.Points)
	assert.Equal(t, uint32(6), frame.TLV.Type)
}

func TestDecodeFramePartialTail(t *testing.T) {
	points := []Point{
		{X: 1, Y: 1, Z: 1, Velocity: 1},
		{X: 2, Y: 2, Z: 2, Velocity: 2},
		{X: 3, Y: 3, Z: 3, Velocity: 3},
	}
	buf := EncodeFrame(testHeader(5), TypePointCloud, points)

	// Truncate mid-way through the final record: the two complete records
	// decode, the torn one is silently dropped.
	frame, err := DecodeFrame(buf[:len(buf)-7], 0, TLVAcceptAny)
	require.NoError(t, err)
	if diff := cmp.Diff(points[:2], frame.Points); diff != "" {
		t.Errorf("partial-tail points mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	points := []Point{{X: 1.25, Y: -2.5, Z: 0.5, Velocity: 9.75}, {}, {X: 3, Y: 4, Z: 5}}
	buf := EncodeFrame(testHeader(11), TypePointCloud, points)

	first, err := DecodeFrame(buf, 0, TLVAcceptAny)
	require.NoError(t, err)
	second, err := DecodeFrame(buf, 0, TLVAcceptAny)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("decode not deterministic (-first +second):\n%s", diff)
	}
}

func TestFilterZeroOrderAndVelocity(t *testing.T) {
	points := []Point{
		{},                     // dropped
		{X: 1},                 // kept: one non-zero coordinate suffices
		{Velocity: 5},          // dropped: velocity never counts
		{Y: -0.001},            // kept
		{},                     // dropped
		{X: 2, Y: 3, Z: 4},     // kept
		{Z: float32(1e-30)},    // kept: bit-exact comparison, no tolerance
	}
	got := FilterZero(points)
	want := []Point{points[1], points[3], points[5], points[6]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FilterZero mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, FilterZero(nil))
	assert.Empty(t, FilterZero([]Point{{}, {}}))
}

func TestPointRange(t *testing.T) {
	assert.InDelta(t, 0, Point{}.Range(), 1e-9)
	assert.InDelta(t, 7.0, Point{X: 2, Y: 3, Z: 6}.Range(), 1e-6)
}
