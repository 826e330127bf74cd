package mmwave

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrNeedMoreData reports that the buffer ends before the current decode step
// completes. It is not a protocol violation: the caller should keep the bytes
// it has and wait for more.
var ErrNeedMoreData = errors.New("mmwave: need more data")

// ErrCorruptFrame reports a frame that failed the anti-corruption checks and
// was discarded whole.
var ErrCorruptFrame = errors.New("mmwave: corrupt frame")

// FindSync returns the offset of the first sync marker occurrence in buf, or
// -1 if the marker is not present.
func FindSync(buf []byte) int {
	return bytes.Index(buf, SyncMarker)
}

// DecodeHeader decodes the fixed frame header at the given sync offset.
// Returns ErrNeedMoreData when fewer than HeaderSize bytes are available past
// the offset.
func DecodeHeader(buf []byte, off int) (FrameHeader, error) {
	if off < 0 || len(buf)-off < HeaderSize {
		return FrameHeader{}, ErrNeedMoreData
	}
	b := buf[off+SyncSize : off+HeaderSize]
	return FrameHeader{
		Version:            binary.LittleEndian.Uint32(b[0:4]),
		TotalPacketLength:  binary.LittleEndian.Uint32(b[4:8]),
		Platform:           binary.LittleEndian.Uint32(b[8:12]),
		FrameNumber:        binary.LittleEndian.Uint32(b[12:16]),
		CPUCycles:          binary.LittleEndian.Uint32(b[16:20]),
		NumDetectedObjects: binary.LittleEndian.Uint32(b[20:24]),
		NumTLVs:            binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// DecodeTLVHeader decodes the TLV block header immediately after the frame
// header at the given sync offset.
func DecodeTLVHeader(buf []byte, off int) (TLVHeader, error) {
	if off < 0 || len(buf)-off < HeaderSize+TLVHeaderSize {
		return TLVHeader{}, ErrNeedMoreData
	}
	b := buf[off+HeaderSize : off+HeaderSize+TLVHeaderSize]
	return TLVHeader{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Length: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// DecodePoints reads up to n consecutive point records starting at the given
// byte offset. A record truncated by the end of the buffer stops decoding
// early; the fully-present preceding records are returned without error.
func DecodePoints(buf []byte, off, n int) []Point {
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		rec := off + i*PointSize
		if rec+PointSize > len(buf) {
			break
		}
		b := buf[rec : rec+PointSize]
		points = append(points, Point{
			X:        math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			Y:        math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
			Z:        math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
			Velocity: math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
		})
	}
	return points
}

// DecodeFrame decodes one frame whose sync marker starts at off.
//
// Returns ErrNeedMoreData when the header or TLV header is incomplete, and
// ErrCorruptFrame when the TLV length implies more than MaxPointsPerFrame
// records or when the TLV type fails the policy check. Point records
// truncated at the buffer tail are tolerated per DecodePoints.
func DecodeFrame(buf []byte, off int, policy TLVPolicy) (Frame, error) {
	header, err := DecodeHeader(buf, off)
	if err != nil {
		return Frame{}, err
	}
	tlv, err := DecodeTLVHeader(buf, off)
	if err != nil {
		return Frame{}, err
	}

	frame := Frame{Header: header, TLV: tlv}

	if policy == TLVRequirePointCloud && tlv.Type != TypePointCloud {
		return frame, fmt.Errorf("%w: tlv type %d", ErrCorruptFrame, tlv.Type)
	}

	numPoints := int(tlv.Length) / PointSize
	if numPoints > MaxPointsPerFrame {
		return frame, fmt.Errorf("%w: tlv length %d implies %d points", ErrCorruptFrame, tlv.Length, numPoints)
	}

	frame.Points = DecodePoints(buf, off+PointDataOff, numPoints)
	return frame, nil
}

// FilterZero returns the points whose position triple is not exactly (0,0,0),
// preserving relative order.
func FilterZero(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.IsZero() {
			out = append(out, p)
		}
	}
	return out
}
