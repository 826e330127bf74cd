package mmwave

import (
	"encoding/binary"
	"math"
)

// EncodeFrame serialises a wire-exact frame: sync marker, header, one TLV
// block of the given type, and the point records. The header's
// TotalPacketLength and NumDetectedObjects fields are filled in from the
// point count when left zero. Used by the synthetic stream generator and by
// tests; the capture path never encodes.
func EncodeFrame(h FrameHeader, tlvType uint32, points []Point) []byte {
	if h.TotalPacketLength == 0 {
		h.TotalPacketLength = uint32(PointDataOff + len(points)*PointSize)
	}
	if h.NumDetectedObjects == 0 {
		h.NumDetectedObjects = uint32(len(points))
	}
	if h.NumTLVs == 0 {
		h.NumTLVs = 1
	}

	buf := make([]byte, 0, PointDataOff+len(points)*PointSize)
	buf = append(buf, SyncMarker...)
	for _, v := range []uint32{
		h.Version, h.TotalPacketLength, h.Platform, h.FrameNumber,
		h.CPUCycles, h.NumDetectedObjects, h.NumTLVs,
	} {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	// Subframe-number word: not modeled in FrameHeader, always zero on the
	// wire. Fills the header out to HeaderSize.
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, tlvType)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(points)*PointSize))
	for _, p := range points {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Y))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Z))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Velocity))
	}
	return buf
}
