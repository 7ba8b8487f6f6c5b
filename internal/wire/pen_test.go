package wire

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func absPoint(toffset, x, y, pressure uint16) []byte {
	buf := []byte{recAbsolute, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint16(buf[1:3], toffset)
	binary.LittleEndian.PutUint16(buf[3:5], x)
	binary.LittleEndian.PutUint16(buf[5:7], y)
	binary.LittleEndian.PutUint16(buf[7:9], pressure)
	return buf
}

func endFrame(f Family, records []byte) []byte {
	if !f.CRCChecked() {
		return []byte{OpEndOfDrawing, StatusSuccess, 0x01, endMarker}
	}
	frame := []byte{OpEndOfDrawing, StatusSuccess, 0x05, endMarker, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(records))
	return frame
}

func TestPenDecoderFetchStream(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 100, 200, 1000)...)
	// toffset +2 (8-bit), pressure -200 (16-bit), position inherited
	stream = append(stream, 0x07, 0x02, 0x38, 0xff)
	data := append(stream, endFrame(FamilySlate, stream)...)

	d := NewPenDecoder(FamilySlate)
	records, err := d.Push(data)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, RecordStrokeEnd, records[0].Kind)

	abs := records[1]
	assert.Equal(t, RecordPoint, abs.Kind)
	assert.False(t, abs.Point.Delta)
	assert.Equal(t, int32(100), abs.Point.X)
	assert.Equal(t, int32(200), abs.Point.Y)
	assert.Equal(t, int32(1000), abs.Point.Pressure)

	delta := records[2]
	assert.Equal(t, RecordPoint, delta.Kind)
	assert.True(t, delta.Point.Delta)
	assert.True(t, delta.Point.HasTime)
	assert.False(t, delta.Point.HasPos)
	assert.True(t, delta.Point.HasPressure)
	assert.Equal(t, int32(2), delta.Point.Time)
	assert.Equal(t, int32(-200), delta.Point.Pressure)

	assert.Equal(t, RecordEnd, records[3].Kind)
	assert.True(t, d.Done())
}

func TestPenDecoderChunkedDelivery(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	data := append(stream, endFrame(FamilySlate, stream)...)

	d := NewPenDecoder(FamilySlate)
	var records []Record
	// 20-byte chunks, the way the transport delivers them
	for off := 0; off < len(data); off += 20 {
		end := min(off+20, len(data))
		recs, err := d.Push(data[off:end])
		require.NoError(t, err)
		records = append(records, recs...)
	}
	require.Len(t, records, 3)
	assert.True(t, d.Done())
}

func TestPenDecoderPartialAbsolute(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	// position + pressure, no time
	stream = append(stream, recPartialAbs, bitmapPos|bitmapPressure,
		0x10, 0x00, 0x20, 0x00, 0xe8, 0x03)
	data := append(stream, endFrame(FamilySlate, stream)...)

	d := NewPenDecoder(FamilySlate)
	records, err := d.Push(data)
	require.NoError(t, err)
	require.Len(t, records, 3)

	p := records[1].Point
	assert.False(t, p.HasTime)
	assert.True(t, p.HasPos)
	assert.True(t, p.HasPressure)
	assert.Equal(t, int32(0x10), p.X)
	assert.Equal(t, int32(0x20), p.Y)
	assert.Equal(t, int32(1000), p.Pressure)
}

func TestPenDecoderWideDeltas(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1000, 1000, 100)...)
	// 16-bit position deltas: x -300, y +300
	stream = append(stream, deltaPos|deltaPosWide, 0xd4, 0xfe, 0x2c, 0x01)
	data := append(stream, endFrame(FamilySlate, stream)...)

	d := NewPenDecoder(FamilySlate)
	records, err := d.Push(data)
	require.NoError(t, err)
	require.Len(t, records, 4)

	p := records[2].Point
	assert.True(t, p.Delta)
	assert.True(t, p.HasPos)
	assert.False(t, p.HasTime)
	assert.False(t, p.HasPressure)
	assert.Equal(t, int32(-300), p.X)
	assert.Equal(t, int32(300), p.Y)
}

func TestPenDecoderDeltaBeforeAbsolute(t *testing.T) {
	d := NewPenDecoder(FamilySlate)
	_, err := d.Push([]byte{recStrokeEnd, 0x07, 0x02, 0x38, 0xff})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestPenDecoderDeltaAfterStrokeBreak(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	stream = append(stream, recStrokeEnd)
	// new stroke must open with an absolute point
	stream = append(stream, 0x04, 0x05)

	d := NewPenDecoder(FamilySlate)
	_, err := d.Push(stream)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestPenDecoderUnknownRecordType(t *testing.T) {
	d := NewPenDecoder(FamilySlate)
	_, err := d.Push([]byte{0x9c})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestPenDecoderReservedWidthBit(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	// width bit set without its presence bit
	stream = append(stream, deltaPosWide)

	d := NewPenDecoder(FamilySlate)
	_, err := d.Push(stream)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestPenDecoderCRCMismatch(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	frame := []byte{OpEndOfDrawing, StatusSuccess, 0x05, endMarker, 0xde, 0xad, 0xbe, 0xef}
	data := append(stream, frame...)

	d := NewPenDecoder(FamilySlate)
	_, err := d.Push(data)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.False(t, d.Done())
}

func TestPenDecoderSparkSkipsCRC(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	data := append(stream, endFrame(FamilySpark, stream)...)

	d := NewPenDecoder(FamilySpark)
	records, err := d.Push(data)
	require.NoError(t, err)
	assert.Equal(t, RecordEnd, records[len(records)-1].Kind)
	assert.True(t, d.Done())
}

func TestPenDecoderRejectsDataAfterEnd(t *testing.T) {
	var stream []byte
	stream = append(stream, recStrokeEnd)
	stream = append(stream, absPoint(0, 1, 2, 3)...)
	data := append(stream, endFrame(FamilySlate, stream)...)

	d := NewPenDecoder(FamilySlate)
	_, err := d.Push(data)
	require.NoError(t, err)
	_, err = d.Push([]byte{recStrokeEnd})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseFetchInfo(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], 3)
	binary.LittleEndian.PutUint32(payload[4:8], 1746000000)
	count, ts, err := ParseFetchInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, uint32(1746000000), ts)

	_, _, err = ParseFetchInfo([]byte{0x01})
	assert.ErrorIs(t, err, ErrProtocol)
}
