package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTimeBCD(t *testing.T) {
	ts := time.Date(2026, time.August, 6, 13, 37, 42, 0, time.UTC)
	buf := MarshalTime(FamilySlate, ts)
	assert.Equal(t, []byte{0x26, 0x08, 0x06, 0x13, 0x37, 0x42}, buf)
}

func TestTimeRoundTripBCD(t *testing.T) {
	ts := time.Date(2026, time.January, 31, 23, 59, 9, 0, time.UTC)
	got, err := ParseTime(FamilySpark, MarshalTime(FamilySpark, ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))
}

func TestTimeRoundTripIntuos(t *testing.T) {
	ts := time.Unix(1754480000, 0).UTC()
	got, err := ParseTime(FamilyIntuosPro, MarshalTime(FamilyIntuosPro, ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))
}

func TestParseTimeInvalidBCD(t *testing.T) {
	_, err := ParseTime(FamilySlate, []byte{0x26, 0x0a, 0x06, 0x13, 0x37, 0x42})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseTimeShortPayload(t *testing.T) {
	_, err := ParseTime(FamilySlate, []byte{0x26, 0x08})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseFirmware(t *testing.T) {
	first := []byte("SLA1\x00\x00")
	second := []byte("0043\x00\x00")
	assert.Equal(t, "SLA1-0043", ParseFirmware(first, second))
	assert.Equal(t, "SLA1", ParseFirmware(first, []byte{0, 0}))
}

func TestParseBattery(t *testing.T) {
	percent, charging, err := ParseBattery([]byte{0x48, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 72, percent)
	assert.True(t, charging)

	percent, charging, err = ParseBattery([]byte{0xff, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 100, percent)
	assert.False(t, charging)

	_, _, err = ParseBattery([]byte{0x48})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseDimension(t *testing.T) {
	v, err := ParseDimension([]byte{0x03, 0x00, 0x60, 0x54, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(21600), v)

	_, err = ParseDimension([]byte{0x03, 0x00})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseAvailableCount(t *testing.T) {
	// Spark reports big-endian, later families little-endian.
	n, err := ParseAvailableCount(FamilySpark, []byte{0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ParseAvailableCount(FamilySlate, []byte{0x02, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFamilyTags(t *testing.T) {
	for _, f := range []Family{FamilySpark, FamilySlate, FamilyIntuosPro} {
		parsed, err := ParseFamily(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
	_, err := ParseFamily("folio")
	assert.Error(t, err)
}
