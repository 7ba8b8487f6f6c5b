package wire

import (
	"encoding/binary"
	"strings"
	"time"
)

// Spark and Slate keep their clock as six BCD bytes, yymmddHHMMSS.
// Intuos Pro uses a 4-byte little-endian unix timestamp padded to six.

func toBCD(v int) byte {
	return byte(v/10<<4 | v%10)
}

func fromBCD(b byte) (int, bool) {
	hi, lo := int(b>>4), int(b&0x0f)
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}

// MarshalTime encodes t as the family's SetTime payload.
func MarshalTime(f Family, t time.Time) []byte {
	if f == FamilyIntuosPro {
		buf := make([]byte, 6)
		binary.LittleEndian.PutUint32(buf, uint32(t.Unix()))
		return buf
	}
	t = t.UTC()
	return []byte{
		toBCD(t.Year() % 100),
		toBCD(int(t.Month())),
		toBCD(t.Day()),
		toBCD(t.Hour()),
		toBCD(t.Minute()),
		toBCD(t.Second()),
	}
}

// ParseTime decodes a GetTime reply payload.
func ParseTime(f Family, payload []byte) (time.Time, error) {
	if len(payload) < 6 {
		return time.Time{}, Errorf(KindProtocol, "time payload too short (%d bytes)", len(payload))
	}
	if f == FamilyIntuosPro {
		secs := binary.LittleEndian.Uint32(payload[:4])
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	var v [6]int
	for i := range 6 {
		d, ok := fromBCD(payload[i])
		if !ok {
			return time.Time{}, Errorf(KindProtocol, "invalid BCD byte 0x%02x in time payload", payload[i])
		}
		v[i] = d
	}
	return time.Date(2000+v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC), nil
}

// ParseFirmware joins the two halves of the firmware identifier. Both
// halves arrive as printable ASCII padded with zero bytes.
func ParseFirmware(first, second []byte) string {
	a := strings.TrimRight(string(first), "\x00")
	b := strings.TrimRight(string(second), "\x00")
	if b == "" {
		return a
	}
	return a + "-" + b
}

// ParseBattery decodes a GetBattery reply as (percent, charging).
func ParseBattery(payload []byte) (int, bool, error) {
	if len(payload) < 2 {
		return 0, false, Errorf(KindProtocol, "battery payload too short (%d bytes)", len(payload))
	}
	percent := int(payload[0])
	if percent > 100 {
		percent = 100
	}
	return percent, payload[1] != 0, nil
}

// ParseDimension extracts one axis from a GetDimensions reply. The
// value sits at bytes 2..3 of the 6-byte payload, little-endian.
func ParseDimension(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, Errorf(KindProtocol, "dimension payload too short (%d bytes)", len(payload))
	}
	return uint32(binary.LittleEndian.Uint16(payload[2:4])), nil
}

// ParseAvailableCount decodes the number of stored drawings. Spark
// reports big-endian, later families little-endian.
func ParseAvailableCount(f Family, payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, Errorf(KindProtocol, "count payload too short (%d bytes)", len(payload))
	}
	if f == FamilySpark {
		return int(binary.BigEndian.Uint16(payload[:2])), nil
	}
	return int(binary.LittleEndian.Uint16(payload[:2])), nil
}
