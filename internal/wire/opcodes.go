package wire

import "fmt"

// Family identifies a SmartPad protocol dialect.
type Family int

const (
	FamilySpark Family = iota
	FamilySlate
	FamilyIntuosPro
)

func (f Family) String() string {
	switch f {
	case FamilySpark:
		return "spark"
	case FamilySlate:
		return "slate"
	case FamilyIntuosPro:
		return "intuos_pro"
	}
	return "unknown"
}

// ParseFamily converts the persisted family tag back to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "spark":
		return FamilySpark, nil
	case "slate":
		return FamilySlate, nil
	case "intuos_pro":
		return FamilyIntuosPro, nil
	}
	return 0, fmt.Errorf("unknown family %q", s)
}

// Rotated reports whether the sensor origin is rotated 90 degrees
// clockwise relative to the canonical top-left origin.
func (f Family) Rotated() bool {
	return f == FamilySpark || f == FamilySlate
}

// CRCChecked reports whether the end-of-drawing frame carries a CRC
// that must be verified. Spark firmware reports none.
func (f Family) CRCChecked() bool {
	return f != FamilySpark
}

// LiveSupported reports whether the family streams live pen events.
func (f Family) LiveSupported() bool {
	return f == FamilyIntuosPro
}

// SetNameSupported reports whether the device name is writable.
func (f Family) SetNameSupported() bool {
	return f != FamilyIntuosPro
}

// Command opcodes. Get/Set pairs share an opcode and are distinguished
// by the presence of a payload.
const (
	OpName            = 0xbb
	OpTime            = 0xb6
	OpFirmware        = 0xb7
	OpBattery         = 0xb9
	OpDimensions      = 0xea
	OpRegister        = 0xe7
	OpCheckConnection = 0xe6
	OpMode            = 0xb1
	OpAckData         = 0xca
	OpEndOfDrawing    = 0xc8
	OpReset           = 0xb0
	OpAvailableCount  = 0xc1
	OpFetchInfo       = 0xcc
)

// Response status bytes.
const (
	StatusSuccess       = 0x00
	StatusBusy          = 0x01
	StatusNotAuthorized = 0x02
	StatusNotReady      = 0x03
	StatusProtocolError = 0x07
)

// Mode bytes for OpMode.
const (
	ModeLive  = 0x00
	ModePaper = 0x01
	ModeIdle  = 0x02
)

// Dimension query arguments for OpDimensions.
const (
	DimWidth  = 0x03
	DimHeight = 0x04
)

// Pen record type bytes on the bulk channel.
const (
	recStrokeEnd  = 0xff
	recAbsolute   = 0xfa
	recPartialAbs = 0xfb
)
