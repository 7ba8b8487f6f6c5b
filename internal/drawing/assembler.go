package drawing

import (
	"github.com/tuhiproject/tuhi/internal/wire"
)

// Assembler folds decoded pen records into one Drawing. It applies
// deltas against the running context, clamps pressure, rotates
// coordinates for families whose sensor origin sits at the physical
// top-right, and drops empty strokes produced by repeated delimiters.
type Assembler struct {
	family     wire.Family
	deviceName string
	sessionID  string
	width      uint32
	height     uint32
	timestamp  uint64

	strokes []Stroke
	cur     []Point

	toffset  uint32
	x, y     int32
	pressure int32

	complete bool
}

// NewAssembler starts a drawing tagged with the session base
// timestamp from the fetch preamble. Width and height are the sensor
// dimensions as the device reports them, pre-rotation.
func NewAssembler(family wire.Family, deviceName, sessionID string, width, height uint32, timestamp uint64) *Assembler {
	return &Assembler{
		family:     family,
		deviceName: deviceName,
		sessionID:  sessionID,
		width:      width,
		height:     height,
		timestamp:  timestamp,
	}
}

// Feed consumes one record from the pen decoder.
func (a *Assembler) Feed(rec wire.Record) error {
	if a.complete {
		return wire.Errorf(wire.KindProtocol, "record after end of drawing")
	}
	switch rec.Kind {
	case wire.RecordStrokeEnd:
		a.closeStroke()
	case wire.RecordPoint:
		a.feedPoint(rec.Point)
	case wire.RecordEnd:
		a.closeStroke()
		a.complete = true
	}
	return nil
}

func (a *Assembler) closeStroke() {
	if len(a.cur) > 0 {
		a.strokes = append(a.strokes, Stroke{Points: a.cur})
		a.cur = nil
	}
}

func (a *Assembler) feedPoint(p wire.PointRecord) {
	var out Point
	if p.HasTime {
		if p.Delta {
			a.toffset = uint32(int64(a.toffset) + int64(p.Time))
		} else {
			a.toffset = uint32(p.Time)
		}
		out.Toffset = u32(a.toffset)
	}
	if p.HasPos {
		if p.Delta {
			a.x += p.X
			a.y += p.Y
		} else {
			a.x, a.y = p.X, p.Y
		}
		out.Position = pos(a.canonical(a.x, a.y))
	}
	if p.HasPressure {
		if p.Delta {
			a.pressure += p.Pressure
		} else {
			a.pressure = p.Pressure
		}
		out.Pressure = u32(clampPressure(a.pressure))
	}
	a.cur = append(a.cur, out)
}

// canonical maps sensor coordinates to a top-left origin. Rotated
// families report x along the long edge with (0,0) at the
// sensor's top-right.
func (a *Assembler) canonical(x, y int32) (uint32, uint32) {
	if !a.family.Rotated() {
		return clampAxis(x), clampAxis(y)
	}
	return clampAxis(y), clampAxis(int32(a.width) - x)
}

// Dimensions returns the canonical drawing dimensions, swapped for
// rotated families.
func (a *Assembler) Dimensions() (uint32, uint32) {
	if a.family.Rotated() {
		return a.height, a.width
	}
	return a.width, a.height
}

// Complete reports whether the end record has been consumed.
func (a *Assembler) Complete() bool {
	return a.complete
}

// Drawing returns the assembled drawing. It is only valid after the
// end record.
func (a *Assembler) Drawing() (*Drawing, error) {
	if !a.complete {
		return nil, wire.Errorf(wire.KindProtocol, "drawing not complete")
	}
	w, h := a.Dimensions()
	strokes := a.strokes
	if strokes == nil {
		strokes = []Stroke{}
	}
	return &Drawing{
		Version:    JSONVersion,
		DeviceName: a.deviceName,
		SessionID:  a.sessionID,
		Dimensions: [2]uint32{w, h},
		Timestamp:  a.timestamp,
		Strokes:    strokes,
	}, nil
}

func clampPressure(v int32) uint32 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint32(v)
}

func clampAxis(v int32) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
