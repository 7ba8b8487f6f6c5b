package uhid

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Kernel uhid event types.
const (
	eventDestroy = 1
	eventCreate2 = 11
	eventInput2  = 12
)

// The virtual pen identifies as a Wacom tablet on the Bluetooth bus.
const (
	busBluetooth = 0x05
	vendorWacom  = 0x056a
	productPen   = 0x0001
)

// struct uhid_event layout: a 4-byte type followed by the union. The
// kernel expects one write per event with the union padded to its full
// size.
const (
	create2Size = 4 + 128 + 64 + 64 + 2 + 2 + 4 + 4 + 4 + 4 + 4096
	input2Size  = 4 + 2 + 4096
)

// Device is a virtual pen device backed by a uhid file descriptor.
// Each live pen event becomes one input report:
//
//	[report id 1][in-range][x u16][y u16][pressure u16]
type Device struct {
	fd  int
	log zerolog.Logger

	inRange bool
	x, y    uint16
}

// NewDevice creates the kernel device on fd. Width and height bound
// the coordinate axes of the report descriptor.
func NewDevice(fd int, name string, width, height uint32, log zerolog.Logger) (*Device, error) {
	d := &Device{fd: fd, log: log.With().Str("component", "uhid").Logger()}
	if err := d.create(name, width, height); err != nil {
		return nil, err
	}
	d.log.Info().Str("name", name).Msg("virtual pen created")
	return d, nil
}

func (d *Device) create(name string, width, height uint32) error {
	rdesc := reportDescriptor(width, height)
	buf := make([]byte, create2Size)
	binary.LittleEndian.PutUint32(buf[0:4], eventCreate2)
	copy(buf[4:4+128], name)
	// phys and uniq stay empty
	binary.LittleEndian.PutUint16(buf[260:262], uint16(len(rdesc)))
	binary.LittleEndian.PutUint16(buf[262:264], busBluetooth)
	binary.LittleEndian.PutUint32(buf[264:268], vendorWacom)
	binary.LittleEndian.PutUint32(buf[268:272], productPen)
	copy(buf[280:], rdesc)
	return d.write(buf)
}

// Close destroys the kernel device. The fd itself belongs to the
// caller.
func (d *Device) Close() error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, eventDestroy)
	return d.write(buf)
}

// ProximityIn reports the pen entering sensor range.
func (d *Device) ProximityIn() error {
	d.inRange = true
	return d.report(0)
}

// Frame reports one pen coordinate sample.
func (d *Device) Frame(x, y, pressure uint16) error {
	d.inRange = true
	d.x, d.y = x, y
	return d.report(pressure)
}

// ProximityOut reports the pen leaving sensor range.
func (d *Device) ProximityOut() error {
	d.inRange = false
	return d.report(0)
}

func (d *Device) report(pressure uint16) error {
	report := make([]byte, 8)
	report[0] = 0x01
	if d.inRange {
		report[1] = 0x01
	}
	binary.LittleEndian.PutUint16(report[2:4], d.x)
	binary.LittleEndian.PutUint16(report[4:6], d.y)
	binary.LittleEndian.PutUint16(report[6:8], pressure)

	buf := make([]byte, input2Size)
	binary.LittleEndian.PutUint32(buf[0:4], eventInput2)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(report)))
	copy(buf[6:], report)
	return d.write(buf)
}

func (d *Device) write(buf []byte) error {
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return fmt.Errorf("writing uhid event: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("short uhid write: %d of %d bytes", n, len(buf))
	}
	return nil
}

// reportDescriptor builds a pen descriptor with one 8-byte input
// report: in-range bit, 7 pad bits, then x, y and pressure as 16-bit
// absolute axes bounded by the sensor dimensions.
func reportDescriptor(width, height uint32) []byte {
	var rd []byte
	logicalMax := func(v uint32) {
		rd = append(rd, 0x27, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}

	rd = append(rd,
		0x05, 0x0d, // usage page: digitizers
		0x09, 0x02, // usage: pen
		0xa1, 0x01, // collection: application
		0x85, 0x01, // report id 1
		0x09, 0x20, // usage: stylus
		0xa1, 0x00, // collection: physical
		0x09, 0x32, // usage: in range
		0x15, 0x00, // logical min 0
		0x25, 0x01, // logical max 1
		0x75, 0x01, // report size 1
		0x95, 0x01, // report count 1
		0x81, 0x02, // input: data, variable, absolute
		0x95, 0x07, // report count 7
		0x81, 0x03, // input: constant (padding)
		0x75, 0x10, // report size 16
		0x95, 0x01, // report count 1
		0x05, 0x01, // usage page: generic desktop
		0x09, 0x30, // usage: x
	)
	logicalMax(width)
	rd = append(rd,
		0x81, 0x02,
		0x09, 0x31, // usage: y
	)
	logicalMax(height)
	rd = append(rd,
		0x81, 0x02,
		0x05, 0x0d, // usage page: digitizers
		0x09, 0x30, // usage: tip pressure
	)
	logicalMax(65535)
	rd = append(rd,
		0x81, 0x02,
		0xc0, // end collection
		0xc0, // end collection
	)
	return rd
}
