package wire

// Command framing is [opcode:1][length:1][payload:length], responses
// are [opcode:1][status:1][length:1][payload:length]. Multibyte fields
// inside payloads are little-endian unsigned.

// MaxPayload is the largest payload a single frame can carry.
const MaxPayload = 255

// Command is a host-to-tablet frame.
type Command struct {
	Opcode  byte
	Payload []byte
}

// Marshal encodes the command frame.
func (c Command) Marshal() ([]byte, error) {
	if len(c.Payload) > MaxPayload {
		return nil, Errorf(KindProtocol, "opcode 0x%02x: payload too long (%d)", c.Opcode, len(c.Payload))
	}
	buf := make([]byte, 2+len(c.Payload))
	buf[0] = c.Opcode
	buf[1] = byte(len(c.Payload))
	copy(buf[2:], c.Payload)
	return buf, nil
}

// Response is a tablet-to-host frame.
type Response struct {
	Opcode  byte
	Status  byte
	Payload []byte
}

// Err returns nil for a success status, a classified error otherwise.
func (r Response) Err() error {
	return StatusError(r.Opcode, r.Status)
}

// Reassembler accumulates notification chunks (typically 20 bytes on
// the wire) and yields complete response frames. Frames never span
// requests: the session resets the reassembler between commands.
type Reassembler struct {
	buf []byte
}

// Reset discards any partial frame.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}

// Push appends a chunk and returns all frames completed by it.
func (r *Reassembler) Push(chunk []byte) ([]Response, error) {
	r.buf = append(r.buf, chunk...)
	var out []Response
	for {
		if len(r.buf) < 3 {
			return out, nil
		}
		need := 3 + int(r.buf[2])
		if len(r.buf) < need {
			return out, nil
		}
		payload := make([]byte, r.buf[2])
		copy(payload, r.buf[3:need])
		out = append(out, Response{
			Opcode:  r.buf[0],
			Status:  r.buf[1],
			Payload: payload,
		})
		r.buf = append(r.buf[:0], r.buf[need:]...)
	}
}
