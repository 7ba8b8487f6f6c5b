package wire

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies protocol-level failures. Each kind maps to the POSIX
// errno that the RPC surface reports to clients.
type Kind int

const (
	KindBusy Kind = iota + 1
	KindNotReady
	KindNotAuthorized
	KindProtocol
	KindTimeout
	KindTransportLost
)

func (k Kind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindNotReady:
		return "not ready"
	case KindNotAuthorized:
		return "not authorized"
	case KindProtocol:
		return "protocol error"
	case KindTimeout:
		return "timeout"
	case KindTransportLost:
		return "transport lost"
	}
	return "unknown"
}

// Errno returns the errno for this kind.
func (k Kind) Errno() unix.Errno {
	switch k {
	case KindBusy:
		return unix.EAGAIN
	case KindNotReady:
		return unix.EBADE
	case KindNotAuthorized:
		return unix.EACCES
	case KindProtocol:
		return unix.EPROTO
	case KindTimeout:
		return unix.ETIME
	case KindTransportLost:
		return unix.ENODEV
	}
	return unix.EIO
}

// Error is a classified protocol error.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.msg
}

// Is matches any error of the same kind, so wrapped errors compare
// against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrBusy          = &Error{Kind: KindBusy}
	ErrNotReady      = &Error{Kind: KindNotReady}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrTransportLost = &Error{Kind: KindTransportLost}
)

// StatusError maps a non-zero response status byte to an error.
func StatusError(opcode, status byte) error {
	switch status {
	case StatusSuccess:
		return nil
	case StatusBusy:
		return Errorf(KindBusy, "opcode 0x%02x: device busy", opcode)
	case StatusNotAuthorized:
		return Errorf(KindNotAuthorized, "opcode 0x%02x: not authorized", opcode)
	case StatusNotReady:
		return Errorf(KindNotReady, "opcode 0x%02x: wrong mode", opcode)
	case StatusProtocolError:
		return Errorf(KindProtocol, "opcode 0x%02x: rejected by device", opcode)
	}
	return Errorf(KindProtocol, "opcode 0x%02x: unknown status 0x%02x", opcode, status)
}
