package protocol

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/wire"
)

const (
	defaultRequestTimeout = 5 * time.Second

	// buttonPressTimeout bounds the wait for the user to confirm a
	// registration on the tablet.
	buttonPressTimeout = 10 * time.Second
)

// ErrUnsupportedDevice means the peripheral lacks the vendor services.
var ErrUnsupportedDevice = wire.Errorf(wire.KindProtocol, "device does not expose the SmartPad services")

// ErrNoDrawings means the tablet holds no stored drawings.
var ErrNoDrawings = wire.Errorf(wire.KindNotReady, "no drawings stored on device")

// State is the session's position in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateServicesResolved
	StateAuthPending
	StateReady
	StateBusy
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateServicesResolved:
		return "services-resolved"
	case StateAuthPending:
		return "auth-pending"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

// Session drives the command protocol over one established link. All
// commands serialize: one request is in flight at a time, and replies
// match commands FIFO.
type Session struct {
	conn    ble.Connection
	profile ble.Profile
	family  wire.Family
	log     zerolog.Logger

	write  ble.Characteristic
	notify ble.Characteristic

	cmdMu sync.Mutex // one in-flight command

	mu        sync.Mutex
	state     State
	stream    *penStream
	reasm     wire.Reassembler
	info      DeviceInfo
	responses chan wire.Response

	timeout time.Duration
}

// DetectFamily classifies a resolved device. The sysevent service is
// absent on Spark hardware; Slate and Intuos Pro both carry it and are
// told apart by the advertised name.
func DetectFamily(name string, p ble.Profile) wire.Family {
	if !p.HasService(ble.SyseventServiceUUID) {
		return wire.FamilySpark
	}
	if strings.Contains(name, "Intuos") {
		return wire.FamilyIntuosPro
	}
	return wire.FamilySlate
}

// Open resolves the vendor services on an established connection and
// subscribes to the command channel. The session starts unauthenticated.
func Open(ctx context.Context, conn ble.Connection, name string, log zerolog.Logger) (*Session, error) {
	profile, err := conn.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if !profile.HasService(ble.UARTServiceUUID) {
		return nil, ErrUnsupportedDevice
	}
	write, ok := profile.Characteristic(ble.UARTWriteCharUUID)
	if !ok {
		return nil, ErrUnsupportedDevice
	}
	notify, ok := profile.Characteristic(ble.UARTNotifyCharUUID)
	if !ok {
		return nil, ErrUnsupportedDevice
	}

	s := &Session{
		conn:      conn,
		profile:   profile,
		family:    DetectFamily(name, profile),
		log:       log.With().Str("component", "session").Logger(),
		write:     write,
		notify:    notify,
		state:     StateServicesResolved,
		responses: make(chan wire.Response, 4),
		timeout:   defaultRequestTimeout,
	}
	s.log.Debug().Stringer("family", s.family).Msg("services resolved")
	if err := notify.Subscribe(s.onNotify); err != nil {
		return nil, err
	}
	return s, nil
}

// Family returns the detected protocol dialect.
func (s *Session) Family() wire.Family {
	return s.family
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug().Stringer("from", prev).Stringer("to", st).Msg("state change")
	}
}

// Close drains the link and disconnects.
func (s *Session) Close() error {
	s.setState(StateDraining)
	if err := s.notify.Unsubscribe(); err != nil {
		s.log.Debug().Err(err).Msg("unsubscribe on close")
	}
	err := s.conn.Disconnect()
	s.setState(StateDisconnected)
	return err
}

// onNotify routes each notification either to the pen stream of an
// active transfer or through the frame reassembler to the waiting
// request. It runs on the transport's delivery goroutine, so records
// are consumed strictly in arrival order.
func (s *Session) onNotify(data []byte) {
	s.mu.Lock()
	st := s.stream
	if st != nil && !st.awaitingAck {
		s.mu.Unlock()
		st.push(data)
		return
	}

	resps, err := s.reasm.Push(data)
	if err != nil {
		s.reasm.Reset()
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("discarding malformed frame")
		return
	}
	for _, r := range resps {
		// The mode ack is the last framed reply before bulk pen
		// data. Flipping here, on the delivery goroutine, guarantees
		// the next notification hits the decoder.
		if st != nil && r.Opcode == wire.OpMode {
			st.awaitingAck = false
		}
	}
	s.mu.Unlock()

	for _, r := range resps {
		select {
		case s.responses <- r:
		default:
			s.log.Warn().Hex("opcode", []byte{r.Opcode}).Msg("dropping unsolicited reply")
		}
	}
}

// request writes one command and waits for its reply. A reply whose
// opcode does not echo the command is a protocol error.
func (s *Session) request(ctx context.Context, opcode byte, payload []byte) (wire.Response, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	// Stale replies from an aborted predecessor must not satisfy this
	// command.
	for {
		select {
		case <-s.responses:
			continue
		default:
		}
		break
	}
	s.mu.Lock()
	s.reasm.Reset()
	s.mu.Unlock()

	data, err := wire.Command{Opcode: opcode, Payload: payload}.Marshal()
	if err != nil {
		return wire.Response{}, err
	}
	if err := s.write.Write(ctx, data); err != nil {
		return wire.Response{}, err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-s.responses:
		if resp.Opcode != opcode {
			return wire.Response{}, wire.Errorf(wire.KindProtocol,
				"reply opcode 0x%02x does not match command 0x%02x", resp.Opcode, opcode)
		}
		return resp, resp.Err()
	case <-timer.C:
		return wire.Response{}, wire.Errorf(wire.KindTimeout, "no reply to opcode 0x%02x", opcode)
	case <-ctx.Done():
		return wire.Response{}, ctx.Err()
	case <-s.conn.Disconnected():
		s.setState(StateDisconnected)
		return wire.Response{}, wire.Errorf(wire.KindTransportLost, "link dropped awaiting opcode 0x%02x", opcode)
	}
}
