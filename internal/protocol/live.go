package protocol

import (
	"context"
	"encoding/binary"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// Live pen notifications carry a report byte followed by packed
// 6-byte coordinate records: x u16, y u16, pressure u16, all LE. A
// record of six 0xff bytes marks the pen leaving the sensor.
const (
	liveProximity = 0xa2
	liveReport    = 0xa1
	livePressure  = 0x10
)

// LiveSink consumes decoded live pen events in arrival order.
type LiveSink interface {
	ProximityIn() error
	Frame(x, y, pressure uint16) error
	ProximityOut() error
}

// StartLive switches the device to streaming pen events and forwards
// each decoded event to sink until StopLive or disconnect. The device
// buffers no drawings while live.
func (s *Session) StartLive(ctx context.Context, sink LiveSink) error {
	if !s.family.LiveSupported() {
		return wire.Errorf(wire.KindNotReady, "%s does not stream live pen events", s.family)
	}
	pen, ok := s.profile.Characteristic(ble.LivePenCharUUID)
	if !ok {
		return ErrUnsupportedDevice
	}
	if err := pen.Subscribe(func(data []byte) {
		if err := s.forwardLive(data, sink); err != nil {
			s.log.Warn().Err(err).Msg("dropping live event")
		}
	}); err != nil {
		return err
	}
	if _, err := s.request(ctx, wire.OpMode, []byte{wire.ModeLive}); err != nil {
		if uerr := pen.Unsubscribe(); uerr != nil {
			s.log.Debug().Err(uerr).Msg("unsubscribing live channel")
		}
		return err
	}
	s.setState(StateBusy)
	s.log.Info().Msg("live mode started")
	return nil
}

// StopLive returns the device to buffering mode.
func (s *Session) StopLive(ctx context.Context) error {
	pen, ok := s.profile.Characteristic(ble.LivePenCharUUID)
	if !ok {
		return ErrUnsupportedDevice
	}
	if err := pen.Unsubscribe(); err != nil {
		s.log.Debug().Err(err).Msg("unsubscribing live channel")
	}
	if _, err := s.request(ctx, wire.OpMode, []byte{wire.ModeIdle}); err != nil {
		return err
	}
	s.setState(StateReady)
	s.log.Info().Msg("live mode stopped")
	return nil
}

func (s *Session) forwardLive(data []byte, sink LiveSink) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case liveProximity:
		return sink.ProximityIn()
	case liveReport, livePressure:
		for off := 1; off+6 <= len(data); off += 6 {
			rec := data[off : off+6]
			if isProximityOut(rec) {
				if err := sink.ProximityOut(); err != nil {
					return err
				}
				continue
			}
			x := binary.LittleEndian.Uint16(rec[0:2])
			y := binary.LittleEndian.Uint16(rec[2:4])
			pressure := binary.LittleEndian.Uint16(rec[4:6])
			if err := sink.Frame(x, y, pressure); err != nil {
				return err
			}
		}
		return nil
	}
	return wire.Errorf(wire.KindProtocol, "unknown live report 0x%02x", data[0])
}

func isProximityOut(rec []byte) bool {
	for _, b := range rec {
		if b != 0xff {
			return false
		}
	}
	return true
}
