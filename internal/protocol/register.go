package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// Authenticate proves a stored registration to the tablet. A
// NotAuthorized error means the uuid is unknown to this device and the
// caller must re-register.
func (s *Session) Authenticate(ctx context.Context, uuid [16]byte) error {
	s.setState(StateAuthPending)
	_, err := s.request(ctx, wire.OpCheckConnection, uuid[:])
	if err != nil {
		if errors.Is(err, wire.ErrNotAuthorized) {
			s.setState(StateServicesResolved)
		}
		return err
	}
	s.setState(StateReady)
	return nil
}

// Register pairs with a tablet held in registration mode. The device
// accepts the uuid, then waits for the user to confirm with the
// hardware button; the confirmation arrives on the button
// characteristic. prompt, if non-nil, runs once the device has
// accepted the uuid and the button wait begins. A device not in
// registration mode rejects the write with a wrong-mode status.
func (s *Session) Register(ctx context.Context, uuid [16]byte, prompt func()) error {
	s.setState(StateAuthPending)

	press := make(chan struct{}, 1)
	button, ok := s.profile.Characteristic(ble.OfflineButtonCharUUID)
	if !ok {
		s.setState(StateServicesResolved)
		return ErrUnsupportedDevice
	}
	if err := button.Subscribe(func([]byte) {
		select {
		case press <- struct{}{}:
		default:
		}
	}); err != nil {
		s.setState(StateServicesResolved)
		return err
	}
	defer func() {
		if err := button.Unsubscribe(); err != nil {
			s.log.Debug().Err(err).Msg("unsubscribing button channel")
		}
	}()

	if _, err := s.request(ctx, wire.OpRegister, uuid[:]); err != nil {
		s.setState(StateServicesResolved)
		return err
	}
	s.log.Info().Msg("registration accepted, waiting for button press")
	if prompt != nil {
		prompt()
	}

	timer := time.NewTimer(buttonPressTimeout)
	defer timer.Stop()
	select {
	case <-press:
	case <-timer.C:
		s.setState(StateServicesResolved)
		return wire.Errorf(wire.KindTimeout, "no button press within %s", buttonPressTimeout)
	case <-ctx.Done():
		s.setState(StateServicesResolved)
		return ctx.Err()
	case <-s.conn.Disconnected():
		s.setState(StateDisconnected)
		return wire.Errorf(wire.KindTransportLost, "link dropped awaiting button press")
	}

	s.setState(StateReady)
	s.log.Info().Msg("registration confirmed")
	return nil
}
