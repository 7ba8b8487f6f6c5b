package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/tuhiproject/tuhi/internal/wire"
)

// Battery is one battery reading.
type Battery struct {
	Percent  int
	Charging bool
}

// DeviceInfo is the identity snapshot read after connecting. Width and
// height are the sensor dimensions as reported, pre-rotation.
type DeviceInfo struct {
	Name     string
	Firmware string
	Width    uint32
	Height   uint32
	Battery  Battery
}

// GetName reads the device name.
func (s *Session) GetName(ctx context.Context) (string, error) {
	resp, err := s.request(ctx, wire.OpName, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp.Payload), "\x00"), nil
}

// SetName renames the device. Intuos Pro firmware keeps its name
// read-only.
func (s *Session) SetName(ctx context.Context, name string) error {
	if !s.family.SetNameSupported() {
		return wire.Errorf(wire.KindNotReady, "%s does not support renaming", s.family)
	}
	_, err := s.request(ctx, wire.OpName, []byte(name))
	return err
}

// GetTime reads the device clock.
func (s *Session) GetTime(ctx context.Context) (time.Time, error) {
	resp, err := s.request(ctx, wire.OpTime, nil)
	if err != nil {
		return time.Time{}, err
	}
	return wire.ParseTime(s.family, resp.Payload)
}

// SetTime sets the device clock.
func (s *Session) SetTime(ctx context.Context, t time.Time) error {
	_, err := s.request(ctx, wire.OpTime, wire.MarshalTime(s.family, t))
	return err
}

// GetFirmware reads and joins the two firmware identifier halves.
func (s *Session) GetFirmware(ctx context.Context) (string, error) {
	first, err := s.request(ctx, wire.OpFirmware, []byte{0})
	if err != nil {
		return "", err
	}
	second, err := s.request(ctx, wire.OpFirmware, []byte{1})
	if err != nil {
		return "", err
	}
	return wire.ParseFirmware(first.Payload, second.Payload), nil
}

// GetBattery reads the battery state.
func (s *Session) GetBattery(ctx context.Context) (Battery, error) {
	resp, err := s.request(ctx, wire.OpBattery, nil)
	if err != nil {
		return Battery{}, err
	}
	percent, charging, err := wire.ParseBattery(resp.Payload)
	if err != nil {
		return Battery{}, err
	}
	b := Battery{Percent: percent, Charging: charging}
	s.mu.Lock()
	s.info.Battery = b
	s.mu.Unlock()
	return b, nil
}

// GetDimensions reads the sensor width and height.
func (s *Session) GetDimensions(ctx context.Context) (width, height uint32, err error) {
	w, err := s.request(ctx, wire.OpDimensions, []byte{wire.DimWidth, 0x00})
	if err != nil {
		return 0, 0, err
	}
	if width, err = wire.ParseDimension(w.Payload); err != nil {
		return 0, 0, err
	}
	h, err := s.request(ctx, wire.OpDimensions, []byte{wire.DimHeight, 0x00})
	if err != nil {
		return 0, 0, err
	}
	if height, err = wire.ParseDimension(h.Payload); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

// AvailableCount reads the number of drawings stored on the device.
func (s *Session) AvailableCount(ctx context.Context) (int, error) {
	resp, err := s.request(ctx, wire.OpAvailableCount, nil)
	if err != nil {
		return 0, err
	}
	return wire.ParseAvailableCount(s.family, resp.Payload)
}

// Reset asks the device to abandon any in-progress transfer.
func (s *Session) Reset(ctx context.Context) error {
	_, err := s.request(ctx, wire.OpReset, nil)
	return err
}

// ReadDeviceInfo runs the identity sequence and caches the result for
// later transfers.
func (s *Session) ReadDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	name, err := s.GetName(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	fw, err := s.GetFirmware(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	width, height, err := s.GetDimensions(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	battery, err := s.GetBattery(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	info := DeviceInfo{
		Name:     name,
		Firmware: fw,
		Width:    width,
		Height:   height,
		Battery:  battery,
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.log.Info().
		Str("name", name).
		Str("firmware", fw).
		Uint32("width", width).
		Uint32("height", height).
		Int("battery", battery.Percent).
		Msg("device identified")
	return info, nil
}

// Info returns the cached identity snapshot.
func (s *Session) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
