package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/drawing"
	"github.com/tuhiproject/tuhi/internal/protocol"
	"github.com/tuhiproject/tuhi/internal/registry"
	"github.com/tuhiproject/tuhi/internal/rpc"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// Battery states published on the bus.
const (
	batteryUnknown     = 0
	batteryCharging    = 1
	batteryDischarging = 2
)

// Bus is the daemon's view of the RPC surface.
type Bus interface {
	AddDevice(rpc.DeviceState) error
	RemoveDevice(address string)
	UpdateDevice(rpc.DeviceState)
	SetSearching(on bool)
	EmitUnregisteredDevice(address string)
	EmitSearchStopped(status int32)
	EmitButtonPressRequired(address string)
	EmitListeningStopped(address string, status int32)
	EmitLiveStopped(address string, status int32)
	EmitSyncState(address string, state int32)
}

// deviceRuntime is the volatile per-device state next to the persisted
// registration: the last identity read off the link and the listen and
// live ownership.
type deviceRuntime struct {
	info      protocol.DeviceInfo
	infoValid bool

	listenOwner  string
	listenCancel context.CancelFunc

	liveOwner  string
	liveCancel context.CancelFunc
}

// Daemon owns the registry, the transport adapter and all device
// sessions. It implements the RPC backend: every bus method lands
// here, and every state change flows back out through Bus.
type Daemon struct {
	adapter  ble.Adapter
	registry *registry.Registry
	log      zerolog.Logger

	mu         sync.Mutex
	bus        Bus
	search     *searchRun
	discovered map[string]ble.Advertisement
	devices    map[string]*deviceRuntime
}

// New builds a daemon over a loaded registry.
func New(adapter ble.Adapter, reg *registry.Registry, log zerolog.Logger) *Daemon {
	return &Daemon{
		adapter:    adapter,
		registry:   reg,
		log:        log.With().Str("component", "daemon").Logger(),
		discovered: make(map[string]ble.Advertisement),
		devices:    make(map[string]*deviceRuntime),
	}
}

// AttachBus connects the RPC surface and exports every registered
// device from the registry snapshot.
func (d *Daemon) AttachBus(bus Bus) error {
	d.mu.Lock()
	d.bus = bus
	d.mu.Unlock()
	for _, dev := range d.registry.Devices() {
		if err := bus.AddDevice(d.stateFor(dev.Address)); err != nil {
			return err
		}
	}
	return nil
}

// Run serves the bus until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	svc, err := rpc.Listen(d, d.log)
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := d.AttachBus(svc); err != nil {
		return err
	}
	d.log.Info().Int("devices", len(d.registry.Devices())).Msg("daemon up")
	<-ctx.Done()
	d.shutdown()
	return nil
}

// shutdown cancels every running search, listen and live session.
func (d *Daemon) shutdown() {
	d.mu.Lock()
	if d.search != nil {
		d.search.cancel()
	}
	for _, rt := range d.devices {
		if rt.listenCancel != nil {
			rt.listenCancel()
		}
		if rt.liveCancel != nil {
			rt.liveCancel()
		}
	}
	d.mu.Unlock()
}

// ClientGone undoes everything the departed bus client owned.
func (d *Daemon) ClientGone(sender string) {
	d.mu.Lock()
	if d.search != nil && d.search.owner == sender {
		d.search.cancel()
	}
	for address, rt := range d.devices {
		if rt.listenOwner == sender && rt.listenCancel != nil {
			d.log.Info().Str("device", address).Str("client", sender).Msg("stopping orphaned listen")
			rt.listenCancel()
		}
		if rt.liveOwner == sender && rt.liveCancel != nil {
			d.log.Info().Str("device", address).Str("client", sender).Msg("stopping orphaned live mode")
			rt.liveCancel()
		}
	}
	d.mu.Unlock()
}

// GetJSONData serializes one cached drawing.
func (d *Daemon) GetJSONData(address string, version uint32, timestamp uint64) (string, error) {
	if version != drawing.JSONVersion {
		return "", wire.Errorf(wire.KindProtocol, "unsupported file version %d", version)
	}
	dr, err := d.registry.Drawing(address, timestamp)
	if err != nil {
		return "", err
	}
	data, err := dr.ToJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// runtimeLocked returns the volatile state of a device, creating it on first
// use.
func (d *Daemon) runtimeLocked(address string) *deviceRuntime {
	rt, ok := d.devices[address]
	if !ok {
		rt = &deviceRuntime{}
		d.devices[address] = rt
	}
	return rt
}

// stateFor assembles the published snapshot of one device.
func (d *Daemon) stateFor(address string) rpc.DeviceState {
	state := rpc.DeviceState{Address: address}

	if dev, ok := d.registry.Device(address); ok {
		state.Name = dev.Name
		if timestamps, err := d.registry.Drawings(address); err == nil {
			state.DrawingsAvailable = timestamps
		}
		d.mu.Lock()
		if rt, ok := d.devices[address]; ok {
			if rt.infoValid {
				state.Dimensions = canonicalDims(dev.Family, rt.info.Width, rt.info.Height)
				state.BatteryPercent = uint32(rt.info.Battery.Percent)
				if rt.info.Battery.Charging {
					state.BatteryState = batteryCharging
				} else {
					state.BatteryState = batteryDischarging
				}
			}
			state.Listening = rt.listenOwner != ""
			state.Live = rt.liveOwner != ""
		}
		d.mu.Unlock()
		return state
	}

	d.mu.Lock()
	if adv, ok := d.discovered[address]; ok {
		state.Name = adv.Name
	}
	d.mu.Unlock()
	return state
}

// publish pushes a fresh snapshot of one device to the bus.
func (d *Daemon) publish(address string) {
	d.mu.Lock()
	bus := d.bus
	d.mu.Unlock()
	if bus != nil {
		bus.UpdateDevice(d.stateFor(address))
	}
}

// canonicalDims orients the sensor dimensions the way drawings are
// reported. Spark and Slate sensors are rotated a quarter turn.
func canonicalDims(family wire.Family, width, height uint32) [2]uint32 {
	if family.Rotated() {
		return [2]uint32{height, width}
	}
	return [2]uint32{width, height}
}

// statusOf folds an error into the signal status convention, 0 or
// negative errno.
func statusOf(err error) int32 {
	if err == nil {
		return 0
	}
	var werr *wire.Error
	if errors.As(err, &werr) {
		return -int32(werr.Kind.Errno())
	}
	return -int32(unix.EIO)
}
