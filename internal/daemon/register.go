package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tuhiproject/tuhi/internal/protocol"
	"github.com/tuhiproject/tuhi/internal/registry"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// registerTimeout bounds the whole registration exchange, including
// the wait for the hardware button.
const registerTimeout = 30 * time.Second

// Register pairs a device seen during search. A fresh uuid is written
// to the device, confirmed by the user on the hardware button, and
// persisted; the device identity is read and published before the
// link drops.
func (d *Daemon) Register(address string) error {
	d.mu.Lock()
	adv, found := d.discovered[address]
	d.mu.Unlock()
	name := adv.Name
	if !found {
		dev, registered := d.registry.Device(address)
		if !registered {
			return wire.Errorf(wire.KindNotReady, "device %s was not seen in registration mode", address)
		}
		name = dev.Name
	}

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	conn, err := d.adapter.Connect(ctx, address)
	if err != nil {
		return err
	}
	sess, err := protocol.Open(ctx, conn, name, d.log)
	if err != nil {
		conn.Disconnect()
		return err
	}
	defer sess.Close()

	id := [16]byte(uuid.New())
	err = sess.Register(ctx, id, func() {
		d.mu.Lock()
		bus := d.bus
		d.mu.Unlock()
		if bus != nil {
			bus.EmitButtonPressRequired(address)
		}
	})
	if err != nil {
		return err
	}

	if err := sess.SetTime(ctx, time.Now()); err != nil {
		return err
	}
	info, err := sess.ReadDeviceInfo(ctx)
	if err != nil {
		return err
	}
	if info.Name != "" {
		name = info.Name
	}

	if err := d.registry.Register(registry.Device{
		Address: address,
		Name:    name,
		Family:  sess.Family(),
		UUID:    id,
	}); err != nil {
		return err
	}

	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.info = info
	rt.infoValid = true
	delete(d.discovered, address)
	bus := d.bus
	d.mu.Unlock()

	if bus != nil {
		if err := bus.AddDevice(d.stateFor(address)); err != nil {
			d.log.Warn().Err(err).Str("device", address).Msg("exporting registered device")
		}
	}
	d.log.Info().Str("device", address).Str("name", name).Msg("device registered")
	return nil
}
