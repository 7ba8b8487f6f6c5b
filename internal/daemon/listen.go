package daemon

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/tuhiproject/tuhi/internal/protocol"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// StartListening connects to a registered device, pulls its stored
// drawings, and keeps pulling on every button press until stopped. A
// repeat call by the owning client is a no-op; a second client gets a
// directed refusal and the listen stays with its owner.
func (d *Daemon) StartListening(sender, address string) error {
	if _, ok := d.registry.Device(address); !ok {
		return wire.Errorf(wire.KindNotReady, "device %s is not registered", address)
	}

	d.mu.Lock()
	rt := d.runtimeLocked(address)
	if rt.listenOwner != "" {
		same := rt.listenOwner == sender
		bus := d.bus
		d.mu.Unlock()
		if same {
			return nil
		}
		if bus != nil {
			bus.EmitListeningStopped(address, -int32(unix.EAGAIN))
		}
		return wire.Errorf(wire.KindBusy, "device busy on behalf of another client")
	}
	if rt.liveOwner != "" {
		d.mu.Unlock()
		return wire.Errorf(wire.KindBusy, "device is in live mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt.listenOwner = sender
	rt.listenCancel = cancel
	d.mu.Unlock()

	d.publish(address)
	d.log.Info().Str("device", address).Str("client", sender).Msg("listening")
	go d.runListener(ctx, address)
	return nil
}

// StopListening ends the caller's listen.
func (d *Daemon) StopListening(sender, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rt, ok := d.devices[address]
	if !ok || rt.listenOwner == "" {
		return nil
	}
	if rt.listenOwner != sender {
		return wire.Errorf(wire.KindBusy, "listen owned by another client")
	}
	rt.listenCancel()
	return nil
}

func (d *Daemon) runListener(ctx context.Context, address string) {
	err := d.listen(ctx, address)
	status := int32(0)
	if err != nil && ctx.Err() == nil {
		status = statusOf(err)
		d.log.Warn().Err(err).Str("device", address).Msg("listen ended")
	}

	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.listenOwner = ""
	rt.listenCancel = nil
	bus := d.bus
	d.mu.Unlock()

	d.publish(address)
	if bus != nil {
		bus.EmitListeningStopped(address, status)
	}
}

func (d *Daemon) listen(ctx context.Context, address string) error {
	dev, _ := d.registry.Device(address)

	conn, err := d.adapter.Connect(ctx, address)
	if err != nil {
		return err
	}
	sess, err := protocol.Open(ctx, conn, dev.Name, d.log)
	if err != nil {
		conn.Disconnect()
		return err
	}
	defer sess.Close()

	if err := sess.Authenticate(ctx, dev.UUID); err != nil {
		return err
	}
	info, err := sess.ReadDeviceInfo(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.info = info
	rt.infoValid = true
	d.mu.Unlock()
	d.publish(address)

	if err := d.drain(ctx, address, sess); err != nil {
		return err
	}

	press := make(chan struct{}, 1)
	if err := sess.SubscribeButton(func() {
		select {
		case press <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}
	defer func() {
		if err := sess.UnsubscribeButton(); err != nil {
			d.log.Debug().Err(err).Msg("unsubscribing button channel")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Disconnected():
			return wire.Errorf(wire.KindTransportLost, "link to %s dropped", address)
		case <-press:
			d.log.Debug().Str("device", address).Msg("button press, pulling drawings")
			if err := d.drain(ctx, address, sess); err != nil {
				return err
			}
		}
	}
}

// drain fetches stored drawings until the device reports none left,
// caching each one and republishing the device state. The sync signal
// brackets the transfer.
func (d *Daemon) drain(ctx context.Context, address string, sess *protocol.Session) error {
	d.mu.Lock()
	bus := d.bus
	d.mu.Unlock()
	if bus != nil {
		bus.EmitSyncState(address, 1)
		defer bus.EmitSyncState(address, 0)
	}

	if _, err := sess.GetBattery(ctx); err != nil {
		return err
	}
	d.refreshBattery(address, sess)

	for {
		dr, err := sess.FetchDrawing(ctx, uuid.NewString())
		if err != nil {
			if errors.Is(err, protocol.ErrNoDrawings) {
				return nil
			}
			return err
		}
		if err := d.registry.AddDrawing(address, dr); err != nil {
			return err
		}
		d.publish(address)
	}
}

func (d *Daemon) refreshBattery(address string, sess *protocol.Session) {
	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.info = sess.Info()
	rt.infoValid = true
	d.mu.Unlock()
	d.publish(address)
}
