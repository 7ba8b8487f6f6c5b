package daemon

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/protocol"
	"github.com/tuhiproject/tuhi/internal/uhid"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// liveStopTimeout bounds the mode switch back to idle when live mode
// ends.
const liveStopTimeout = 5 * time.Second

// StartLive connects to a registered device, switches it to streaming
// pen events, and forwards them to a virtual pen created on the
// caller's uhid fd.
func (d *Daemon) StartLive(sender, address string, fd int) error {
	dev, ok := d.registry.Device(address)
	if !ok {
		return wire.Errorf(wire.KindNotReady, "device %s is not registered", address)
	}
	if !dev.Family.LiveSupported() {
		return wire.Errorf(wire.KindNotReady, "%s does not stream live pen events", dev.Family)
	}

	d.mu.Lock()
	rt := d.runtimeLocked(address)
	if rt.liveOwner != "" {
		same := rt.liveOwner == sender
		d.mu.Unlock()
		if same {
			return nil
		}
		return wire.Errorf(wire.KindBusy, "device live on behalf of another client")
	}
	if rt.listenOwner != "" {
		d.mu.Unlock()
		return wire.Errorf(wire.KindBusy, "device is listening")
	}
	rt.liveOwner = sender
	d.mu.Unlock()

	clearOwner := func() {
		d.mu.Lock()
		rt.liveOwner = ""
		rt.liveCancel = nil
		d.mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn, sess, sink, err := d.openLive(ctx, address, dev.Name, fd)
	if err != nil {
		cancel()
		clearOwner()
		return err
	}

	d.mu.Lock()
	rt.liveCancel = cancel
	d.mu.Unlock()
	d.publish(address)
	d.log.Info().Str("device", address).Str("client", sender).Msg("live mode on")
	go d.runLive(ctx, address, conn, sess, sink)
	return nil
}

// StopLive ends the caller's live mode.
func (d *Daemon) StopLive(sender, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rt, ok := d.devices[address]
	if !ok || rt.liveOwner == "" {
		return nil
	}
	if rt.liveOwner != sender {
		return wire.Errorf(wire.KindBusy, "live mode owned by another client")
	}
	if rt.liveCancel != nil {
		rt.liveCancel()
	}
	return nil
}

func (d *Daemon) openLive(ctx context.Context, address, name string, fd int) (ble.Connection, *protocol.Session, *uhid.Device, error) {
	dev, _ := d.registry.Device(address)

	conn, err := d.adapter.Connect(ctx, address)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := protocol.Open(ctx, conn, name, d.log)
	if err != nil {
		conn.Disconnect()
		return nil, nil, nil, err
	}
	if err := sess.Authenticate(ctx, dev.UUID); err != nil {
		sess.Close()
		return nil, nil, nil, err
	}
	info, err := sess.ReadDeviceInfo(ctx)
	if err != nil {
		sess.Close()
		return nil, nil, nil, err
	}
	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.info = info
	rt.infoValid = true
	d.mu.Unlock()

	sink, err := uhid.NewDevice(fd, "Tuhi "+name, info.Width, info.Height, d.log)
	if err != nil {
		sess.Close()
		return nil, nil, nil, err
	}
	if err := sess.StartLive(ctx, sink); err != nil {
		sink.Close()
		sess.Close()
		return nil, nil, nil, err
	}
	return conn, sess, sink, nil
}

func (d *Daemon) runLive(ctx context.Context, address string, conn ble.Connection, sess *protocol.Session, sink *uhid.Device) {
	status := int32(0)
	lost := false
	select {
	case <-ctx.Done():
	case <-conn.Disconnected():
		lost = true
		status = -int32(unix.ENODEV)
	}

	if !lost {
		stopCtx, cancel := context.WithTimeout(context.Background(), liveStopTimeout)
		if err := sess.StopLive(stopCtx); err != nil {
			d.log.Warn().Err(err).Str("device", address).Msg("leaving live mode")
		}
		cancel()
	}
	if err := sink.Close(); err != nil {
		d.log.Debug().Err(err).Msg("destroying virtual pen")
	}
	sess.Close()

	d.mu.Lock()
	rt := d.runtimeLocked(address)
	rt.liveOwner = ""
	rt.liveCancel = nil
	bus := d.bus
	d.mu.Unlock()

	d.publish(address)
	if bus != nil {
		bus.EmitLiveStopped(address, status)
	}
	d.log.Info().Str("device", address).Msg("live mode off")
}
