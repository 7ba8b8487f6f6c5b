package rpc

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// deviceTree owns the exported device objects, keyed by address.
type deviceTree struct {
	svc *Service

	mu      sync.Mutex
	devices map[string]*device
}

func newDeviceTree(svc *Service) *deviceTree {
	return &deviceTree{svc: svc, devices: make(map[string]*device)}
}

func (t *deviceTree) add(state DeviceState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.devices[state.Address]; ok {
		d.update(state)
		return nil
	}
	d := &device{svc: t.svc, address: state.Address, path: devicePath(state.Address)}
	if err := d.export(state); err != nil {
		return err
	}
	t.devices[state.Address] = d
	t.svc.manager.addPath(d.path)
	return nil
}

func (t *deviceTree) remove(address string) {
	t.mu.Lock()
	d, ok := t.devices[address]
	delete(t.devices, address)
	t.mu.Unlock()
	if !ok {
		return
	}
	d.unexport()
	t.svc.manager.removePath(d.path)
}

func (t *deviceTree) update(state DeviceState) {
	t.mu.Lock()
	d, ok := t.devices[state.Address]
	t.mu.Unlock()
	if ok {
		d.update(state)
	}
}

// device is one exported tablet object.
type device struct {
	svc     *Service
	address string
	path    dbus.ObjectPath

	mu    sync.Mutex
	props *prop.Properties
	state DeviceState
}

func (d *device) export(state DeviceState) error {
	conn := d.svc.conn
	d.state = state
	if err := conn.Export(d, d.path, DeviceIface); err != nil {
		return err
	}

	props, err := prop.Export(conn, d.path, prop.Map{
		DeviceIface: {
			"BlueZDevice": {
				Value:    bluezPath(state.Address),
				Writable: false,
				Emit:     prop.EmitConst,
			},
			"Name": {
				Value:    state.Name,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Dimensions": {
				Value:    state.Dimensions,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"BatteryPercent": {
				Value:    state.BatteryPercent,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"BatteryState": {
				Value:    state.BatteryState,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"DrawingsAvailable": {
				Value:    drawings(state),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Listening": {
				Value:    state.Listening,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Live": {
				Value:    state.Live,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	})
	if err != nil {
		return err
	}
	d.props = props

	node := &introspect.Node{
		Name: string(d.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:    DeviceIface,
				Methods: introspect.Methods(d),
				Properties: []introspect.Property{
					{Name: "BlueZDevice", Type: "o", Access: "read"},
					{Name: "Name", Type: "s", Access: "read"},
					{Name: "Dimensions", Type: "au", Access: "read"},
					{Name: "BatteryPercent", Type: "u", Access: "read"},
					{Name: "BatteryState", Type: "u", Access: "read"},
					{Name: "DrawingsAvailable", Type: "at", Access: "read"},
					{Name: "Listening", Type: "b", Access: "read"},
					{Name: "Live", Type: "b", Access: "read"},
				},
				Signals: []introspect.Signal{
					{Name: "ButtonPressRequired"},
					{Name: "ListeningStopped", Args: []introspect.Arg{{Name: "status", Type: "i", Direction: "out"}}},
					{Name: "LiveStopped", Args: []introspect.Arg{{Name: "status", Type: "i", Direction: "out"}}},
					{Name: "SyncState", Args: []introspect.Arg{{Name: "state", Type: "i", Direction: "out"}}},
				},
			},
		},
	}
	return conn.Export(introspect.NewIntrospectable(node), d.path, "org.freedesktop.DBus.Introspectable")
}

func (d *device) unexport() {
	conn := d.svc.conn
	conn.Export(nil, d.path, DeviceIface)
	conn.Export(nil, d.path, "org.freedesktop.DBus.Introspectable")
	conn.Export(nil, d.path, "org.freedesktop.DBus.Properties")
}

// update publishes a fresh snapshot, emitting PropertiesChanged only
// for fields that moved.
func (d *device) update(state DeviceState) {
	d.mu.Lock()
	prev := d.state
	d.state = state
	props := d.props
	d.mu.Unlock()
	if props == nil {
		return
	}
	if prev.Name != state.Name {
		props.SetMust(DeviceIface, "Name", state.Name)
	}
	if prev.Dimensions != state.Dimensions {
		props.SetMust(DeviceIface, "Dimensions", state.Dimensions)
	}
	if prev.BatteryPercent != state.BatteryPercent {
		props.SetMust(DeviceIface, "BatteryPercent", state.BatteryPercent)
	}
	if prev.BatteryState != state.BatteryState {
		props.SetMust(DeviceIface, "BatteryState", state.BatteryState)
	}
	if !equalTimestamps(prev.DrawingsAvailable, state.DrawingsAvailable) {
		props.SetMust(DeviceIface, "DrawingsAvailable", drawings(state))
	}
	if prev.Listening != state.Listening {
		props.SetMust(DeviceIface, "Listening", state.Listening)
	}
	if prev.Live != state.Live {
		props.SetMust(DeviceIface, "Live", state.Live)
	}
}

// Register pairs the device while it is in registration mode. The
// reply is 0 on success or a negative errno.
func (d *device) Register(sender dbus.Sender) (int32, *dbus.Error) {
	return errnoStatus(d.svc.backend.Register(d.address)), nil
}

// StartListening begins fetching stored drawings for the caller.
func (d *device) StartListening(sender dbus.Sender) *dbus.Error {
	if err := d.svc.backend.StartListening(string(sender), d.address); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// StopListening ends the caller's listen.
func (d *device) StopListening(sender dbus.Sender) *dbus.Error {
	if err := d.svc.backend.StopListening(string(sender), d.address); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// StartLive switches the device to live mode, forwarding pen events to
// the uhid fd passed by the caller.
func (d *device) StartLive(sender dbus.Sender, fd dbus.UnixFD) (int32, *dbus.Error) {
	return errnoStatus(d.svc.backend.StartLive(string(sender), d.address, int(fd))), nil
}

// StopLive leaves live mode.
func (d *device) StopLive(sender dbus.Sender) (int32, *dbus.Error) {
	return errnoStatus(d.svc.backend.StopLive(string(sender), d.address)), nil
}

// GetJSONData returns one cached drawing serialized in the requested
// file version.
func (d *device) GetJSONData(sender dbus.Sender, version uint32, timestamp uint64) (string, *dbus.Error) {
	data, err := d.svc.backend.GetJSONData(d.address, version, timestamp)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return data, nil
}

func drawings(state DeviceState) []uint64 {
	out := make([]uint64, len(state.DrawingsAvailable))
	copy(out, state.DrawingsAvailable)
	return out
}

func equalTimestamps(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bluezPath maps a device address onto the object path BlueZ exports
// for it on the default adapter.
func bluezPath(address string) dbus.ObjectPath {
	clean := devicePath(address)
	return dbus.ObjectPath("/org/bluez/hci0/dev_" + string(clean[len(BasePath)+1:]))
}
