package client

import (
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/tuhiproject/tuhi/internal/rpc"
)

// Event is a daemon signal decoded for the front ends.
type Event struct {
	Kind   EventKind
	Device dbus.ObjectPath
	Status int32
}

type EventKind int

const (
	EventUnregisteredDevice EventKind = iota
	EventSearchStopped
	EventButtonPressRequired
	EventListeningStopped
	EventLiveStopped
	EventSyncState
	EventDeviceChanged
)

// Subscribe routes daemon signals into a channel until the connection
// closes. Property changes on device objects surface as
// EventDeviceChanged so a watcher can re-read the device.
func (c *Client) Subscribe() (<-chan Event, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(rpc.BusName),
	}
	if err := c.conn.AddMatchSignal(append(opts, dbus.WithMatchInterface(rpc.ManagerIface))...); err != nil {
		return nil, err
	}
	if err := c.conn.AddMatchSignal(append(opts, dbus.WithMatchInterface(rpc.DeviceIface))...); err != nil {
		return nil, err
	}
	if err := c.conn.AddMatchSignal(append(opts, dbus.WithMatchInterface("org.freedesktop.DBus.Properties"))...); err != nil {
		return nil, err
	}

	raw := make(chan *dbus.Signal, 32)
	c.conn.Signal(raw)
	events := make(chan Event, 32)
	go func() {
		defer close(events)
		for sig := range raw {
			if ev, ok := decodeSignal(sig); ok {
				events <- ev
			}
		}
	}()
	return events, nil
}

func decodeSignal(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case rpc.ManagerIface + ".UnregisteredDevice":
		if path, ok := firstPath(sig); ok {
			return Event{Kind: EventUnregisteredDevice, Device: path}, true
		}
	case rpc.ManagerIface + ".SearchStopped":
		return Event{Kind: EventSearchStopped, Status: firstStatus(sig)}, true
	case rpc.DeviceIface + ".ButtonPressRequired":
		return Event{Kind: EventButtonPressRequired, Device: sig.Path}, true
	case rpc.DeviceIface + ".ListeningStopped":
		return Event{Kind: EventListeningStopped, Device: sig.Path, Status: firstStatus(sig)}, true
	case rpc.DeviceIface + ".LiveStopped":
		return Event{Kind: EventLiveStopped, Device: sig.Path, Status: firstStatus(sig)}, true
	case rpc.DeviceIface + ".SyncState":
		return Event{Kind: EventSyncState, Device: sig.Path, Status: firstStatus(sig)}, true
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		if strings.HasPrefix(string(sig.Path), string(rpc.BasePath)) {
			return Event{Kind: EventDeviceChanged, Device: sig.Path}, true
		}
	}
	return Event{}, false
}

func firstPath(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	if len(sig.Body) == 0 {
		return "", false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	return path, ok
}

func firstStatus(sig *dbus.Signal) int32 {
	if len(sig.Body) == 0 {
		return 0
	}
	status, _ := sig.Body[0].(int32)
	return status
}
