// Package client speaks the daemon's bus interface on behalf of the
// commandline and TUI front ends.
package client

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/tuhiproject/tuhi/internal/rpc"
)

// Device is a client-side snapshot of one exported device object.
type Device struct {
	Path              dbus.ObjectPath
	Address           string
	Name              string
	Dimensions        []uint32
	BatteryPercent    uint32
	BatteryState      uint32
	DrawingsAvailable []uint64
	Listening         bool
	Live              bool
}

// Battery states as published by the daemon.
const (
	BatteryUnknown     = 0
	BatteryCharging    = 1
	BatteryDischarging = 2
)

// Client wraps a session bus connection to the daemon.
type Client struct {
	conn *dbus.Conn
}

// Connect dials the session bus and verifies the daemon owns its name.
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	var owner string
	if err := conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, rpc.BusName).Store(&owner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) manager() dbus.BusObject {
	return c.conn.Object(rpc.BusName, rpc.BasePath)
}

func (c *Client) object(path dbus.ObjectPath) dbus.BusObject {
	return c.conn.Object(rpc.BusName, path)
}

// Searching reports whether a search is currently running.
func (c *Client) Searching() (bool, error) {
	v, err := c.manager().GetProperty(rpc.ManagerIface + ".Searching")
	if err != nil {
		return false, err
	}
	var on bool
	if err := v.Store(&on); err != nil {
		return false, err
	}
	return on, nil
}

// Devices lists every exported device with its current properties.
func (c *Client) Devices() ([]Device, error) {
	v, err := c.manager().GetProperty(rpc.ManagerIface + ".Devices")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	var paths []dbus.ObjectPath
	if err := v.Store(&paths); err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		dev, err := c.Device(path)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Device reads the full property set of one device object.
func (c *Client) Device(path dbus.ObjectPath) (Device, error) {
	var props map[string]dbus.Variant
	err := c.object(path).Call("org.freedesktop.DBus.Properties.GetAll", 0, rpc.DeviceIface).Store(&props)
	if err != nil {
		return Device{}, fmt.Errorf("reading %s: %w", path, err)
	}
	dev := Device{Path: path, Address: AddressOf(path)}
	if v, ok := props["Name"]; ok {
		v.Store(&dev.Name)
	}
	if v, ok := props["Dimensions"]; ok {
		v.Store(&dev.Dimensions)
	}
	if v, ok := props["BatteryPercent"]; ok {
		v.Store(&dev.BatteryPercent)
	}
	if v, ok := props["BatteryState"]; ok {
		v.Store(&dev.BatteryState)
	}
	if v, ok := props["DrawingsAvailable"]; ok {
		v.Store(&dev.DrawingsAvailable)
	}
	if v, ok := props["Listening"]; ok {
		v.Store(&dev.Listening)
	}
	if v, ok := props["Live"]; ok {
		v.Store(&dev.Live)
	}
	return dev, nil
}

// Find resolves an address or name prefix to a device.
func (c *Client) Find(needle string) (Device, error) {
	devices, err := c.Devices()
	if err != nil {
		return Device{}, err
	}
	needle = strings.ToLower(needle)
	for _, dev := range devices {
		if strings.ToLower(dev.Address) == needle || strings.HasPrefix(strings.ToLower(dev.Name), needle) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("no device matching %q", needle)
}

func (c *Client) StartSearch() error {
	return c.manager().Call(rpc.ManagerIface+".StartSearch", 0).Err
}

func (c *Client) StopSearch() error {
	return c.manager().Call(rpc.ManagerIface+".StopSearch", 0).Err
}

// Register pairs the device at path. The daemon emits
// ButtonPressRequired when the user must confirm on the hardware.
func (c *Client) Register(path dbus.ObjectPath) error {
	var status int32
	if err := c.object(path).Call(rpc.DeviceIface+".Register", 0).Store(&status); err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("registration failed with status %d", status)
	}
	return nil
}

func (c *Client) StartListening(path dbus.ObjectPath) error {
	return c.object(path).Call(rpc.DeviceIface+".StartListening", 0).Err
}

func (c *Client) StopListening(path dbus.ObjectPath) error {
	return c.object(path).Call(rpc.DeviceIface+".StopListening", 0).Err
}

func (c *Client) StartLive(path dbus.ObjectPath, fd int) error {
	var status int32
	call := c.object(path).Call(rpc.DeviceIface+".StartLive", 0, dbus.UnixFD(fd))
	if err := call.Store(&status); err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("live mode failed with status %d", status)
	}
	return nil
}

func (c *Client) StopLive(path dbus.ObjectPath) error {
	var status int32
	return c.object(path).Call(rpc.DeviceIface+".StopLive", 0).Store(&status)
}

// GetJSONData fetches one drawing as a JSON document.
func (c *Client) GetJSONData(path dbus.ObjectPath, version uint32, timestamp uint64) (string, error) {
	var data string
	err := c.object(path).Call(rpc.DeviceIface+".GetJSONData", 0, version, timestamp).Store(&data)
	return data, err
}

// AddressOf recovers the Bluetooth address from an object path.
func AddressOf(path dbus.ObjectPath) string {
	s := string(path)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return strings.ReplaceAll(s, "_", ":")
}
