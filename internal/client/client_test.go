package client

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuhiproject/tuhi/internal/rpc"
)

func TestAddressOf(t *testing.T) {
	path := dbus.ObjectPath("/org/freedesktop/tuhi1/DE_AD_BE_EF_CA_FE")
	assert.Equal(t, "DE:AD:BE:EF:CA:FE", AddressOf(path))
}

func TestDecodeSignal(t *testing.T) {
	devPath := dbus.ObjectPath("/org/freedesktop/tuhi1/DE_AD_BE_EF_CA_FE")

	ev, ok := decodeSignal(&dbus.Signal{
		Name: rpc.ManagerIface + ".UnregisteredDevice",
		Body: []interface{}{devPath},
	})
	require.True(t, ok)
	assert.Equal(t, EventUnregisteredDevice, ev.Kind)
	assert.Equal(t, devPath, ev.Device)

	ev, ok = decodeSignal(&dbus.Signal{
		Name: rpc.DeviceIface + ".ListeningStopped",
		Path: devPath,
		Body: []interface{}{int32(-11)},
	})
	require.True(t, ok)
	assert.Equal(t, EventListeningStopped, ev.Kind)
	assert.Equal(t, int32(-11), ev.Status)

	ev, ok = decodeSignal(&dbus.Signal{
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Path: devPath,
	})
	require.True(t, ok)
	assert.Equal(t, EventDeviceChanged, ev.Kind)

	_, ok = decodeSignal(&dbus.Signal{
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Path: "/org/bluez/hci0",
	})
	assert.False(t, ok)
}
