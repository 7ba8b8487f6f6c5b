package rpc

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/tuhiproject/tuhi/internal/wire"
)

func TestDevicePath(t *testing.T) {
	assert.Equal(t,
		dbus.ObjectPath("/org/freedesktop/tuhi1/DE_AD_BE_EF_CA_FE"),
		devicePath("DE:AD:BE:EF:CA:FE"))
}

func TestBluezPath(t *testing.T) {
	assert.Equal(t,
		dbus.ObjectPath("/org/bluez/hci0/dev_DE_AD_BE_EF_CA_FE"),
		bluezPath("DE:AD:BE:EF:CA:FE"))
}

func TestErrnoStatus(t *testing.T) {
	assert.Equal(t, int32(0), errnoStatus(nil))
	assert.Equal(t, -int32(unix.EAGAIN), errnoStatus(wire.ErrBusy))
	assert.Equal(t, -int32(unix.EACCES), errnoStatus(wire.ErrNotAuthorized))
	assert.Equal(t, -int32(unix.ETIME), errnoStatus(wire.ErrTimeout))
	assert.Equal(t, -int32(unix.EIO), errnoStatus(errors.New("boom")))
}

func TestEqualTimestamps(t *testing.T) {
	assert.True(t, equalTimestamps(nil, nil))
	assert.True(t, equalTimestamps([]uint64{1, 2}, []uint64{1, 2}))
	assert.False(t, equalTimestamps([]uint64{1}, []uint64{1, 2}))
	assert.False(t, equalTimestamps([]uint64{1, 3}, []uint64{1, 2}))
}
