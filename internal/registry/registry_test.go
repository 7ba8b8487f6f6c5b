package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuhiproject/tuhi/internal/drawing"
	"github.com/tuhiproject/tuhi/internal/wire"
)

const testAddress = "DE:AD:BE:EF:CA:FE"

func testDevice() Device {
	return Device{
		Address: testAddress,
		Name:    "Bamboo Slate",
		Family:  wire.FamilySlate,
		UUID: [16]byte{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
			0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
		},
	}
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "registrations.yaml"))
	cache := NewDrawingCache(filepath.Join(dir, "drawings"))
	return New(store, cache, zerolog.Nop()), dir
}

func TestRegisterPersistsAcrossLoad(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, r.Register(testDevice()))

	fresh := New(
		NewStore(filepath.Join(dir, "registrations.yaml")),
		NewDrawingCache(filepath.Join(dir, "drawings")),
		zerolog.Nop(),
	)
	require.NoError(t, fresh.Load())
	dev, ok := fresh.Device(testAddress)
	require.True(t, ok)
	assert.Equal(t, testDevice(), dev)
}

func TestRegistrationFileShape(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, r.Register(testDevice()))

	data, err := os.ReadFile(filepath.Join(dir, "registrations.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), testAddress)
	assert.Contains(t, string(data), "uuid: 000102030405060708090a0b0c0d0e0f")
	assert.Contains(t, string(data), "family: slate")
}

func TestLoadMissingFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Load())
	assert.Empty(t, r.Devices())
}

func TestForget(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(testDevice()))
	require.NoError(t, r.Forget(testAddress))
	_, ok := r.Device(testAddress)
	assert.False(t, ok)
	require.NoError(t, r.Load())
	assert.Empty(t, r.Devices())
}

func TestRename(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(testDevice()))
	require.NoError(t, r.Rename(testAddress, "desk pad"))
	dev, _ := r.Device(testAddress)
	assert.Equal(t, "desk pad", dev.Name)

	assert.Error(t, r.Rename("11:22:33:44:55:66", "nope"))
}

func TestDevicesSorted(t *testing.T) {
	r, _ := newTestRegistry(t)
	b := testDevice()
	a := testDevice()
	a.Address = "AA:00:00:00:00:00"
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(a))
	devices := r.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, a.Address, devices[0].Address)
}

func TestParseUUIDRejectsBadInput(t *testing.T) {
	_, err := ParseUUID("zz")
	assert.Error(t, err)
	_, err = ParseUUID("0001")
	assert.Error(t, err)
}

func testDrawing(ts uint64) *drawing.Drawing {
	return &drawing.Drawing{
		Version:    drawing.JSONVersion,
		DeviceName: "Bamboo Slate",
		SessionID:  "s-1",
		Dimensions: [2]uint32{14800, 21600},
		Timestamp:  ts,
		Strokes:    []drawing.Stroke{},
	}
}

func TestDrawingCacheRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.AddDrawing(testAddress, testDrawing(1754480000)))

	timestamps, err := r.Drawings(testAddress)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1754480000}, timestamps)

	d, err := r.Drawing(testAddress, 1754480000)
	require.NoError(t, err)
	assert.Equal(t, testDrawing(1754480000), d)
}

func TestDrawingCachePurgesOldest(t *testing.T) {
	r, _ := newTestRegistry(t)
	for i := range 15 {
		require.NoError(t, r.AddDrawing(testAddress, testDrawing(uint64(1000+i))))
	}
	timestamps, err := r.Drawings(testAddress)
	require.NoError(t, err)
	require.Len(t, timestamps, 10)
	assert.Equal(t, uint64(1005), timestamps[0])
	assert.Equal(t, uint64(1014), timestamps[9])
}

func TestDrawingCacheBumpsDuplicateTimestamp(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.AddDrawing(testAddress, testDrawing(2000)))
	dup := testDrawing(2000)
	require.NoError(t, r.AddDrawing(testAddress, dup))
	assert.Equal(t, uint64(2001), dup.Timestamp)

	timestamps, err := r.Drawings(testAddress)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2000, 2001}, timestamps)
}

func TestDrawingsEmptyDevice(t *testing.T) {
	r, _ := newTestRegistry(t)
	timestamps, err := r.Drawings("11:22:33:44:55:66")
	require.NoError(t, err)
	assert.Empty(t, timestamps)
}

func TestStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registrations.yaml")
	store := NewStore(path)
	require.NoError(t, store.Save(map[string]Record{
		testAddress: {UUID: fmt.Sprintf("%032d", 1), Family: "slate"},
	}))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	records, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
