package registry

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tuhiproject/tuhi/internal/drawing"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// Device is one registered tablet.
type Device struct {
	Address string
	Name    string
	Family  wire.Family
	UUID    [16]byte
}

// UUIDHex returns the persisted form of the registration uuid.
func (d Device) UUIDHex() string {
	return hex.EncodeToString(d.UUID[:])
}

// ParseUUID decodes the persisted registration uuid.
func ParseUUID(s string) ([16]byte, error) {
	var uuid [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return uuid, fmt.Errorf("decoding registration uuid: %w", err)
	}
	if len(raw) != 16 {
		return uuid, fmt.Errorf("registration uuid is %d bytes, want 16", len(raw))
	}
	copy(uuid[:], raw)
	return uuid, nil
}

// Registry owns the set of registered devices and their cached
// drawings. It is the single shared value between the session layer
// and the RPC surface; reads return snapshots.
type Registry struct {
	log   zerolog.Logger
	store *Store
	cache *DrawingCache

	mu      sync.Mutex
	devices map[string]Device
}

// New builds an empty registry over the given persistence.
func New(store *Store, cache *DrawingCache, log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("component", "registry").Logger(),
		store:   store,
		cache:   cache,
		devices: make(map[string]Device),
	}
}

// Load replaces the in-memory set with the persisted registrations.
func (r *Registry) Load() error {
	records, err := r.store.Load()
	if err != nil {
		return err
	}
	devices := make(map[string]Device, len(records))
	for address, rec := range records {
		uuid, err := ParseUUID(rec.UUID)
		if err != nil {
			return fmt.Errorf("device %s: %w", address, err)
		}
		family, err := wire.ParseFamily(rec.Family)
		if err != nil {
			return fmt.Errorf("device %s: %w", address, err)
		}
		devices[address] = Device{
			Address: address,
			Name:    rec.Name,
			Family:  family,
			UUID:    uuid,
		}
	}
	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()
	r.log.Info().Int("devices", len(devices)).Msg("registrations loaded")
	return nil
}

// Register adds or replaces a device and persists the set.
func (r *Registry) Register(dev Device) error {
	r.mu.Lock()
	r.devices[dev.Address] = dev
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.log.Info().Str("device", dev.Address).Stringer("family", dev.Family).Msg("device registered")
	return nil
}

// Forget drops a device and persists the set. Cached drawings stay on
// disk.
func (r *Registry) Forget(address string) error {
	r.mu.Lock()
	delete(r.devices, address)
	err := r.persistLocked()
	r.mu.Unlock()
	return err
}

// Rename updates the stored device name.
func (r *Registry) Rename(address, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[address]
	if !ok {
		return fmt.Errorf("unknown device %s", address)
	}
	dev.Name = name
	r.devices[address] = dev
	return r.persistLocked()
}

func (r *Registry) persistLocked() error {
	records := make(map[string]Record, len(r.devices))
	for address, dev := range r.devices {
		records[address] = Record{
			UUID:   dev.UUIDHex(),
			Family: dev.Family.String(),
			Name:   dev.Name,
		}
	}
	return r.store.Save(records)
}

// Device returns a snapshot of one registration.
func (r *Registry) Device(address string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[address]
	return dev, ok
}

// Devices returns a snapshot of all registrations, ordered by address.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// AddDrawing caches one fetched drawing for a device.
func (r *Registry) AddDrawing(address string, d *drawing.Drawing) error {
	if err := r.cache.Put(address, d); err != nil {
		return err
	}
	r.log.Debug().Str("device", address).Uint64("timestamp", d.Timestamp).Msg("drawing cached")
	return nil
}

// Drawings lists the cached drawing timestamps of a device, oldest
// first.
func (r *Registry) Drawings(address string) ([]uint64, error) {
	return r.cache.Timestamps(address)
}

// Drawing loads one cached drawing.
func (r *Registry) Drawing(address string, timestamp uint64) (*drawing.Drawing, error) {
	return r.cache.Get(address, timestamp)
}
