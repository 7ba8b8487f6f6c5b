package ble

import (
	"context"
	"strings"
)

// The session protocol talks to the tablet through these interfaces
// so tests can script a transport without a Bluetooth stack.

// Advertisement is one LE advertisement seen during a scan.
type Advertisement struct {
	Address      string
	Name         string
	RSSI         int16
	Manufacturer map[uint16][]byte
}

// Adapter is the entry point to the Bluetooth central role.
type Adapter interface {
	// Scan reports advertisements until ctx is done. The callback runs
	// on the adapter's goroutine and must not block.
	Scan(ctx context.Context, found func(Advertisement)) error

	// Connect dials a peripheral by address.
	Connect(ctx context.Context, address string) (Connection, error)
}

// Connection is an established link to one peripheral.
type Connection interface {
	// Discover resolves services and characteristics.
	Discover(ctx context.Context) (Profile, error)

	// Disconnected is closed when the link drops, whether requested
	// or not.
	Disconnected() <-chan struct{}

	Disconnect() error
}

// Characteristic is one GATT characteristic on a connection.
type Characteristic interface {
	UUID() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	WriteWithoutResponse(ctx context.Context, data []byte) error

	// Subscribe delivers each notification as one buffer, in arrival
	// order. Subscribing again replaces the handler.
	Subscribe(notify func(data []byte)) error
	Unsubscribe() error
}

// Service groups the characteristics of one GATT service.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Profile is the resolved GATT database of a connection.
type Profile struct {
	services map[string]struct{}
	chars    map[string]Characteristic
}

// NewProfile builds a profile from discovered services. UUIDs are
// matched case-insensitively.
func NewProfile(services []Service) Profile {
	p := Profile{
		services: make(map[string]struct{}),
		chars:    make(map[string]Characteristic),
	}
	for _, svc := range services {
		p.services[strings.ToLower(svc.UUID)] = struct{}{}
		for _, c := range svc.Characteristics {
			p.chars[strings.ToLower(c.UUID())] = c
		}
	}
	return p
}

// HasService reports whether the service was discovered.
func (p Profile) HasService(uuid string) bool {
	_, ok := p.services[strings.ToLower(uuid)]
	return ok
}

// Characteristic looks up a characteristic by UUID.
func (p Profile) Characteristic(uuid string) (Characteristic, bool) {
	c, ok := p.chars[strings.ToLower(uuid)]
	return c, ok
}
