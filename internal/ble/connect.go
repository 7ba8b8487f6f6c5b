package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tinygo.org/x/bluetooth"
)

const defaultConnectTimeout = 20 * time.Second

// CentralAdapter is the production Adapter backed by the platform
// Bluetooth stack.
type CentralAdapter struct {
	adapter *bluetooth.Adapter
	log     zerolog.Logger

	mu      sync.Mutex
	enabled bool
	conns   map[string]*centralConn
}

// NewCentralAdapter wraps the default platform adapter.
func NewCentralAdapter(log zerolog.Logger) *CentralAdapter {
	return &CentralAdapter{
		adapter: bluetooth.DefaultAdapter,
		log:     log.With().Str("component", "ble").Logger(),
		conns:   make(map[string]*centralConn),
	}
}

func (a *CentralAdapter) enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn := a.conns[addr]
		delete(a.conns, addr)
		a.mu.Unlock()
		if conn != nil {
			a.log.Debug().Str("device", addr).Msg("link dropped")
			conn.markDisconnected()
		}
	})
	a.enabled = true
	return nil
}

// Scan reports advertisements until ctx is done.
func (a *CentralAdapter) Scan(ctx context.Context, found func(Advertisement)) error {
	if err := a.enable(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			adv := Advertisement{
				Address:      result.Address.String(),
				Name:         result.LocalName(),
				RSSI:         result.RSSI,
				Manufacturer: make(map[uint16][]byte),
			}
			for _, elem := range result.ManufacturerData() {
				adv.Manufacturer[elem.CompanyID] = elem.Data
			}
			found(adv)
		})
	}()
	select {
	case <-ctx.Done():
		if err := a.adapter.StopScan(); err != nil {
			a.log.Warn().Err(err).Msg("stopping scan")
		}
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Connect dials a peripheral by address.
func (a *CentralAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", address, err)
	}

	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	params := bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	}
	device, err := a.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, params)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}

	conn := &centralConn{
		device:  device,
		log:     a.log.With().Str("device", address).Logger(),
		dropped: make(chan struct{}),
	}
	a.mu.Lock()
	a.conns[device.Address.String()] = conn
	a.mu.Unlock()
	return conn, nil
}

type centralConn struct {
	device bluetooth.Device
	log    zerolog.Logger

	once    sync.Once
	dropped chan struct{}
}

func (c *centralConn) markDisconnected() {
	c.once.Do(func() { close(c.dropped) })
}

func (c *centralConn) Disconnected() <-chan struct{} {
	return c.dropped
}

func (c *centralConn) Disconnect() error {
	return c.device.Disconnect()
}

func (c *centralConn) Discover(ctx context.Context) (Profile, error) {
	services, err := c.device.DiscoverServices(nil)
	if err != nil {
		return Profile{}, fmt.Errorf("discovering services: %w", err)
	}
	resolved := make([]Service, 0, len(services))
	for i := range services {
		chars, err := services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return Profile{}, fmt.Errorf("discovering characteristics of %s: %w", services[i].UUID().String(), err)
		}
		svc := Service{UUID: services[i].UUID().String()}
		for j := range chars {
			svc.Characteristics = append(svc.Characteristics, &centralChar{chrc: chars[j]})
		}
		c.log.Debug().Str("service", svc.UUID).Int("characteristics", len(chars)).Msg("resolved service")
		resolved = append(resolved, svc)
	}
	return NewProfile(resolved), nil
}

type centralChar struct {
	chrc bluetooth.DeviceCharacteristic
}

func (c *centralChar) UUID() string {
	return c.chrc.UUID().String()
}

func (c *centralChar) Read(_ context.Context) ([]byte, error) {
	buf := make([]byte, 512)
	n, err := c.chrc.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *centralChar) Write(_ context.Context, data []byte) error {
	_, err := c.chrc.Write(data)
	return err
}

func (c *centralChar) WriteWithoutResponse(_ context.Context, data []byte) error {
	_, err := c.chrc.WriteWithoutResponse(data)
	return err
}

func (c *centralChar) Subscribe(notify func(data []byte)) error {
	return c.chrc.EnableNotifications(notify)
}

func (c *centralChar) Unsubscribe() error {
	return c.chrc.EnableNotifications(nil)
}
