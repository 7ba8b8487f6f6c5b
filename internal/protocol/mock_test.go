package protocol

import (
	"context"
	"sync"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// mockChar is a scriptable GATT characteristic.
type mockChar struct {
	uuid string

	mu      sync.Mutex
	notify  func([]byte)
	onWrite func(data []byte)
	writes  [][]byte
}

func (c *mockChar) UUID() string { return c.uuid }

func (c *mockChar) Read(context.Context) ([]byte, error) { return nil, nil }

func (c *mockChar) Write(_ context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	c.mu.Lock()
	c.writes = append(c.writes, buf)
	handler := c.onWrite
	c.mu.Unlock()
	if handler != nil {
		handler(buf)
	}
	return nil
}

func (c *mockChar) WriteWithoutResponse(ctx context.Context, data []byte) error {
	return c.Write(ctx, data)
}

func (c *mockChar) Subscribe(notify func([]byte)) error {
	c.mu.Lock()
	c.notify = notify
	c.mu.Unlock()
	return nil
}

func (c *mockChar) Unsubscribe() error {
	c.mu.Lock()
	c.notify = nil
	c.mu.Unlock()
	return nil
}

func (c *mockChar) deliver(data []byte) {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()
	if notify != nil {
		notify(data)
	}
}

// mockConn is an established link to a mockDevice.
type mockConn struct {
	profile ble.Profile

	once    sync.Once
	dropped chan struct{}
}

func (c *mockConn) Discover(context.Context) (ble.Profile, error) { return c.profile, nil }

func (c *mockConn) Disconnected() <-chan struct{} { return c.dropped }

func (c *mockConn) Disconnect() error {
	c.once.Do(func() { close(c.dropped) })
	return nil
}

// mockDevice scripts a tablet: handle maps each written command to the
// notification chunks the device answers with.
type mockDevice struct {
	name string
	conn *mockConn

	uartWrite  *mockChar
	uartNotify *mockChar
	button     *mockChar
	livePen    *mockChar

	mu       sync.Mutex
	commands []wire.Command
	handle   func(opcode byte, payload []byte) [][]byte
}

func newMockDevice(name string, sysevent bool) *mockDevice {
	d := &mockDevice{
		name:       name,
		uartWrite:  &mockChar{uuid: ble.UARTWriteCharUUID},
		uartNotify: &mockChar{uuid: ble.UARTNotifyCharUUID},
		button:     &mockChar{uuid: ble.OfflineButtonCharUUID},
		livePen:    &mockChar{uuid: ble.LivePenCharUUID},
	}
	d.uartWrite.onWrite = func(data []byte) {
		opcode := data[0]
		payload := append([]byte(nil), data[2:2+int(data[1])]...)
		d.mu.Lock()
		d.commands = append(d.commands, wire.Command{Opcode: opcode, Payload: payload})
		handler := d.handle
		d.mu.Unlock()
		if handler == nil {
			return
		}
		for _, chunk := range handler(opcode, payload) {
			d.uartNotify.deliver(chunk)
		}
	}

	services := []ble.Service{
		{UUID: ble.UARTServiceUUID, Characteristics: []ble.Characteristic{d.uartWrite, d.uartNotify}},
		{UUID: ble.OfflineServiceUUID, Characteristics: []ble.Characteristic{d.button}},
		{UUID: ble.LiveServiceUUID, Characteristics: []ble.Characteristic{d.livePen}},
	}
	if sysevent {
		services = append(services, ble.Service{UUID: ble.SyseventServiceUUID})
	}
	d.conn = &mockConn{profile: ble.NewProfile(services), dropped: make(chan struct{})}
	return d
}

// sent reports whether the device saw a command with this opcode.
func (d *mockDevice) sent(opcode byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cmd := range d.commands {
		if cmd.Opcode == opcode {
			return true
		}
	}
	return false
}

func (d *mockDevice) modeWrites() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var modes []byte
	for _, cmd := range d.commands {
		if cmd.Opcode == wire.OpMode && len(cmd.Payload) == 1 {
			modes = append(modes, cmd.Payload[0])
		}
	}
	return modes
}

// frame builds one tablet-to-host response frame.
func frame(opcode, status byte, payload ...byte) []byte {
	buf := []byte{opcode, status, byte(len(payload))}
	return append(buf, payload...)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
