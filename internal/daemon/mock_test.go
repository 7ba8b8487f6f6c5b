package daemon

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"
	"testing"
	"time"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/rpc"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// fakeChar is a scriptable GATT characteristic.
type fakeChar struct {
	uuid string

	mu      sync.Mutex
	notify  func([]byte)
	onWrite func(data []byte)
}

func (c *fakeChar) UUID() string { return c.uuid }

func (c *fakeChar) Read(context.Context) ([]byte, error) { return nil, nil }

func (c *fakeChar) Write(_ context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	c.mu.Lock()
	handler := c.onWrite
	c.mu.Unlock()
	if handler != nil {
		handler(buf)
	}
	return nil
}

func (c *fakeChar) WriteWithoutResponse(ctx context.Context, data []byte) error {
	return c.Write(ctx, data)
}

func (c *fakeChar) Subscribe(notify func([]byte)) error {
	c.mu.Lock()
	c.notify = notify
	c.mu.Unlock()
	return nil
}

func (c *fakeChar) Unsubscribe() error {
	c.mu.Lock()
	c.notify = nil
	c.mu.Unlock()
	return nil
}

func (c *fakeChar) deliver(data []byte) {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()
	if notify != nil {
		notify(data)
	}
}

// tablet scripts one peripheral: handle maps each written command to
// the notification chunks the device answers with.
type tablet struct {
	address string
	name    string

	uartWrite  *fakeChar
	uartNotify *fakeChar
	button     *fakeChar
	livePen    *fakeChar
	profile    ble.Profile

	mu       sync.Mutex
	commands []wire.Command
	handle   func(opcode byte, payload []byte) [][]byte
}

func newTablet(address, name string, sysevent bool) *tablet {
	tb := &tablet{
		address:    address,
		name:       name,
		uartWrite:  &fakeChar{uuid: ble.UARTWriteCharUUID},
		uartNotify: &fakeChar{uuid: ble.UARTNotifyCharUUID},
		button:     &fakeChar{uuid: ble.OfflineButtonCharUUID},
		livePen:    &fakeChar{uuid: ble.LivePenCharUUID},
	}
	tb.uartWrite.onWrite = func(data []byte) {
		opcode := data[0]
		payload := append([]byte(nil), data[2:2+int(data[1])]...)
		tb.mu.Lock()
		tb.commands = append(tb.commands, wire.Command{Opcode: opcode, Payload: payload})
		handler := tb.handle
		tb.mu.Unlock()
		if handler == nil {
			return
		}
		for _, chunk := range handler(opcode, payload) {
			tb.uartNotify.deliver(chunk)
		}
	}

	services := []ble.Service{
		{UUID: ble.UARTServiceUUID, Characteristics: []ble.Characteristic{tb.uartWrite, tb.uartNotify}},
		{UUID: ble.OfflineServiceUUID, Characteristics: []ble.Characteristic{tb.button}},
		{UUID: ble.LiveServiceUUID, Characteristics: []ble.Characteristic{tb.livePen}},
	}
	if sysevent {
		services = append(services, ble.Service{UUID: ble.SyseventServiceUUID})
	}
	tb.profile = ble.NewProfile(services)
	return tb
}

func (tb *tablet) sent(opcode byte) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for _, cmd := range tb.commands {
		if cmd.Opcode == opcode {
			return true
		}
	}
	return false
}

// script installs a full slate behavior: auth, identity, registration
// with an immediate button press, and a queue of stored drawings that
// shrinks as they are acked.
func (tb *tablet) script(drawings ...[][]byte) {
	var mu sync.Mutex
	queue := append([][][]byte(nil), drawings...)
	tb.handle = func(opcode byte, payload []byte) [][]byte {
		switch opcode {
		case wire.OpCheckConnection, wire.OpRegister:
			if opcode == wire.OpRegister {
				tb.button.deliver([]byte{0x01})
			}
			return [][]byte{frame(opcode, wire.StatusSuccess)}
		case wire.OpTime:
			return [][]byte{frame(wire.OpTime, wire.StatusSuccess)}
		case wire.OpName:
			return [][]byte{frame(wire.OpName, wire.StatusSuccess, []byte(tb.name)...)}
		case wire.OpFirmware:
			if payload[0] == 0 {
				return [][]byte{frame(wire.OpFirmware, wire.StatusSuccess, 'W', '1', '0', '0', 0x00)}
			}
			return [][]byte{frame(wire.OpFirmware, wire.StatusSuccess, 'B', '2', '0', '6', 0x00)}
		case wire.OpDimensions:
			if payload[0] == wire.DimWidth {
				return [][]byte{frame(wire.OpDimensions, wire.StatusSuccess, wire.DimWidth, 0x00, 0x60, 0x54, 0x00, 0x00)}
			}
			return [][]byte{frame(wire.OpDimensions, wire.StatusSuccess, wire.DimHeight, 0x00, 0xd0, 0x39, 0x00, 0x00)}
		case wire.OpBattery:
			return [][]byte{frame(wire.OpBattery, wire.StatusSuccess, 66, 1)}
		case wire.OpFetchInfo:
			mu.Lock()
			count := uint32(len(queue))
			mu.Unlock()
			return [][]byte{frame(wire.OpFetchInfo, wire.StatusSuccess, append(le32(count), le32(1754480000)...)...)}
		case wire.OpMode:
			out := [][]byte{frame(wire.OpMode, wire.StatusSuccess)}
			if len(payload) == 1 && payload[0] == wire.ModePaper {
				mu.Lock()
				if len(queue) > 0 {
					out = append(out, queue[0]...)
				}
				mu.Unlock()
			}
			return out
		case wire.OpAckData:
			mu.Lock()
			if len(queue) > 0 {
				queue = queue[1:]
			}
			mu.Unlock()
			return [][]byte{frame(wire.OpAckData, wire.StatusSuccess)}
		}
		return nil
	}
}

// oneDrawing builds the transfer chunks of a single-stroke drawing.
func oneDrawing() [][]byte {
	records := []byte{0xff}
	records = append(records, 0xfa, 0x00, 0x00, 100, 0x00, 200, 0x00, 0xe8, 0x03)
	crc := crc32.ChecksumIEEE(records)
	end := frame(wire.OpEndOfDrawing, wire.StatusSuccess, append([]byte{0xed}, le32(crc)...)...)
	return [][]byte{records, end}
}

type tabletConn struct {
	tb *tablet

	once    sync.Once
	dropped chan struct{}
}

func (c *tabletConn) Discover(context.Context) (ble.Profile, error) { return c.tb.profile, nil }

func (c *tabletConn) Disconnected() <-chan struct{} { return c.dropped }

func (c *tabletConn) Disconnect() error {
	c.once.Do(func() { close(c.dropped) })
	return nil
}

// fakeAdapter serves scripted tablets and replays a fixed set of
// advertisements on every scan.
type fakeAdapter struct {
	mu      sync.Mutex
	tablets map[string]*tablet
	advs    []ble.Advertisement
}

func newFakeAdapter(tablets ...*tablet) *fakeAdapter {
	a := &fakeAdapter{tablets: make(map[string]*tablet)}
	for _, tb := range tablets {
		a.tablets[tb.address] = tb
	}
	return a
}

func (a *fakeAdapter) advertise(adv ble.Advertisement) {
	a.mu.Lock()
	a.advs = append(a.advs, adv)
	a.mu.Unlock()
}

func (a *fakeAdapter) Scan(ctx context.Context, found func(ble.Advertisement)) error {
	a.mu.Lock()
	advs := append([]ble.Advertisement(nil), a.advs...)
	a.mu.Unlock()
	for _, adv := range advs {
		found(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeAdapter) Connect(_ context.Context, address string) (ble.Connection, error) {
	a.mu.Lock()
	tb, ok := a.tablets[address]
	a.mu.Unlock()
	if !ok {
		return nil, wire.Errorf(wire.KindTransportLost, "no such device %s", address)
	}
	return &tabletConn{tb: tb, dropped: make(chan struct{})}, nil
}

// fakeBus records the daemon's published state and turns every signal
// into one event string.
type fakeBus struct {
	mu     sync.Mutex
	states map[string]rpc.DeviceState
	events chan string
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		states: make(map[string]rpc.DeviceState),
		events: make(chan string, 128),
	}
}

func (b *fakeBus) record(format string, args ...any) {
	select {
	case b.events <- fmt.Sprintf(format, args...):
	default:
	}
}

func (b *fakeBus) AddDevice(state rpc.DeviceState) error {
	b.mu.Lock()
	b.states[state.Address] = state
	b.mu.Unlock()
	b.record("add %s", state.Address)
	return nil
}

func (b *fakeBus) RemoveDevice(address string) {
	b.mu.Lock()
	delete(b.states, address)
	b.mu.Unlock()
	b.record("remove %s", address)
}

func (b *fakeBus) UpdateDevice(state rpc.DeviceState) {
	b.mu.Lock()
	b.states[state.Address] = state
	b.mu.Unlock()
	b.record("update %s", state.Address)
}

func (b *fakeBus) SetSearching(on bool) { b.record("searching %t", on) }

func (b *fakeBus) EmitUnregisteredDevice(address string) { b.record("unregistered %s", address) }

func (b *fakeBus) EmitSearchStopped(status int32) { b.record("search-stopped %d", status) }

func (b *fakeBus) EmitButtonPressRequired(address string) { b.record("button %s", address) }

func (b *fakeBus) EmitListeningStopped(address string, status int32) {
	b.record("listening-stopped %s %d", address, status)
}

func (b *fakeBus) EmitLiveStopped(address string, status int32) {
	b.record("live-stopped %s %d", address, status)
}

func (b *fakeBus) EmitSyncState(address string, state int32) {
	b.record("sync %s %d", address, state)
}

func (b *fakeBus) state(address string) rpc.DeviceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[address]
}

// await consumes events until the wanted one arrives.
func (b *fakeBus) await(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-b.events:
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("no %q event", want)
		}
	}
}

func frame(opcode, status byte, payload ...byte) []byte {
	buf := []byte{opcode, status, byte(len(payload))}
	return append(buf, payload...)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
