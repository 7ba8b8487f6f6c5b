package daemon

import (
	"context"
	"time"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/wire"
)

// searchTimeout bounds one search; the scan ends on its own if the
// client never stops it.
const searchTimeout = 60 * time.Second

type searchRun struct {
	owner  string
	cancel context.CancelFunc
}

// StartSearch scans for devices held in registration mode. One search
// runs at a time; a repeat call by the owning client is a no-op.
func (d *Daemon) StartSearch(sender string) error {
	d.mu.Lock()
	if d.search != nil {
		same := d.search.owner == sender
		d.mu.Unlock()
		if same {
			return nil
		}
		return wire.Errorf(wire.KindBusy, "another client is searching")
	}
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	d.search = &searchRun{owner: sender, cancel: cancel}
	d.discovered = make(map[string]ble.Advertisement)
	bus := d.bus
	d.mu.Unlock()

	if bus != nil {
		bus.SetSearching(true)
	}
	d.log.Info().Str("client", sender).Msg("search started")
	go d.runSearch(ctx)
	return nil
}

// StopSearch ends the caller's search. The terminal SearchStopped
// signal is emitted once the scan winds down.
func (d *Daemon) StopSearch(sender string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.search == nil {
		return nil
	}
	if d.search.owner != sender {
		return wire.Errorf(wire.KindBusy, "search owned by another client")
	}
	d.search.cancel()
	return nil
}

func (d *Daemon) runSearch(ctx context.Context) {
	err := d.adapter.Scan(ctx, d.onAdvertisement)
	if ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		d.log.Warn().Err(err).Msg("scan failed")
	}

	d.mu.Lock()
	if d.search != nil {
		d.search.cancel()
		d.search = nil
	}
	bus := d.bus
	d.mu.Unlock()

	if bus != nil {
		bus.SetSearching(false)
		bus.EmitSearchStopped(statusOf(err))
	}
	d.log.Info().Msg("search stopped")
}

// onAdvertisement filters the scan stream down to unregistered
// SmartPads held in registration mode and announces each one once.
func (d *Daemon) onAdvertisement(adv ble.Advertisement) {
	if !ble.IsSmartPad(adv) || !ble.InPairingMode(adv) {
		return
	}
	if _, ok := d.registry.Device(adv.Address); ok {
		return
	}

	d.mu.Lock()
	_, seen := d.discovered[adv.Address]
	d.discovered[adv.Address] = adv
	bus := d.bus
	d.mu.Unlock()
	if seen || bus == nil {
		return
	}

	d.log.Info().Str("device", adv.Address).Str("name", adv.Name).Msg("device in registration mode")
	if err := bus.AddDevice(d.stateFor(adv.Address)); err != nil {
		d.log.Warn().Err(err).Str("device", adv.Address).Msg("exporting discovered device")
		return
	}
	bus.EmitUnregisteredDevice(adv.Address)
}
