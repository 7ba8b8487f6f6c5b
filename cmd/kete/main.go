package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tuhiproject/tuhi/internal/client"
	"github.com/tuhiproject/tuhi/internal/tui"
)

// CLI is the root command structure for kete.
type CLI struct {
	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive TUI (default)"`

	List     ListCmd     `cmd:"" help:"List registered devices"`
	Search   SearchCmd   `cmd:"" help:"Search for devices in registration mode"`
	Register RegisterCmd `cmd:"" help:"Register a device found by search"`
	Listen   ListenCmd   `cmd:"" help:"Listen to a device and download its drawings"`
	Fetch    FetchCmd    `cmd:"" help:"Save a device's drawings as JSON files"`
	Live     LiveCmd     `cmd:"" help:"Forward a device's pen events as a virtual input device"`
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()
	return tui.Run(cl)
}

// --- List Command ---

type ListCmd struct{}

func (c *ListCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	devices, err := cl.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No registered devices.")
		fmt.Println("Register one with: kete search")
		return nil
	}
	for _, dev := range devices {
		battery := "?"
		switch dev.BatteryState {
		case client.BatteryCharging:
			battery = fmt.Sprintf("%d%% (charging)", dev.BatteryPercent)
		case client.BatteryDischarging:
			battery = fmt.Sprintf("%d%%", dev.BatteryPercent)
		}
		fmt.Printf("  %s  %-24s battery %-16s %d drawing(s)\n",
			dev.Address, dev.Name, battery, len(dev.DrawingsAvailable))
	}
	return nil
}

// --- Search Command ---

type SearchCmd struct {
	Timeout time.Duration `default:"60s" help:"Give up after this long"`
}

func (c *SearchCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	events, err := cl.Subscribe()
	if err != nil {
		return err
	}
	if err := cl.StartSearch(); err != nil {
		return err
	}
	defer cl.StopSearch()

	fmt.Println("Searching. Hold the tablet button until its LED blinks blue.")
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	deadline := time.After(c.Timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("daemon connection lost")
			}
			switch ev.Kind {
			case client.EventUnregisteredDevice:
				dev, err := cl.Device(ev.Device)
				if err != nil {
					return err
				}
				fmt.Printf("  found %s (%s)\n", dev.Name, dev.Address)
				fmt.Printf("  register with: kete register %s\n", dev.Address)
			case client.EventSearchStopped:
				return nil
			}
		case <-interrupt:
			return nil
		case <-deadline:
			return nil
		}
	}
}

// --- Register Command ---

type RegisterCmd struct {
	Device string `arg:"" help:"Device address or name prefix"`
}

func (c *RegisterCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	events, err := cl.Subscribe()
	if err != nil {
		return err
	}
	dev, err := cl.Find(c.Device)
	if err != nil {
		return err
	}

	// Registration needs the device held in registration mode, which
	// only shows up while a search is running.
	if err := cl.StartSearch(); err != nil {
		return err
	}
	defer cl.StopSearch()

	done := make(chan error, 1)
	go func() { done <- cl.Register(dev.Path) }()
	for {
		select {
		case ev := <-events:
			if ev.Kind == client.EventButtonPressRequired && ev.Device == dev.Path {
				fmt.Println("Press the button on the tablet to confirm.")
			}
		case err := <-done:
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s).\n", dev.Name, dev.Address)
			return nil
		}
	}
}

// --- Listen Command ---

type ListenCmd struct {
	Device string `arg:"" help:"Device address or name prefix"`
}

func (c *ListenCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	events, err := cl.Subscribe()
	if err != nil {
		return err
	}
	dev, err := cl.Find(c.Device)
	if err != nil {
		return err
	}
	if err := cl.StartListening(dev.Path); err != nil {
		return err
	}
	defer cl.StopListening(dev.Path)

	fmt.Printf("Listening to %s. Press the tablet button to sync, ctrl-c to stop.\n", dev.Name)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("daemon connection lost")
			}
			if ev.Device != dev.Path {
				continue
			}
			switch ev.Kind {
			case client.EventSyncState:
				if ev.Status != 0 {
					fmt.Println("  syncing...")
				}
			case client.EventDeviceChanged:
				fresh, err := cl.Device(dev.Path)
				if err == nil && len(fresh.DrawingsAvailable) != len(dev.DrawingsAvailable) {
					fmt.Printf("  %d drawing(s) available\n", len(fresh.DrawingsAvailable))
					dev = fresh
				}
			case client.EventListeningStopped:
				if ev.Status != 0 {
					return fmt.Errorf("listening stopped with status %d", ev.Status)
				}
				return nil
			}
		case <-interrupt:
			return nil
		}
	}
}

// --- Fetch Command ---

type FetchCmd struct {
	Device string `arg:"" help:"Device address or name prefix"`
	Output string `short:"o" default:"." help:"Directory to write JSON files into"`
}

func (c *FetchCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	dev, err := cl.Find(c.Device)
	if err != nil {
		return err
	}
	if len(dev.DrawingsAvailable) == 0 {
		fmt.Println("No drawings available. Sync some with: kete listen", dev.Address)
		return nil
	}
	for _, ts := range dev.DrawingsAvailable {
		data, err := cl.GetJSONData(dev.Path, 1, ts)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%s.json", dev.Address, time.Unix(int64(ts), 0).Format("2006-01-02-15-04-05"))
		path := c.Output + "/" + name
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			return err
		}
		fmt.Println("  wrote", path)
	}
	return nil
}

// --- Live Command ---

type LiveCmd struct {
	Device string `arg:"" help:"Device address or name prefix"`
}

func (c *LiveCmd) Run() error {
	cl, err := client.Connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	events, err := cl.Subscribe()
	if err != nil {
		return err
	}
	dev, err := cl.Find(c.Device)
	if err != nil {
		return err
	}

	uhid, err := os.OpenFile("/dev/uhid", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening /dev/uhid: %w", err)
	}
	defer uhid.Close()

	if err := cl.StartLive(dev.Path, int(uhid.Fd())); err != nil {
		return err
	}
	defer cl.StopLive(dev.Path)

	fmt.Printf("Live mode on %s. Pen events feed a virtual tablet, ctrl-c to stop.\n", dev.Name)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("daemon connection lost")
			}
			if ev.Kind == client.EventLiveStopped && ev.Device == dev.Path {
				if ev.Status != 0 {
					return fmt.Errorf("live mode stopped with status %d", ev.Status)
				}
				return nil
			}
		case <-interrupt:
			return nil
		}
	}
}

func main() {
	var cli CLI
	ktx := kong.Parse(&cli,
		kong.Name("kete"),
		kong.Description("Client for the tuhi SmartPad daemon."),
		kong.UsageOnError(),
	)
	ktx.FatalIfErrorf(ktx.Run())
}
