package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/tuhiproject/tuhi/internal/ble"
	"github.com/tuhiproject/tuhi/internal/config"
	"github.com/tuhiproject/tuhi/internal/daemon"
	"github.com/tuhiproject/tuhi/internal/logging"
	"github.com/tuhiproject/tuhi/internal/registry"
)

// CLI is the daemon command line.
type CLI struct {
	Verbose bool   `short:"v" help:"Enable verbose debug output"`
	BaseDir string `help:"Base directory for configuration and drawing storage" placeholder:"DIR"`
}

func (c *CLI) Run() error {
	dir := c.BaseDir
	if dir == "" {
		var err error
		dir, err = config.DefaultDir()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating base directory: %w", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if c.Verbose {
		level = "debug"
	}
	log, err := logging.New(os.Stderr, level)
	if err != nil {
		return err
	}

	reg := registry.New(
		registry.NewStore(cfg.RegistrationsPath()),
		registry.NewDrawingCache(cfg.DrawingsDir()),
		log,
	)
	if err := reg.Load(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewCentralAdapter(log)
	return daemon.New(adapter, reg, log).Run(ctx)
}

func main() {
	var cli CLI
	ktx := kong.Parse(&cli,
		kong.Name("tuhi"),
		kong.Description("DBus daemon for Wacom SmartPad ink tablets."),
		kong.UsageOnError(),
	)
	ktx.FatalIfErrorf(ktx.Run())
}
