package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tuhiproject/tuhi/internal/drawing"
)

// keepDrawings is how many drawings the disk cache retains per device.
const keepDrawings = 10

// DrawingCache stores fetched drawings on disk, one JSON file per
// drawing under <base>/<address>/<timestamp>.json. Old drawings beyond
// the retention limit are purged on insert.
type DrawingCache struct {
	base string
}

// NewDrawingCache roots the cache at base.
func NewDrawingCache(base string) *DrawingCache {
	return &DrawingCache{base: base}
}

func (c *DrawingCache) deviceDir(address string) string {
	return filepath.Join(c.base, address)
}

// Put writes one drawing and purges beyond the retention limit. If the
// timestamp collides with a cached drawing the timestamp is bumped
// until unique, so no fetch ever overwrites an earlier one.
func (c *DrawingCache) Put(address string, d *drawing.Drawing) error {
	dir := c.deviceDir(address)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating drawing dir: %w", err)
	}
	for {
		if _, err := os.Stat(c.path(address, d.Timestamp)); os.IsNotExist(err) {
			break
		}
		d.Timestamp++
	}
	data, err := d.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path(address, d.Timestamp), data, 0644); err != nil {
		return fmt.Errorf("writing drawing: %w", err)
	}
	return c.purge(address)
}

// Get loads one cached drawing by timestamp.
func (c *DrawingCache) Get(address string, timestamp uint64) (*drawing.Drawing, error) {
	data, err := os.ReadFile(c.path(address, timestamp))
	if err != nil {
		return nil, fmt.Errorf("reading drawing: %w", err)
	}
	return drawing.FromJSON(data)
}

// Timestamps lists the cached drawings of one device, oldest first.
func (c *DrawingCache) Timestamps(address string) ([]uint64, error) {
	entries, err := os.ReadDir(c.deviceDir(address))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing drawings: %w", err)
	}
	var out []uint64
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok {
			continue
		}
		ts, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (c *DrawingCache) path(address string, timestamp uint64) string {
	return filepath.Join(c.deviceDir(address), strconv.FormatUint(timestamp, 10)+".json")
}

func (c *DrawingCache) purge(address string) error {
	timestamps, err := c.Timestamps(address)
	if err != nil {
		return err
	}
	for len(timestamps) > keepDrawings {
		if err := os.Remove(c.path(address, timestamps[0])); err != nil {
			return fmt.Errorf("purging drawing: %w", err)
		}
		timestamps = timestamps[1:]
	}
	return nil
}
