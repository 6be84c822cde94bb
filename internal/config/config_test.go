package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/hub75-bcm/pkg/hub75"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub75.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, hub75.DefaultConfig(), c.HUB75())
	assert.Equal(t, 10*time.Millisecond, c.ScrollInterval())
	assert.Equal(t, "/dev/mem", c.Board.Device)
	assert.Empty(t, c.Preview.Addr)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
board:
  model: Raspberry Pi 3
  peripheral_base: 0x3F000000
panel:
  rows: 32
  columns: 64
  slowdown: 3
scroll:
  interval: 25ms
pins:
  e: 25
preview:
  addr: ":8080"
log:
  level: debug
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Raspberry Pi 3", c.Board.Model)
	assert.Equal(t, uint64(0x3F000000), c.Board.PeripheralBase)
	assert.Equal(t, "/dev/mem", c.Board.Device, "unset keys keep defaults")
	assert.Equal(t, hub75.Geometry{Rows: 32, Columns: 64, SubPanels: 2}, c.Panel.Geometry)
	assert.Equal(t, 3, c.Panel.Slowdown)
	assert.Equal(t, uint32(hub75.DefaultBaseDwell), c.Panel.BaseDwellNs)
	assert.True(t, c.Scroll.Enabled)
	assert.Equal(t, 25*time.Millisecond, c.ScrollInterval())
	assert.EqualValues(t, 25, c.Pins.E)
	assert.EqualValues(t, 4, c.Pins.OE)
	assert.Equal(t, ":8080", c.Preview.Addr)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestScrollDisabled(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "scroll:\n  enabled: false\n  interval: 0s\n"))
	require.NoError(t, err)
	assert.Zero(t, c.ScrollInterval())
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "panel: [rows"},
		{"bad duration", "scroll:\n  interval: soon\n"},
		{"shared pins", "pins:\n  clk: 4\n"},
		{"odd rows", "panel:\n  rows: 15\n"},
		{"negative slowdown", "panel:\n  slowdown: -1\n"},
		{"zero interval", "scroll:\n  interval: 0s\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"no device", "board:\n  device: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsErrors(t *testing.T) {
	c := DefaultConfig()
	c.Panel.Slowdown = -1
	c.Log.Level = "loud"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slowdown")
	assert.Contains(t, err.Error(), "log level")
}

func TestPinsValidateErrorSurfaces(t *testing.T) {
	c := DefaultConfig()
	c.Pins.LAT = c.Pins.CLK
	assert.ErrorIs(t, c.Validate(), hub75.ErrInvalidPins)
}
