package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/hub75-bcm/internal/board"
	"github.com/fkcurrie/hub75-bcm/internal/config"
	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

func writePPM(t *testing.T, path string, w, h int) {
	t.Helper()
	data := append([]byte(fmt.Sprintf("P6\n%d %d\n255\n", w, h)), make([]byte, w*h*3)...)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func parse(t *testing.T, args ...string) (*flags, map[string]bool) {
	t.Helper()
	fs := flag.NewFlagSet("hub75", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, set, err := parseFlags(fs, args)
	require.NoError(t, err)
	return f, set
}

func TestFlagsOverrideOnlyWhatIsSet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Panel.Slowdown = 4
	cfg.Board.Device = "/dev/gpiomem"

	f, set := parse(t, "-scroll", "50ms", "-preview", ":9000")
	f.apply(cfg, set)

	assert.Equal(t, 4, cfg.Panel.Slowdown, "unset flag keeps config value")
	assert.Equal(t, "/dev/gpiomem", cfg.Board.Device)
	assert.Equal(t, 50*time.Millisecond, cfg.ScrollInterval())
	assert.Equal(t, ":9000", cfg.Preview.Addr)
}

func TestScrollFlagZeroDisables(t *testing.T) {
	cfg := config.DefaultConfig()
	f, set := parse(t, "-scroll", "0", "-slowdown", "0", "-log-level", "warn")
	f.apply(cfg, set)

	assert.False(t, cfg.Scroll.Enabled)
	assert.Zero(t, cfg.ScrollInterval())
	assert.Equal(t, 0, cfg.Panel.Slowdown)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestBadFlag(t *testing.T) {
	fs := flag.NewFlagSet("hub75", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, _, err := parseFlags(fs, []string{"-scroll", "fast"})
	assert.Error(t, err)
}

func TestResolveBoard(t *testing.T) {
	pi4 := func() (board.Board, error) {
		return board.Lookup("Raspberry Pi 4 Model B Rev 1.4")
	}
	unknown := func() (board.Board, error) {
		return board.Board{}, board.ErrUnknownModel
	}

	b, err := resolveBoard(config.BoardConfig{}, pi4)
	require.NoError(t, err)
	assert.Equal(t, board.BCM2711Base, b.PeripheralBase)

	b, err = resolveBoard(config.BoardConfig{Model: "Raspberry Pi 3 Model B"}, pi4)
	require.NoError(t, err)
	assert.Equal(t, board.BCM2836Base, b.PeripheralBase)

	b, err = resolveBoard(config.BoardConfig{PeripheralBase: 0x3F000000}, unknown)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x3F000000), b.PeripheralBase)
	assert.Equal(t, gpio.Bank0, b.ValidPins)

	_, err = resolveBoard(config.BoardConfig{}, unknown)
	assert.ErrorIs(t, err, board.ErrUnknownModel)
}

func TestLoadSourceText(t *testing.T) {
	src, err := loadSource("", "HELLO", 16, 32)
	require.NoError(t, err)
	assert.Equal(t, 16, src.Height)
	assert.GreaterOrEqual(t, src.Width, 32)

	_, err = loadSource("/nonexistent/image.png", "", 16, 32)
	assert.Error(t, err)
}

func TestLoadSourceRejectsNarrowImage(t *testing.T) {
	path := t.TempDir() + "/narrow.ppm"
	writePPM(t, path, 8, 16)
	_, err := loadSource(path, "", 16, 32)
	assert.ErrorIs(t, err, matrix.ErrImageTooSmall)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "Timeout reached", stopReason(errTimeout))
	assert.Equal(t, "Timeout reached", stopReason(fmt.Errorf("run: %w", errTimeout)))
	assert.Equal(t, "Interrupt received", stopReason(context.Canceled))
	assert.Equal(t, "Stopped", stopReason(errors.New("listen failed")))
}
