// Package board maps Raspberry Pi models to the peripheral base address and
// the GPIO pins their header exposes.
package board

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/host/v3/distro"

	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
)

var (
	// ErrUnknownModel is returned when the model string is empty or not a
	// Raspberry Pi
	ErrUnknownModel = errors.New("unknown board model")
	// ErrUnsupported is returned for boards whose GPIO block is not a BCM283x
	// style block
	ErrUnsupported = errors.New("board not supported")
)

// Peripheral base addresses per SoC family
const (
	BCM2835Base uintptr = 0x20000000
	BCM2836Base uintptr = 0x3F000000
	BCM2711Base uintptr = 0xFE000000
)

// Board describes one detected board.
type Board struct {
	Model          string
	PeripheralBase uintptr
	ValidPins      gpio.Mask
}

func (b Board) String() string {
	return fmt.Sprintf("%s (peripherals at 0x%08X)", b.Model, b.PeripheralBase)
}

func mask(pins ...gpio.Pin) gpio.Mask {
	var m gpio.Mask
	for _, p := range pins {
		m |= p.Mask()
	}
	return m
}

// Pins on the 26-pin header of the first Model A and B boards
var (
	header26Rev1 = mask(0, 1, 4, 7, 8, 9, 10, 11, 14, 15, 17, 18, 21, 22, 23, 24, 25)
	header26Rev2 = mask(2, 3, 4, 7, 8, 9, 10, 11, 14, 15, 17, 18, 22, 23, 24, 25, 27)
)

type family struct {
	prefix string
	base   uintptr
}

// Longer prefixes come first so "Zero 2" is not taken for "Zero".
var families = []family{
	{"Raspberry Pi 5", 0},
	{"Raspberry Pi Compute Module 5", 0},
	{"Raspberry Pi 500", 0},
	{"Raspberry Pi 400", BCM2711Base},
	{"Raspberry Pi 4", BCM2711Base},
	{"Raspberry Pi Compute Module 4", BCM2711Base},
	{"Raspberry Pi 3", BCM2836Base},
	{"Raspberry Pi 2", BCM2836Base},
	{"Raspberry Pi Zero 2", BCM2836Base},
	{"Raspberry Pi Compute Module 3", BCM2836Base},
	{"Raspberry Pi Zero", BCM2835Base},
	{"Raspberry Pi Compute Module", BCM2835Base},
	{"Raspberry Pi Model", BCM2835Base},
}

// Lookup returns the board for a device tree model string such as
// "Raspberry Pi 4 Model B Rev 1.4".
func Lookup(model string) (Board, error) {
	model = strings.TrimSpace(strings.TrimRight(model, "\x00"))
	if model == "" {
		return Board{}, ErrUnknownModel
	}

	for _, f := range families {
		if !strings.HasPrefix(model, f.prefix) {
			continue
		}
		if f.base == 0 {
			return Board{}, fmt.Errorf("%w: %s has an RP1 I/O controller", ErrUnsupported, model)
		}
		return Board{
			Model:          model,
			PeripheralBase: f.base,
			ValidPins:      validPins(model),
		}, nil
	}
	return Board{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

func validPins(model string) gpio.Mask {
	if !strings.HasPrefix(model, "Raspberry Pi Model") || strings.Contains(model, "Plus") {
		return gpio.Bank0
	}
	if strings.HasSuffix(model, "Rev 1") {
		return header26Rev1
	}
	return header26Rev2
}

// Detect reads the device tree model of the running board.
func Detect() (Board, error) {
	return Lookup(distro.DTModel())
}
