package hub75

import (
	"errors"
	"fmt"

	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

// ErrInvalidPins is returned by PinMap.Validate
var ErrInvalidPins = errors.New("invalid pin assignment")

// PinMap assigns one GPIO pin to every HUB75 signal.
type PinMap struct {
	OE  gpio.Pin `yaml:"oe"`  // Output enable, active low
	CLK gpio.Pin `yaml:"clk"` // Shift register clock
	LAT gpio.Pin `yaml:"lat"` // Latch
	A   gpio.Pin `yaml:"a"`   // Row address bit 0
	B   gpio.Pin `yaml:"b"`   // Row address bit 1
	C   gpio.Pin `yaml:"c"`   // Row address bit 2
	D   gpio.Pin `yaml:"d"`   // Row address bit 3
	E   gpio.Pin `yaml:"e"`   // Row address bit 4
	R1  gpio.Pin `yaml:"r1"`  // Red data for upper half
	G1  gpio.Pin `yaml:"g1"`  // Green data for upper half
	B1  gpio.Pin `yaml:"b1"`  // Blue data for upper half
	R2  gpio.Pin `yaml:"r2"`  // Red data for lower half
	G2  gpio.Pin `yaml:"g2"`  // Green data for lower half
	B2  gpio.Pin `yaml:"b2"`  // Blue data for lower half
}

// DefaultPins is the Adafruit RGB Matrix Bonnet wiring
var DefaultPins = PinMap{
	OE:  4,
	CLK: 17,
	LAT: 21,
	A:   22,
	B:   26,
	C:   27,
	D:   20,
	E:   24,
	R1:  5,
	G1:  13,
	B1:  6,
	R2:  12,
	G2:  16,
	B2:  23,
}

type namedPin struct {
	name string
	pin  gpio.Pin
}

func (m PinMap) named() []namedPin {
	return []namedPin{
		{"oe", m.OE}, {"clk", m.CLK}, {"lat", m.LAT},
		{"a", m.A}, {"b", m.B}, {"c", m.C}, {"d", m.D}, {"e", m.E},
		{"r1", m.R1}, {"g1", m.G1}, {"b1", m.B1},
		{"r2", m.R2}, {"g2", m.G2}, {"b2", m.B2},
	}
}

// Validate checks that every role has its own pin inside bank 0.
func (m PinMap) Validate() error {
	var errs []error
	seen := map[gpio.Pin]string{}
	for _, np := range m.named() {
		if !np.pin.Valid() {
			errs = append(errs, fmt.Errorf("%w: %s on %s is outside GPIO0-%d", ErrInvalidPins, np.name, np.pin, gpio.NumPins-1))
			continue
		}
		if other, ok := seen[np.pin]; ok {
			errs = append(errs, fmt.Errorf("%w: %s and %s share %s", ErrInvalidPins, other, np.name, np.pin))
			continue
		}
		seen[np.pin] = np.name
	}
	return errors.Join(errs...)
}

// All returns every pin in the map
func (m PinMap) All() gpio.Mask {
	var all gpio.Mask
	for _, np := range m.named() {
		all |= np.pin.Mask()
	}
	return all
}

// Address returns the five row address pins, A first
func (m PinMap) Address() [5]gpio.Pin {
	return [5]gpio.Pin{m.A, m.B, m.C, m.D, m.E}
}

// Color returns the six color data pins
func (m PinMap) Color() gpio.Mask {
	return m.R1.Mask() | m.G1.Mask() | m.B1.Mask() | m.R2.Mask() | m.G2.Mask() | m.B2.Mask()
}

// ColorClock returns the color data pins plus the clock
func (m PinMap) ColorClock() gpio.Mask {
	return m.Color() | m.CLK.Mask()
}

// Control returns output enable, clock and latch
func (m PinMap) Control() gpio.Mask {
	return m.OE.Mask() | m.CLK.Mask() | m.LAT.Mask()
}

// PlaneBits returns the color pins to raise when shifting one column of the
// given bitplane: top drives R1/G1/B1 and bottom drives R2/G2/B2. Every
// channel is tested on its own.
func (m PinMap) PlaneBits(top, bottom matrix.Pixel, plane int) gpio.Mask {
	bit := uint8(1) << plane
	var out gpio.Mask
	if top.R&bit != 0 {
		out |= m.R1.Mask()
	}
	if top.G&bit != 0 {
		out |= m.G1.Mask()
	}
	if top.B&bit != 0 {
		out |= m.B1.Mask()
	}
	if bottom.R&bit != 0 {
		out |= m.R2.Mask()
	}
	if bottom.G&bit != 0 {
		out |= m.G2.Mask()
	}
	if bottom.B&bit != 0 {
		out |= m.B2.Mask()
	}
	return out
}
