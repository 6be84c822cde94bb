// Package gpio drives BCM283x GPIO bank 0 through its memory-mapped registers.
package gpio

import (
	"fmt"
	"math/bits"

	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
)

// RegisterOffset is the offset of the GPIO block from the peripheral base
const RegisterOffset = 0x200000

// Register word indexes within the GPIO block
const (
	fselWord  = 0
	setWord   = 7
	clearWord = 10
	levelWord = 13
)

const (
	// NumPins is the number of pins in bank 0 reachable on the header
	NumPins = 28
	// Bank0 has one bit set for every pin in 0..27
	Bank0 Mask = 1<<NumPins - 1

	fselOutput = 0b001
	fselMask   = 0b111
)

// Pin is a single GPIO pin number. It is never a bitmask.
type Pin uint8

// Mask returns the bitmask with only this pin set
func (p Pin) Mask() Mask {
	return 1 << p
}

// Valid reports whether the pin exists in bank 0
func (p Pin) Valid() bool {
	return p < NumPins
}

func (p Pin) String() string {
	return fmt.Sprintf("GPIO%d", uint8(p))
}

// Mask is a set of pins, bit k standing for pin k.
type Mask uint32

// Has reports whether the pin is in the mask
func (m Mask) Has(p Pin) bool {
	return m&p.Mask() != 0
}

// Count returns the number of pins in the mask
func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Pins lists the pins in the mask in ascending order
func (m Mask) Pins() []Pin {
	pins := make([]Pin, 0, m.Count())
	for p := Pin(0); p < 32; p++ {
		if m.Has(p) {
			pins = append(pins, p)
		}
	}
	return pins
}

func (m Mask) String() string {
	return fmt.Sprintf("0x%08X", uint32(m))
}

// Controller owns the GPIO register block and tracks which pins it configured.
//
// A Controller is not safe for concurrent use. The ordering of its register
// writes is the wire protocol, so exactly one goroutine may drive it.
type Controller struct {
	regs     mmap.Registers
	valid    Mask
	outputs  Mask
	inputs   Mask
	slowdown int
}

// New creates a controller over the GPIO register block. Only pins in valid
// can ever be configured. Every Set and Clear is repeated slowdown extra times.
func New(regs mmap.Registers, valid Mask, slowdown int) *Controller {
	if slowdown < 0 {
		slowdown = 0
	}
	return &Controller{
		regs:     regs,
		valid:    valid & Bank0,
		slowdown: slowdown,
	}
}

// ConfigureOutput switches one pin to output mode in its function select register
func (c *Controller) ConfigureOutput(p Pin) {
	word := int(p / 10)
	shift := uint(p%10) * 3
	v := c.regs.Load(fselWord + word)
	v = v&^(fselMask<<shift) | fselOutput<<shift
	c.regs.Store(fselWord+word, v)
}

// ConfigureOutputs configures every valid, not yet configured pin in m as an
// output and returns the pins it configured.
func (c *Controller) ConfigureOutputs(m Mask) Mask {
	m &= c.valid
	m &^= c.outputs | c.inputs
	for p := Pin(0); p < NumPins; p++ {
		if m.Has(p) {
			c.ConfigureOutput(p)
		}
	}
	c.outputs |= m
	return m
}

// ConfigureInputs configures every valid, not yet configured pin in m as an
// input and returns the pins it configured.
func (c *Controller) ConfigureInputs(m Mask) Mask {
	m &= c.valid
	m &^= c.outputs | c.inputs
	for p := Pin(0); p < NumPins; p++ {
		if m.Has(p) {
			word := int(p / 10)
			shift := uint(p%10) * 3
			c.regs.Store(fselWord+word, c.regs.Load(fselWord+word)&^(fselMask<<shift))
		}
	}
	c.inputs |= m
	return m
}

// Outputs returns the pins configured as outputs
func (c *Controller) Outputs() Mask {
	return c.outputs
}

// Slowdown returns the number of extra repeats per register write
func (c *Controller) Slowdown() int {
	return c.slowdown
}

// Set drives the pins in m high.
func (c *Controller) Set(m Mask) {
	c.regs.Store(setWord, uint32(m))
	for i := 0; i < c.slowdown; i++ {
		c.regs.Store(setWord, uint32(m))
	}
}

// Clear drives the pins in m low.
func (c *Controller) Clear(m Mask) {
	c.regs.Store(clearWord, uint32(m))
	for i := 0; i < c.slowdown; i++ {
		c.regs.Store(clearWord, uint32(m))
	}
}

// WriteMasked makes every pin in mask follow the matching bit of value and
// leaves the other pins alone. Pins going low are cleared before any pin goes
// high.
func (c *Controller) WriteMasked(value, mask Mask) {
	c.Clear(^value & mask)
	c.Set(value & mask)
}

// Read returns the level of the configured input pins
func (c *Controller) Read() Mask {
	return Mask(c.regs.Load(levelWord)) & c.inputs
}

// Level returns the raw level register
func (c *Controller) Level() Mask {
	return Mask(c.regs.Load(levelWord))
}
