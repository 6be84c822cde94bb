// Package hub75 drives a HUB75 RGB LED panel by bit-banging GPIO registers,
// using binary code modulation for 8 bits per color channel.
package hub75

import (
	"fmt"

	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
)

// Sleeper holds the panel lit for one bitplane
type Sleeper interface {
	SleepNanos(n uint32)
}

// Config describes the panel wiring and drive parameters.
type Config struct {
	Pins     PinMap
	Geometry Geometry
	// Slowdown is the number of extra repeats of every register write, for
	// hosts that write faster than the GPIO pins settle.
	Slowdown int
	// BaseDwell is the display time of bitplane 0 in nanoseconds
	BaseDwell uint32
	// ValidPins are the pins the board exposes; zero means all of bank 0
	ValidPins gpio.Mask
}

// DefaultConfig returns the configuration for a 32×16 panel on the Adafruit
// bonnet
func DefaultConfig() Config {
	return Config{
		Pins:      DefaultPins,
		Geometry:  DefaultGeometry,
		Slowdown:  1,
		BaseDwell: DefaultBaseDwell,
	}
}

// Validate checks pins and geometry
func (c Config) Validate() error {
	if err := c.Pins.Validate(); err != nil {
		return err
	}
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.BaseDwell == 0 {
		return fmt.Errorf("base dwell must be positive")
	}
	if c.BaseDwell > ^uint32(0)>>(ColorDepth-1) {
		return fmt.Errorf("base dwell %dns overflows bitplane %d", c.BaseDwell, ColorDepth-1)
	}
	return nil
}

// Driver speaks the HUB75 wire protocol over a GPIO controller. It is not
// safe for concurrent use.
type Driver struct {
	io       *gpio.Controller
	pins     PinMap
	geometry Geometry
	rowMask  gpio.Mask
	timings  Timings

	colorClock gpio.Mask
}

// NewDriver configures every panel pin as an output on the GPIO register
// block regs. A pin the controller refuses to configure is a startup error.
func NewDriver(regs mmap.Registers, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, startupError("validate config", err)
	}

	valid := cfg.ValidPins
	if valid == 0 {
		valid = gpio.Bank0
	}

	d := &Driver{
		io:         gpio.New(regs, valid, cfg.Slowdown),
		pins:       cfg.Pins,
		geometry:   cfg.Geometry,
		rowMask:    cfg.Geometry.RowMask(cfg.Pins),
		timings:    NewTimings(cfg.BaseDwell),
		colorClock: cfg.Pins.ColorClock(),
	}

	want := d.Outputs()
	if got := d.io.ConfigureOutputs(want); got != want {
		return nil, startupError("configure outputs",
			fmt.Errorf("%w: requested %s, configured %s", ErrPinMismatch, want, got))
	}
	d.Blank()
	return d, nil
}

// Outputs returns every pin the panel drives
func (d *Driver) Outputs() gpio.Mask {
	return d.pins.Control() | d.pins.Color() | d.rowMask
}

// Controller returns the underlying GPIO controller
func (d *Driver) Controller() *gpio.Controller {
	return d.io
}

// Geometry returns the panel geometry
func (d *Driver) Geometry() Geometry {
	return d.geometry
}

// RowMask returns the row address pins in use
func (d *Driver) RowMask() gpio.Mask {
	return d.rowMask
}

// Timings returns the dwell of every bitplane
func (d *Driver) Timings() Timings {
	return d.timings
}

// RowAddressBits returns the address pins that must be high to select
// doubleRow: bit 0 of the index drives A, bit 4 drives E.
func (d *Driver) RowAddressBits(doubleRow int) gpio.Mask {
	var m gpio.Mask
	for i, p := range d.pins.Address() {
		if doubleRow&(1<<i) != 0 {
			m |= p.Mask()
		}
	}
	return m & d.rowMask
}

// SendPlane shifts one bitplane of one double-row into the panel, latches it
// and keeps it lit for the plane's dwell. The panel is blank on return.
func (d *Driver) SendPlane(fb *matrix.FrameBuffer, doubleRow, plane int, s Sleeper) {
	bottom := doubleRow + d.geometry.Rows/2

	d.io.Clear(d.colorClock)
	for col := 0; col < d.geometry.Columns; col++ {
		d.io.Clear(d.colorClock)
		bits := d.pins.PlaneBits(fb.At(doubleRow, col), fb.At(bottom, col), plane)
		d.io.WriteMasked(bits, d.colorClock)
		d.io.Set(d.pins.CLK.Mask())
	}
	d.io.Clear(d.colorClock)

	d.io.WriteMasked(d.RowAddressBits(doubleRow), d.rowMask)
	d.io.Set(d.pins.LAT.Mask())
	d.io.Clear(d.pins.LAT.Mask())

	d.io.Clear(d.pins.OE.Mask())
	s.SleepNanos(d.timings[plane])
	d.io.Set(d.pins.OE.Mask())
}

// Sweep sends every bitplane of every double-row once.
func (d *Driver) Sweep(fb *matrix.FrameBuffer, s Sleeper) {
	for row := 0; row < d.geometry.DoubleRows(); row++ {
		for plane := 0; plane < ColorDepth; plane++ {
			d.SendPlane(fb, row, plane, s)
		}
	}
}

// Blank turns the LED drivers off
func (d *Driver) Blank() {
	d.io.Set(d.pins.OE.Mask())
}
