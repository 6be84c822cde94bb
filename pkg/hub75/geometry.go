package hub75

import (
	"errors"
	"fmt"

	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
)

// ColorDepth is the number of bitplanes shown per double-row
const ColorDepth = 8

// DefaultBaseDwell is the display time of bitplane 0 in nanoseconds
const DefaultBaseDwell = 1000

const maxAddressPins = 5

// ErrInvalidGeometry is returned by Geometry.Validate
var ErrInvalidGeometry = errors.New("invalid panel geometry")

// Geometry describes one panel board.
type Geometry struct {
	Rows      int `yaml:"rows"`
	Columns   int `yaml:"columns"`
	SubPanels int `yaml:"sub_panels"`
}

// DefaultGeometry is a 32×16 panel driven as two stacked halves
var DefaultGeometry = Geometry{Rows: 16, Columns: 32, SubPanels: 2}

// Validate checks that the panel splits into equal halves the address pins
// can reach.
func (g Geometry) Validate() error {
	switch {
	case g.Rows <= 0 || g.Columns <= 0:
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Columns, g.Rows)
	case g.SubPanels != 2:
		return fmt.Errorf("%w: %d sub-panels, only 2 are supported", ErrInvalidGeometry, g.SubPanels)
	case g.Rows%2 != 0:
		return fmt.Errorf("%w: %d rows do not split into two halves", ErrInvalidGeometry, g.Rows)
	case g.DoubleRows() > 1<<maxAddressPins:
		return fmt.Errorf("%w: %d double-rows exceed %d address pins", ErrInvalidGeometry, g.DoubleRows(), maxAddressPins)
	}
	return nil
}

// DoubleRows returns the number of scan lines, each driving one row in the
// top half and one in the bottom half
func (g Geometry) DoubleRows() int {
	return g.Rows / 2
}

// AddressPins returns how many row address pins the panel uses. Each tier of
// addressable row groups beyond 2 adds one pin: A always, B above 2, C above
// 4, D above 8, E above 16.
func (g Geometry) AddressPins() int {
	groups := g.Rows / g.SubPanels
	n := 1
	for limit := 2; n < maxAddressPins && groups > limit; limit *= 2 {
		n++
	}
	return n
}

// RowMask returns the address pins the panel uses
func (g Geometry) RowMask(pins PinMap) gpio.Mask {
	var m gpio.Mask
	addr := pins.Address()
	for _, p := range addr[:g.AddressPins()] {
		m |= p.Mask()
	}
	return m
}

// Timings holds the dwell time of each bitplane in nanoseconds.
type Timings [ColorDepth]uint32

// NewTimings doubles base for every bitplane, so plane k is shown for
// base·2^k.
func NewTimings(base uint32) Timings {
	var t Timings
	for k := range t {
		t[k] = base
		base *= 2
	}
	return t
}
