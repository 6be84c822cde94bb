package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the character device for bank 0
const DefaultChip = "gpiochip0"

// ErrPinClaimed is returned when a kernel consumer holds a pin we want to drive.
var ErrPinClaimed = errors.New("pin claimed by another consumer")

// Claim describes a pin held by another consumer
type Claim struct {
	Pin      Pin
	Consumer string
}

// LineInfoer is the part of a gpiocdev chip used to inspect lines
type LineInfoer interface {
	LineInfo(offset int) (gpiocdev.LineInfo, error)
}

// Claims returns the pins in m that the kernel reports as in use.
func Claims(chip LineInfoer, m Mask) ([]Claim, error) {
	var claims []Claim
	for _, p := range m.Pins() {
		info, err := chip.LineInfo(int(p))
		if err != nil {
			return nil, fmt.Errorf("failed to read line info for %s: %w", p, err)
		}
		if info.Used {
			claims = append(claims, Claim{Pin: p, Consumer: info.Consumer})
		}
	}
	return claims, nil
}

// CheckUnclaimed opens the named GPIO chip and fails if any pin in m is held
// by a kernel driver or another process. Register writes to such pins fight
// the other owner.
func CheckUnclaimed(chipName string, m Mask) error {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", chipName, err)
	}
	defer chip.Close()

	claims, err := Claims(chip, m)
	if err != nil {
		return err
	}
	errs := make([]error, 0, len(claims))
	for _, c := range claims {
		errs = append(errs, fmt.Errorf("%w: %s held by %q", ErrPinClaimed, c.Pin, c.Consumer))
	}
	return errors.Join(errs...)
}
