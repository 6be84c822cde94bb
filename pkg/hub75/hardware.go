package hub75

import (
	"errors"
	"sync"

	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
	"github.com/fkcurrie/hub75-bcm/pkg/timer"
)

// Hardware owns the mapped GPIO and system timer blocks behind a driver.
type Hardware struct {
	Driver *Driver
	Timer  *timer.Timer
	gpio   *mmap.Block

	once     sync.Once
	closeErr error
}

// OpenHardware maps the GPIO and timer blocks through device (DefaultDevice
// when empty) at the given peripheral base and configures the panel pins.
// Any failure is a *StartupError and leaves nothing mapped.
func OpenHardware(device string, base uintptr, cfg Config, opts ...mmap.Option) (*Hardware, error) {
	if device == "" {
		device = mmap.DefaultDevice
	}

	block, err := mmap.OpenDevice(device, base, gpio.RegisterOffset, opts...)
	if err != nil {
		return nil, startupError("map gpio", err)
	}

	tm, err := timer.OpenDevice(device, base, opts...)
	if err != nil {
		block.Close()
		return nil, startupError("map timer", err)
	}

	drv, err := NewDriver(block, cfg)
	if err != nil {
		tm.Close()
		block.Close()
		return nil, err
	}

	return &Hardware{Driver: drv, Timer: tm, gpio: block}, nil
}

// Close blanks the panel and releases both mappings. Later calls return the
// first call's result.
func (h *Hardware) Close() error {
	h.once.Do(func() {
		h.Driver.Blank()
		h.closeErr = errors.Join(h.Timer.Close(), h.gpio.Close())
	})
	return h.closeErr
}
