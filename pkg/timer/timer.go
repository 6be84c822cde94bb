// Package timer implements short, precise delays on top of the BCM283x
// free-running system timer.
package timer

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
)

const (
	// RegisterOffset is the offset of the system timer block from the
	// peripheral base
	RegisterOffset = 0x3000
	// Overflow is the last value of the counter before it wraps to zero
	Overflow uint32 = 0xFFFFFFFF
	// Rate is the counter frequency
	Rate = physic.MegaHertz

	// JitterAllowance is the part of a delay always spent busy-waiting, so
	// scheduler wakeup latency cannot overshoot the request.
	JitterAllowance = 60 * time.Microsecond
	// BusyWaitThreshold is the shortest OS sleep worth attempting; below it
	// busy-waiting is more precise.
	BusyWaitThreshold = 20 * time.Microsecond

	// counterWord is CLO, the low 32 bits of the counter. Word 0 is the
	// control/status register.
	counterWord = 1
)

// Timer reads the free-running counter and sleeps with sub-scheduler precision.
type Timer struct {
	regs mmap.Registers
	tick time.Duration
	// sleep is the coarse OS sleep; replaced in tests
	sleep func(time.Duration)
	block *mmap.Block
}

// Open maps the system timer block at base+RegisterOffset.
func Open(base uintptr) (*Timer, error) {
	return OpenDevice(mmap.DefaultDevice, base)
}

// OpenDevice maps the system timer block through the given memory device
func OpenDevice(path string, base uintptr, opts ...mmap.Option) (*Timer, error) {
	block, err := mmap.OpenDevice(path, base, RegisterOffset, opts...)
	if err != nil {
		return nil, err
	}
	t := New(block)
	t.block = block
	return t, nil
}

// New creates a timer over a system timer register block
func New(regs mmap.Registers) *Timer {
	return &Timer{
		regs:  regs,
		tick:  Rate.Period(),
		sleep: time.Sleep,
	}
}

// Close releases the register block if the timer mapped it
func (t *Timer) Close() error {
	if t.block == nil {
		return nil
	}
	return t.block.Close()
}

// Read returns the current counter value.
func (t *Timer) Read() uint32 {
	return t.regs.Load(counterWord)
}

// Elapsed returns the number of ticks from before to after, allowing for one
// wrap of the counter in between.
func Elapsed(before, after uint32) uint32 {
	if after >= before {
		return after - before
	}
	return after + (Overflow - before) + 1
}

// SleepNanos delays for roughly n nanoseconds. It is best effort: it never
// returns much early and never blocks much beyond the request.
func (t *Timer) SleepNanos(n uint32) {
	remaining := time.Duration(n)

	if remaining-JitterAllowance >= BusyWaitThreshold {
		before := t.Read()
		t.sleep(remaining - JitterAllowance)
		slept := time.Duration(Elapsed(before, t.Read())) * t.tick
		if slept >= remaining {
			return
		}
		remaining -= slept
	}

	t.busyWait(t.ticks(remaining))
}

// Sleep delays for roughly d, clamped to what SleepNanos can express.
func (t *Timer) Sleep(d time.Duration) {
	switch {
	case d <= 0:
		return
	case d > time.Duration(^uint32(0)):
		d = time.Duration(^uint32(0))
	}
	t.SleepNanos(uint32(d))
}

// ticks converts a duration to counter ticks, rounding up.
func (t *Timer) ticks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((d + t.tick - 1) / t.tick)
}

func (t *Timer) busyWait(ticks uint32) {
	if ticks == 0 {
		return
	}
	start := t.Read()
	for Elapsed(start, t.Read()) < ticks {
	}
}
