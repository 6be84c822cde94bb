package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/fkcurrie/hub75-bcm/internal/board"
	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
	"github.com/fkcurrie/hub75-bcm/pkg/timer"
)

// toggle drives pin high and low count times, sleeping half of period after
// each edge, and reports how many edges read back correctly.
func toggle(ctx context.Context, io *gpio.Controller, sleep func(time.Duration), pin gpio.Pin, count int, period time.Duration) int {
	ok := 0
	for i := 0; i < count && ctx.Err() == nil; i++ {
		io.Set(pin.Mask())
		if io.Level().Has(pin) {
			ok++
		}
		sleep(period / 2)

		io.Clear(pin.Mask())
		if !io.Level().Has(pin) {
			ok++
		}
		sleep(period / 2)
	}
	return ok
}

func main() {
	var (
		pin      = flag.Uint("pin", 5, "BCM GPIO pin to toggle")
		count    = flag.Int("count", 10, "number of on/off cycles")
		period   = flag.Duration("period", time.Second, "length of one on/off cycle")
		device   = flag.String("device", mmap.DefaultDevice, "memory device to map registers from")
		chip     = flag.String("chip", gpio.DefaultChip, "GPIO character device checked for claims")
		slowdown = flag.Int("slowdown", 0, "extra repeats of every GPIO write")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	p := gpio.Pin(*pin)
	if *pin > 255 || !p.Valid() {
		log.Fatal().Uint("pin", *pin).Msg("Pin must be in bank 0")
	}
	if unix.Geteuid() != 0 {
		log.Error().Msg("You must run this program as root")
		os.Exit(1)
	}

	b, err := board.Detect()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to identify board")
	}
	if !b.ValidPins.Has(p) {
		log.Fatal().Stringer("pin", p).Stringer("board", b).Msg("Pin is not on this board's header")
	}
	if err := gpio.CheckUnclaimed(*chip, p.Mask()); err != nil {
		log.Warn().Err(err).Msg("Pin is claimed by another driver")
	}

	block, err := mmap.OpenDevice(*device, b.PeripheralBase, gpio.RegisterOffset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to map GPIO registers")
	}
	defer block.Close()

	tm, err := timer.OpenDevice(*device, b.PeripheralBase)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to map system timer")
	}
	defer tm.Close()

	io := gpio.New(block, b.ValidPins, *slowdown)
	io.ConfigureOutputs(p.Mask())
	defer io.Clear(p.Mask())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Stringer("pin", p).Int("count", *count).Dur("period", *period).Msg("Starting GPIO test")
	start := tm.Read()
	ok := toggle(ctx, io, tm.Sleep, p, *count, *period)
	elapsed := time.Duration(timer.Elapsed(start, tm.Read())) * timer.Rate.Period()

	log.Info().
		Int("edges_ok", ok).
		Int("edges", 2**count).
		Dur("elapsed", elapsed).
		Msg("GPIO test finished")
}
