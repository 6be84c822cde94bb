package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/fkcurrie/hub75-bcm/internal/board"
	"github.com/fkcurrie/hub75-bcm/internal/config"
	"github.com/fkcurrie/hub75-bcm/internal/imageload"
	"github.com/fkcurrie/hub75-bcm/internal/preview"
	"github.com/fkcurrie/hub75-bcm/pkg/gpio"
	"github.com/fkcurrie/hub75-bcm/pkg/hub75"
	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

// errTimeout is the stop cause when -duration runs out
var errTimeout = errors.New("display duration elapsed")

type flags struct {
	configPath string
	slowdown   int
	scroll     time.Duration
	duration   time.Duration
	preview    string
	logLevel   string
	device     string
	text       string
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, map[string]bool, error) {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	fs.IntVar(&f.slowdown, "slowdown", 1, "extra repeats of every GPIO write")
	fs.DurationVar(&f.scroll, "scroll", hub75.DefaultScrollInterval, "time between scroll steps, 0 to disable")
	fs.DurationVar(&f.duration, "duration", 0, "stop after this long, 0 to run until interrupted")
	fs.StringVar(&f.preview, "preview", "", "serve a websocket frame preview on this address")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	fs.StringVar(&f.device, "device", "/dev/mem", "memory device to map registers from")
	fs.StringVar(&f.text, "text", "", "scroll this text instead of an image")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) {
		set[fl.Name] = true
	})
	return f, set, nil
}

// apply overrides config values with the flags given on the command line
func (f *flags) apply(cfg *config.Config, set map[string]bool) {
	if set["slowdown"] {
		cfg.Panel.Slowdown = f.slowdown
	}
	if set["scroll"] {
		cfg.Scroll.Enabled = f.scroll > 0
		if f.scroll > 0 {
			cfg.Scroll.Interval = f.scroll
		}
	}
	if set["preview"] {
		cfg.Preview.Addr = f.preview
	}
	if set["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if set["device"] {
		cfg.Board.Device = f.device
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// resolveBoard picks the peripheral base: an explicit address wins over an
// explicit model, which wins over detection.
func resolveBoard(cfg config.BoardConfig, detect func() (board.Board, error)) (board.Board, error) {
	var b board.Board
	var err error
	if cfg.Model != "" {
		b, err = board.Lookup(cfg.Model)
	} else {
		b, err = detect()
	}

	if cfg.PeripheralBase != 0 {
		if err != nil {
			b = board.Board{Model: "custom", ValidPins: gpio.Bank0}
		}
		b.PeripheralBase = uintptr(cfg.PeripheralBase)
		return b, nil
	}
	return b, err
}

func loadSource(path, text string, rows, cols int) (*matrix.Image, error) {
	var src *matrix.Image
	if text != "" {
		src = imageload.Text(text, rows, cols, color.White)
	} else {
		var err error
		if src, err = imageload.Load(path, rows); err != nil {
			return nil, err
		}
	}
	if err := src.Fits(rows, cols); err != nil {
		return nil, err
	}
	return src, nil
}

func stopReason(cause error) string {
	switch {
	case errors.Is(cause, errTimeout):
		return "Timeout reached"
	case errors.Is(cause, context.Canceled):
		return "Interrupt received"
	default:
		return "Stopped"
	}
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <image>\n       %s [flags] -text <message>\n", fs.Name(), fs.Name())
		fs.PrintDefaults()
	}
	f, set, _ := parseFlags(fs, os.Args[1:])

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", f.configPath).Msg("Failed to load config")
	}
	f.apply(cfg, set)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	zerolog.SetGlobalLevel(level)

	if f.text == "" && fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	if unix.Geteuid() != 0 {
		log.Error().Msg("You must run this program as root")
		os.Exit(1)
	}

	geom := cfg.Panel.Geometry
	src, err := loadSource(fs.Arg(0), f.text, geom.Rows, geom.Columns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load image")
	}
	log.Info().Int("width", src.Width).Int("height", src.Height).Msg("Loaded image")

	b, err := resolveBoard(cfg.Board, board.Detect)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to identify board")
	}
	log.Info().Stringer("board", b).Msg("Detected board")

	hcfg := cfg.HUB75()
	hcfg.ValidPins = b.ValidPins
	if err := gpio.CheckUnclaimed(cfg.Board.Chip, hcfg.Pins.All()); err != nil {
		log.Warn().Err(err).Msg("Panel pins are claimed by another driver")
	}

	hw, err := hub75.OpenHardware(cfg.Board.Device, b.PeripheralBase, hcfg)
	if err != nil {
		var se *hub75.StartupError
		if errors.As(err, &se) {
			log.Fatal().Err(se.Err).Str("stage", se.Stage).Msg("Failed to initialize hardware")
		}
		log.Fatal().Err(err).Msg("Failed to initialize hardware")
	}

	fb := matrix.NewFrameBuffer(geom.Rows, geom.Columns)
	if cfg.ScrollInterval() > 0 {
		fb.AdvanceFromSource(src)
	}

	opts := []hub75.Option{hub75.WithScroll(cfg.ScrollInterval())}
	var srv *preview.Server
	if cfg.Preview.Addr != "" {
		srv = preview.NewServer(geom.Rows, geom.Columns)
		opts = append(opts, hub75.WithFrameSink(srv))
	}

	panel, err := hub75.NewPanel(hw.Driver, hw.Timer, fb, opts...)
	if err != nil {
		hw.Close()
		log.Fatal().Err(err).Msg("Failed to create panel")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, f.duration, errTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, done := context.WithCancel(gctx)
	g.Go(func() error {
		defer done()
		cause := panel.Run(runCtx, src)
		log.Info().Err(cause).Msg(stopReason(cause))
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(runCtx, cfg.Preview.Addr)
		})
	}

	err = g.Wait()
	if cerr := hw.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("Failed to release hardware")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Preview server failed")
	}
}
