package hub75

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

// DefaultScrollInterval is the time between scroll steps
const DefaultScrollInterval = 10 * time.Millisecond

// ErrPanelUsed is returned by Run on a panel that has already run
var ErrPanelUsed = errors.New("panel has already been run")

// State is the render loop state.
type State int32

const (
	// Idle means Run has not been called
	Idle State = iota
	// Running means the render loop owns the hardware
	Running
	// Stopped is terminal; the panel is blank
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FrameSink receives the frame after every scroll step. Publish runs on the
// render thread and must copy what it keeps before returning.
type FrameSink interface {
	Publish(fb *matrix.FrameBuffer)
}

// Option configures a Panel
type Option func(*Panel)

// WithScroll sets the time between scroll steps. Zero or less disables
// scrolling.
func WithScroll(interval time.Duration) Option {
	return func(p *Panel) {
		p.scroll = interval
	}
}

// WithFrameSink publishes every scrolled frame to sink
func WithFrameSink(sink FrameSink) Option {
	return func(p *Panel) {
		p.sink = sink
	}
}

// WithClock replaces time.Now for scroll timing
func WithClock(now func() time.Time) Option {
	return func(p *Panel) {
		p.now = now
	}
}

// WithLogger sets the logger for loop start and stop
func WithLogger(l zerolog.Logger) Option {
	return func(p *Panel) {
		p.logger = l
	}
}

// Panel is the render loop: it owns a driver, a sleeper and a frame buffer
// and refreshes the panel until told to stop.
type Panel struct {
	drv     *Driver
	sleeper Sleeper
	fb      *matrix.FrameBuffer

	scroll time.Duration
	sink   FrameSink
	now    func() time.Time
	logger zerolog.Logger

	state  atomic.Int32
	sweeps atomic.Uint64
}

// NewPanel creates a render loop. fb must match the driver geometry.
func NewPanel(drv *Driver, sleeper Sleeper, fb *matrix.FrameBuffer, opts ...Option) (*Panel, error) {
	g := drv.Geometry()
	if fb.Rows() != g.Rows || fb.Cols() != g.Columns {
		return nil, fmt.Errorf("frame buffer is %dx%d, panel is %dx%d", fb.Cols(), fb.Rows(), g.Columns, g.Rows)
	}

	p := &Panel{
		drv:     drv,
		sleeper: sleeper,
		fb:      fb,
		scroll:  DefaultScrollInterval,
		now:     time.Now,
		logger:  log.Logger.With().Str("component", "hub75").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State returns the current loop state
func (p *Panel) State() State {
	return State(p.state.Load())
}

// Sweeps returns the number of completed sweeps
func (p *Panel) Sweeps() uint64 {
	return p.sweeps.Load()
}

// Sweep refreshes every double-row once. It must not be called while Run is
// active.
func (p *Panel) Sweep() {
	p.drv.Sweep(p.fb, p.sleeper)
	p.sweeps.Add(1)
}

// Run refreshes the panel on a locked OS thread until ctx is done, scrolling
// src across it when scrolling is enabled. Without scrolling, src is loaded
// once from its left edge. A nil src shows the frame buffer as is. Cancellation is checked only between sweeps, so a sweep in progress
// always completes. On return the panel is blank and Run reports the context
// cause.
func (p *Panel) Run(ctx context.Context, src *matrix.Image) error {
	if src != nil {
		if err := src.Fits(p.fb.Rows(), p.fb.Cols()); err != nil {
			return err
		}
	}
	if !p.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrPanelUsed
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var stop atomic.Bool
	release := context.AfterFunc(ctx, func() {
		stop.Store(true)
	})
	defer release()
	if ctx.Err() != nil {
		stop.Store(true)
	}

	defer func() {
		p.drv.Blank()
		p.state.Store(int32(Stopped))
		p.logger.Info().Uint64("sweeps", p.Sweeps()).Msg("Render loop stopped")
	}()

	scrolling := src != nil && p.scroll > 0
	if src != nil && !scrolling {
		p.fb.Load(src)
	}
	p.logger.Info().
		Bool("scroll", scrolling).
		Dur("interval", p.scroll).
		Msg("Render loop started")

	p.publish()
	last := p.now()
	for !stop.Load() {
		p.Sweep()
		if !scrolling {
			continue
		}
		if now := p.now(); now.Sub(last) >= p.scroll {
			p.fb.AdvanceFromSource(src)
			last = now
			p.publish()
		}
	}
	return context.Cause(ctx)
}

func (p *Panel) publish() {
	if p.sink != nil {
		p.sink.Publish(p.fb)
	}
}
