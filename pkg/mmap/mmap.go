// Package mmap maps fixed-size peripheral register blocks from physical memory
// and exposes them as 32-bit registers.
package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	// BlockSize is the size in bytes of every mapped register window
	BlockSize = 4096
	// DefaultDevice is the physical memory device
	DefaultDevice = "/dev/mem"
)

var (
	// ErrPermissionDenied is returned when the memory device cannot be opened
	// for lack of privilege.
	ErrPermissionDenied = errors.New("permission denied opening memory device")
	// ErrMapFailed is returned when the kernel refuses the mapping.
	ErrMapFailed = errors.New("failed to map register block")
)

// Registers is a word-addressed view over 32-bit device registers.
type Registers interface {
	// Load reads the register at the given word index
	Load(word int) uint32
	// Store writes the register at the given word index
	Store(word int, value uint32)
}

// Block is an owned mapping of one BlockSize window of physical memory.
type Block struct {
	base   uintptr
	offset uintptr
	region []byte
	words  []uint32
	once   sync.Once
	logger zerolog.Logger
}

// Option configures how a block is opened
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger for map and unmap events. The default derives
// from the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Open maps the register block at base+offset from /dev/mem.
func Open(base, offset uintptr, opts ...Option) (*Block, error) {
	return OpenDevice(DefaultDevice, base, offset, opts...)
}

// OpenDevice maps the register block at base+offset from the given device.
func OpenDevice(path string, base, offset uintptr, opts ...Option) (*Block, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("component", "mmap").Logger()

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %w", ErrPermissionDenied, path, err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	region, err := unix.Mmap(
		int(f.Fd()),
		int64(base+offset),
		BlockSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("%w at 0x%X+0x%X: %w", ErrMapFailed, base, offset, err)
	}
	if len(region) < BlockSize {
		unix.Munmap(region)
		return nil, fmt.Errorf("%w at 0x%X+0x%X: short mapping of %d bytes", ErrMapFailed, base, offset, len(region))
	}

	logger.Debug().
		Str("device", path).
		Str("base", fmt.Sprintf("0x%X", base)).
		Str("offset", fmt.Sprintf("0x%X", offset)).
		Msg("mapped register block")

	return &Block{
		base:   base,
		offset: offset,
		region: region,
		words:  unsafe.Slice((*uint32)(unsafe.Pointer(&region[0])), BlockSize/4),
		logger: logger,
	}, nil
}

// Base returns the physical base address the block was mapped relative to
func (b *Block) Base() uintptr {
	return b.base
}

// Offset returns the page offset of the block from its base
func (b *Block) Offset() uintptr {
	return b.offset
}

// Load reads a register with an atomic, uncached 32-bit access.
func (b *Block) Load(word int) uint32 {
	return atomic.LoadUint32(&b.words[word])
}

// Store writes a register with an atomic 32-bit access.
func (b *Block) Store(word int, value uint32) {
	atomic.StoreUint32(&b.words[word], value)
}

// Close unmaps the block. Only the first call releases the mapping.
func (b *Block) Close() error {
	var err error
	b.once.Do(func() {
		b.words = nil
		err = unix.Munmap(b.region)
		b.region = nil
		if err == nil {
			b.logger.Debug().Str("offset", fmt.Sprintf("0x%X", b.offset)).Msg("unmapped register block")
		}
	})
	return err
}
