// Package gpiotest simulates a BCM283x GPIO register block for tests.
package gpiotest

import (
	"sync"

	"github.com/fkcurrie/hub75-bcm/pkg/mmap"
)

// Register word indexes the simulation understands
const (
	SetWord   = 7
	ClearWord = 10
	LevelWord = 13
)

// Op is one recorded register store.
type Op struct {
	Word  int
	Value uint32
}

// Bank implements mmap.Registers with the semantics of the real block: a
// store to the set word raises the written bits in the level word, a store to
// the clear word lowers them. Every store is recorded.
type Bank struct {
	mu    sync.Mutex
	mem   *mmap.Memory
	ops   []Op
	Trace bool
}

// NewBank returns an empty bank that records every store
func NewBank() *Bank {
	return &Bank{mem: mmap.NewMemory(), Trace: true}
}

// Load reads a register
func (b *Bank) Load(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem.Load(word)
}

// Store writes a register with set/clear side effects on the level word
func (b *Bank) Store(word int, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Trace {
		b.ops = append(b.ops, Op{Word: word, Value: value})
	}
	switch word {
	case SetWord:
		b.mem.Store(LevelWord, b.mem.Load(LevelWord)|value)
	case ClearWord:
		b.mem.Store(LevelWord, b.mem.Load(LevelWord)&^value)
	default:
		b.mem.Store(word, value)
	}
}

// Level returns the simulated pin levels
func (b *Bank) Level() uint32 {
	return b.Load(LevelWord)
}

// SetLevel forces the simulated pin levels, as if driven externally
func (b *Bank) SetLevel(v uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mem.Store(LevelWord, v)
}

// Ops returns a copy of the recorded stores
func (b *Bank) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.ops...)
}

// Reset forgets the recorded stores
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = b.ops[:0]
}

// Levels replays the recorded stores from the given starting level and
// returns the level after each set or clear store.
func Levels(start uint32, ops []Op) []uint32 {
	levels := make([]uint32, 0, len(ops))
	cur := start
	for _, op := range ops {
		switch op.Word {
		case SetWord:
			cur |= op.Value
		case ClearWord:
			cur &^= op.Value
		default:
			continue
		}
		levels = append(levels, cur)
	}
	return levels
}
