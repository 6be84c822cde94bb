package mmap

import "sync/atomic"

// Memory is a heap-backed register block for running drivers without hardware.
type Memory struct {
	words []uint32
}

// NewMemory returns a zeroed register block of BlockSize bytes
func NewMemory() *Memory {
	return &Memory{words: make([]uint32, BlockSize/4)}
}

// Load reads the register at word
func (m *Memory) Load(word int) uint32 {
	return atomic.LoadUint32(&m.words[word])
}

// Store writes the register at word
func (m *Memory) Store(word int, value uint32) {
	atomic.StoreUint32(&m.words[word], value)
}
