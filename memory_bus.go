// memory_bus.go - Guest memory bus for the emulated console

/*
(c) 2024 - 2026 The Vita3K Go contributors
https://github.com/8bitDream/Vita3K

License: GPLv3 or later
*/

/*
memory_bus.go - Guest Memory Bus

This module provides the emulated address space the rendering-context layer
writes completion notifications into and reads surface data out of. It keeps
a contiguous block of guest memory and supports memory-mapped I/O regions so
emulated hardware can observe accesses to specific pages.

Core Features:

    Contiguous guest memory allocated once at construction.
    Little-endian 32-bit read/write operations.
    Memory-mapped I/O via a page-keyed region table (page mask 0xFFF00,
    page size 0x100).
    Thread-safe access through a read/write mutex; the GPU wait thread and
    the emulation thread may touch guest memory concurrently.
*/

package main

import (
	"encoding/binary"
	"sync"
)

const (
	GUEST_MEMORY_SIZE = 16 * 1024 * 1024
	GUEST_PAGE_SIZE   = 0x100
	GUEST_PAGE_MASK   = 0xFFF00
	GUEST_WORD_SIZE   = 4
)

// MemoryBus is the guest-memory interface the render context depends on.
// Implementations must be safe for concurrent use.
type MemoryBus interface {
	Read32(addr uint32) uint32
	Write32(addr uint32, value uint32)
	Reset()
}

// GuestBus implements MemoryBus over a contiguous block of guest memory
// plus a table of memory-mapped I/O regions.
type GuestBus struct {
	memory  []byte
	mutex   sync.RWMutex
	mapping map[uint32][]IORegion
}

// IORegion is a memory-mapped I/O range with read/write intercepts.
type IORegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

// NewGuestBus allocates the guest address space and an empty I/O table.
func NewGuestBus() *GuestBus {
	return &GuestBus{
		memory:  make([]byte, GUEST_MEMORY_SIZE),
		mapping: make(map[uint32][]IORegion),
	}
}

// MapIO registers an I/O region spanning [start, end]. The region is indexed
// under every page it overlaps so lookups stay O(regions-per-page).
func (bus *GuestBus) MapIO(start, end uint32, onRead func(addr uint32) uint32, onWrite func(addr uint32, value uint32)) {
	region := IORegion{
		start:   start,
		end:     end,
		onRead:  onRead,
		onWrite: onWrite,
	}
	firstPage := start & GUEST_PAGE_MASK
	lastPage := end & GUEST_PAGE_MASK
	for page := firstPage; page <= lastPage; page += GUEST_PAGE_SIZE {
		bus.mapping[page] = append(bus.mapping[page], region)
	}
}

// Write32 performs a thread-safe little-endian 32-bit write. A write that
// lands in a registered I/O region invokes the region's intercept and is
// still stored to backing memory so later reads see the last written value.
func (bus *GuestBus) Write32(addr uint32, value uint32) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	if addr > GUEST_MEMORY_SIZE-GUEST_WORD_SIZE {
		logWarn("Write32 to out-of-bounds guest address 0x%08X", addr)
		return
	}

	if regions, exists := bus.mapping[addr&GUEST_PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				break
			}
		}
	}

	binary.LittleEndian.PutUint32(bus.memory[addr:addr+GUEST_WORD_SIZE], value)
}

// Read32 performs a thread-safe little-endian 32-bit read, consulting the
// I/O table first.
func (bus *GuestBus) Read32(addr uint32) uint32 {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()

	if addr > GUEST_MEMORY_SIZE-GUEST_WORD_SIZE {
		logWarn("Read32 from out-of-bounds guest address 0x%08X", addr)
		return 0
	}

	if regions, exists := bus.mapping[addr&GUEST_PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				return region.onRead(addr)
			}
		}
	}

	return binary.LittleEndian.Uint32(bus.memory[addr : addr+GUEST_WORD_SIZE])
}

// ReadRange copies length bytes starting at addr into a fresh slice.
// Used by the surface cache when uploading guest surface contents.
func (bus *GuestBus) ReadRange(addr, length uint32) []byte {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()

	// length compared against the remaining space so addr+length cannot wrap
	if addr > GUEST_MEMORY_SIZE || length > GUEST_MEMORY_SIZE-addr {
		logWarn("ReadRange out of bounds: 0x%08X+0x%X", addr, length)
		return nil
	}
	out := make([]byte, length)
	copy(out, bus.memory[addr:addr+length])
	return out
}

// WriteRange copies data into guest memory starting at addr. Used by the
// surface cache's post-sync readback.
func (bus *GuestBus) WriteRange(addr uint32, data []byte) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	if addr > GUEST_MEMORY_SIZE || uint32(len(data)) > GUEST_MEMORY_SIZE-addr {
		logWarn("WriteRange out of bounds: 0x%08X+0x%X", addr, len(data))
		return
	}
	copy(bus.memory[addr:addr+uint32(len(data))], data)
}

// Reset zeroes the guest memory in a cache-friendly sweep.
func (bus *GuestBus) Reset() {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	for i := range bus.memory {
		bus.memory[i] = 0
	}
}
