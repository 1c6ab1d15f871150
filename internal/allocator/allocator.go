// Package allocator provides the base memory allocator wrapped by the
// heaptrace debugging layer. It implements a minimal but functional
// allocator backed by Go-managed memory, with pointer tracking and
// atomic statistics counters.
package allocator

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// MinimumAlignment is the smallest alignment the allocator guarantees
// for returned pointers. The configuration layer rounds front-guard
// sizes up to this value so user pointers stay aligned.
const MinimumAlignment = 16

// Allocator defines the interface for memory allocators.
type Allocator interface {
	Alloc(size uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
	Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer
	TotalAllocated() uintptr
	TotalFreed() uintptr
	ActiveAllocations() int
	Stats() AllocatorStats
	Reset()
}

// AllocatorStats provides allocation statistics.
type AllocatorStats struct {
	TotalAllocated    uintptr
	TotalFreed        uintptr
	ActiveAllocations int
	PeakAllocations   int
	AllocationCount   uint64
	FreeCount         uint64
	BytesInUse        uintptr
}

// Config holds allocator construction parameters.
type Config struct {
	AlignmentSize uintptr
	MemoryLimit   uintptr
}

// Option mutates a Config.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		AlignmentSize: MinimumAlignment,
		MemoryLimit:   1024 * 1024 * 1024, // 1GB limit
	}
}

// WithAlignment sets the allocation alignment.
func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// WithMemoryLimit sets the total in-use byte limit; zero disables it.
func WithMemoryLimit(limit uintptr) Option {
	return func(c *Config) { c.MemoryLimit = limit }
}

// SystemAllocator wraps Go's memory allocator. Allocated blocks are
// retained in a pointer-keyed map until freed so the garbage collector
// cannot reclaim them while the debugging layer still references them.
type SystemAllocator struct {
	config          *Config
	allocatedSlices map[unsafe.Pointer][]byte
	totalAllocated  uintptr
	totalFreed      uintptr
	allocationCount uint64
	freeCount       uint64
	peakAllocations int
	mu              sync.RWMutex
}

// NewSystemAllocator creates a new system allocator.
func NewSystemAllocator(opts ...Option) *SystemAllocator {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &SystemAllocator{
		config:          config,
		allocatedSlices: make(map[unsafe.Pointer][]byte),
	}
}

// Alloc allocates memory from the system allocator.
func (sa *SystemAllocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	alignedSize := AlignUp(size, sa.config.AlignmentSize)
	if alignedSize == 0 {
		return nil // Overflow
	}

	if sa.config.MemoryLimit > 0 {
		current := atomic.LoadUintptr(&sa.totalAllocated) - atomic.LoadUintptr(&sa.totalFreed)
		if current+alignedSize > sa.config.MemoryLimit {
			return nil // Out of memory
		}
	}

	slice := make([]byte, alignedSize)
	ptr := unsafe.Pointer(&slice[0])

	sa.mu.Lock()
	sa.allocatedSlices[ptr] = slice
	if len(sa.allocatedSlices) > sa.peakAllocations {
		sa.peakAllocations = len(sa.allocatedSlices)
	}
	sa.mu.Unlock()

	atomic.AddUintptr(&sa.totalAllocated, alignedSize)
	atomic.AddUint64(&sa.allocationCount, 1)

	return ptr
}

// Free releases memory allocated by the system allocator. Freeing an
// unknown pointer is a no-op.
func (sa *SystemAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	var size uintptr

	sa.mu.Lock()
	if slice, exists := sa.allocatedSlices[ptr]; exists {
		size = uintptr(len(slice))
		delete(sa.allocatedSlices, ptr)
	}
	sa.mu.Unlock()

	if size == 0 {
		return
	}

	atomic.AddUintptr(&sa.totalFreed, size)
	atomic.AddUint64(&sa.freeCount, 1)
}

// Realloc reallocates memory, preserving the old contents up to the
// smaller of the two sizes.
func (sa *SystemAllocator) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if ptr == nil {
		return sa.Alloc(newSize)
	}

	if newSize == 0 {
		sa.Free(ptr)
		return nil
	}

	var oldSize uintptr

	sa.mu.RLock()
	if slice, exists := sa.allocatedSlices[ptr]; exists {
		oldSize = uintptr(len(slice))
	}
	sa.mu.RUnlock()

	newPtr := sa.Alloc(newSize)
	if newPtr == nil {
		return nil
	}

	if oldSize > 0 {
		copySize := oldSize
		if newSize < oldSize {
			copySize = newSize
		}
		copyMemory(newPtr, ptr, copySize)
	}

	sa.Free(ptr)

	return newPtr
}

// UsableSize returns the full size of the block backing ptr, or zero
// for unknown pointers.
func (sa *SystemAllocator) UsableSize(ptr unsafe.Pointer) uintptr {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if slice, exists := sa.allocatedSlices[ptr]; exists {
		return uintptr(len(slice))
	}
	return 0
}

// TotalAllocated returns total allocated bytes.
func (sa *SystemAllocator) TotalAllocated() uintptr {
	return atomic.LoadUintptr(&sa.totalAllocated)
}

// TotalFreed returns total freed bytes.
func (sa *SystemAllocator) TotalFreed() uintptr {
	return atomic.LoadUintptr(&sa.totalFreed)
}

// ActiveAllocations returns the number of live allocations.
func (sa *SystemAllocator) ActiveAllocations() int {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	return len(sa.allocatedSlices)
}

// Stats returns allocation statistics.
func (sa *SystemAllocator) Stats() AllocatorStats {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	return AllocatorStats{
		TotalAllocated:    atomic.LoadUintptr(&sa.totalAllocated),
		TotalFreed:        atomic.LoadUintptr(&sa.totalFreed),
		ActiveAllocations: len(sa.allocatedSlices),
		PeakAllocations:   sa.peakAllocations,
		AllocationCount:   atomic.LoadUint64(&sa.allocationCount),
		FreeCount:         atomic.LoadUint64(&sa.freeCount),
		BytesInUse:        atomic.LoadUintptr(&sa.totalAllocated) - atomic.LoadUintptr(&sa.totalFreed),
	}
}

// Reset drops every live allocation and zeroes the counters.
func (sa *SystemAllocator) Reset() {
	sa.mu.Lock()
	sa.allocatedSlices = make(map[unsafe.Pointer][]byte)
	sa.peakAllocations = 0
	sa.mu.Unlock()

	atomic.StoreUintptr(&sa.totalAllocated, 0)
	atomic.StoreUintptr(&sa.totalFreed, 0)
	atomic.StoreUint64(&sa.allocationCount, 0)
	atomic.StoreUint64(&sa.freeCount, 0)
}

// Utility functions.

// AlignUp aligns a size up to the nearest multiple of alignment, which
// must be a power of two.
func AlignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

// copyMemory copies size bytes from src to dst.
func copyMemory(dst, src unsafe.Pointer, size uintptr) {
	dstSlice := unsafe.Slice((*byte)(dst), size)
	srcSlice := unsafe.Slice((*byte)(src), size)
	copy(dstSlice, srcSlice)
}
