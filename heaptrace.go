// Package heaptrace is a configuration-driven memory-debugging layer.
// It interposes on an allocator's lifecycle operations to detect heap
// corruption, use-after-free, and leaks. Features are selected through
// a single options string, normally supplied in the HEAPTRACE_OPTIONS
// environment variable; a failed or absent configuration leaves every
// debugging feature disabled rather than aborting the host process.
package heaptrace

import (
	"sync"
	"unsafe"

	"github.com/heaptrace/heaptrace/internal/allocator"
	"github.com/heaptrace/heaptrace/internal/config"
	"github.com/heaptrace/heaptrace/internal/debug"
	"github.com/heaptrace/heaptrace/internal/logging"
)

var (
	initOnce sync.Once
	debugger *debug.Debugger

	// fallback serves allocation traffic when debugging is disabled.
	fallback = allocator.NewSystemAllocator()
)

// Init builds the configuration from HEAPTRACE_OPTIONS and arms the
// debugging layer over a system allocator. Initialization happens once;
// later calls return the first outcome. The result reports whether
// debugging is enabled. Init must complete before allocation traffic
// starts.
func Init() bool {
	return initFrom(config.EnvSource(config.DefaultEnvVar))
}

// InitString is Init with an explicit options string.
func InitString(options string) bool {
	return initFrom(config.StringSource(options))
}

func initFrom(source config.Source) bool {
	initOnce.Do(func() {
		cfg, err := config.Build(source)
		if err != nil {
			// Build already logged the diagnostics and usage.
			return
		}

		d, err := debug.New(cfg, allocator.NewSystemAllocator())
		if err != nil {
			logging.Default().Error("heaptrace disabled", "error", err)
			return
		}

		debugger = d
	})

	return debugger != nil
}

// Enabled reports whether the debugging layer is armed.
func Enabled() bool {
	return debugger != nil
}

// Malloc allocates through the debugging layer when armed, or straight
// through the base allocator otherwise.
func Malloc(size uint64) unsafe.Pointer {
	if debugger != nil {
		return debugger.Malloc(size)
	}
	return fallback.Alloc(uintptr(size))
}

// Free releases an allocation obtained from Malloc or Realloc.
func Free(ptr unsafe.Pointer) {
	if debugger != nil {
		debugger.Free(ptr)
		return
	}
	fallback.Free(ptr)
}

// Realloc resizes an allocation obtained from Malloc.
func Realloc(ptr unsafe.Pointer, size uint64) unsafe.Pointer {
	if debugger != nil {
		return debugger.Realloc(ptr, size)
	}
	return fallback.Realloc(ptr, uintptr(size))
}

// Shutdown drains the free-track quarantine and emits the leak report
// when those features are configured.
func Shutdown() {
	if debugger != nil {
		debugger.Shutdown()
	}
}
