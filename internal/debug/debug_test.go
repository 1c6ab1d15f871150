package debug

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/heaptrace/heaptrace/internal/allocator"
	"github.com/heaptrace/heaptrace/internal/config"
	"github.com/heaptrace/heaptrace/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func newDebugger(t *testing.T, options string) *Debugger {
	t.Helper()

	cfg, err := config.Build(config.StringSource(options), config.WithLogger(quietLogger()))
	require.NoError(t, err)

	d, err := New(cfg, allocator.NewSystemAllocator(), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(d.Shutdown)

	return d
}

func TestMallocFree(t *testing.T) {
	d := newDebugger(t, "")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)

	// The returned memory must be fully writable.
	data := unsafe.Slice((*byte)(ptr), 64)
	for i := range data {
		data[i] = byte(i)
	}

	d.Free(ptr)
	assert.Equal(t, 0, d.Stats().ActiveAllocations)
}

func TestMallocZero(t *testing.T) {
	d := newDebugger(t, "")
	assert.Nil(t, d.Malloc(0))
}

func TestGuardsIntact(t *testing.T) {
	d := newDebugger(t, "guard=16")

	ptr := d.Malloc(100)
	require.NotNil(t, ptr)

	// Writing the whole user region must not trip either guard.
	data := unsafe.Slice((*byte)(ptr), 100)
	for i := range data {
		data[i] = 0xff
	}

	assert.Equal(t, 0, d.VerifyLive())
	d.Free(ptr)
}

func TestRearGuardCorruption(t *testing.T) {
	d := newDebugger(t, "guard=16")

	ptr := d.Malloc(100)
	require.NotNil(t, ptr)

	// One byte past the user region lands in the rear guard.
	*(*byte)(unsafe.Add(ptr, 100)) = 0x00

	assert.Equal(t, 1, d.VerifyLive())
}

func TestFrontGuardCorruption(t *testing.T) {
	d := newDebugger(t, "front_guard=16")

	ptr := d.Malloc(32)
	require.NotNil(t, ptr)

	*(*byte)(unsafe.Add(ptr, -1)) = 0x00

	assert.Equal(t, 1, d.VerifyLive())
}

func TestFillOnAlloc(t *testing.T) {
	d := newDebugger(t, "fill_on_alloc")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)

	data := unsafe.Slice((*byte)(ptr), 64)
	for i, b := range data {
		require.Equalf(t, byte(0xeb), b, "byte %d not filled", i)
	}
	d.Free(ptr)
}

func TestFillOnAllocPartial(t *testing.T) {
	d := newDebugger(t, "fill_on_alloc=4")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)

	data := unsafe.Slice((*byte)(ptr), 64)
	for i := 0; i < 4; i++ {
		assert.Equal(t, byte(0xeb), data[i])
	}
	d.Free(ptr)
}

func TestExpandAlloc(t *testing.T) {
	d := newDebugger(t, "expand_alloc=256")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)

	// The base allocation carries the expansion padding.
	assert.GreaterOrEqual(t, uint64(d.Stats().TotalAllocated), uint64(64+256))
	d.Free(ptr)
}

func TestFreeUntracked(t *testing.T) {
	d := newDebugger(t, "")

	invalid := testutil.ToFloat64(d.met.InvalidPointers)

	var x byte
	d.Free(unsafe.Pointer(&x))

	assert.Equal(t, invalid+1, testutil.ToFloat64(d.met.InvalidPointers))
}

func TestRealloc(t *testing.T) {
	d := newDebugger(t, "guard=16")

	ptr := d.Malloc(32)
	require.NotNil(t, ptr)

	data := unsafe.Slice((*byte)(ptr), 32)
	for i := range data {
		data[i] = byte(i)
	}

	newPtr := d.Realloc(ptr, 128)
	require.NotNil(t, newPtr)

	newData := unsafe.Slice((*byte)(newPtr), 32)
	for i := range newData {
		assert.Equal(t, byte(i), newData[i])
	}

	// Shrinking keeps the prefix.
	smaller := d.Realloc(newPtr, 8)
	require.NotNil(t, smaller)
	for i, b := range unsafe.Slice((*byte)(smaller), 8) {
		assert.Equal(t, byte(i), b)
	}

	d.Free(smaller)
	assert.Equal(t, 0, d.Stats().ActiveAllocations)
}

func TestReallocUntracked(t *testing.T) {
	d := newDebugger(t, "")

	var x byte
	assert.Nil(t, d.Realloc(unsafe.Pointer(&x), 64))
}

func TestReallocNilIsMalloc(t *testing.T) {
	d := newDebugger(t, "")

	ptr := d.Realloc(nil, 64)
	require.NotNil(t, ptr)
	d.Free(ptr)
}

func TestQuarantineHoldsFreedBlocks(t *testing.T) {
	d := newDebugger(t, "free_track=2")

	ptrs := make([]unsafe.Pointer, 3)
	for i := range ptrs {
		ptrs[i] = d.Malloc(32)
		require.NotNil(t, ptrs[i])
	}

	for _, ptr := range ptrs {
		d.Free(ptr)
	}

	// Two blocks sit in quarantine, the oldest was evicted and released.
	assert.Equal(t, 2, d.quarantine.len())
	assert.Equal(t, 2, d.Stats().ActiveAllocations)

	d.Shutdown()
	assert.Equal(t, 0, d.Stats().ActiveAllocations)
}

func TestUseAfterFreeDetected(t *testing.T) {
	d := newDebugger(t, "free_track=10")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)
	d.Free(ptr)

	// The block is quarantined and filled; a write through the stale
	// pointer must be caught when the block is verified.
	*(*byte)(unsafe.Add(ptr, 10)) = 0x42

	before := testutil.ToFloat64(d.met.UseAfterFree)
	d.Shutdown()
	assert.Equal(t, before+1, testutil.ToFloat64(d.met.UseAfterFree))
}

func TestFreeFillsPattern(t *testing.T) {
	d := newDebugger(t, "free_track=10")

	ptr := d.Malloc(64)
	require.NotNil(t, ptr)

	data := unsafe.Slice((*byte)(ptr), 64)
	for i := range data {
		data[i] = 0x11
	}

	d.Free(ptr)

	for i, b := range data {
		require.Equalf(t, byte(0xef), b, "byte %d not filled on free", i)
	}
}

func TestLeakReport(t *testing.T) {
	d := newDebugger(t, "leak_track")

	require.NotNil(t, d.Malloc(32))
	require.NotNil(t, d.Malloc(64))

	kept := d.Malloc(16)
	require.NotNil(t, kept)
	d.Free(kept)

	assert.Equal(t, 2, d.reportLeaks())
	assert.Equal(t, float64(2), testutil.ToFloat64(d.met.LeakedAllocations))
	assert.Equal(t, float64(96), testutil.ToFloat64(d.met.LeakedBytes))
}

func TestBacktraceCaptured(t *testing.T) {
	d := newDebugger(t, "backtrace=4")

	ptr := d.Malloc(32)
	require.NotNil(t, ptr)

	d.mu.RLock()
	r := d.live[ptr]
	d.mu.RUnlock()

	require.NotNil(t, r)
	assert.NotEmpty(t, r.frames)
	assert.LessOrEqual(t, len(r.frames), 4)
	d.Free(ptr)
}

func TestBacktraceOnSignal(t *testing.T) {
	d := newDebugger(t, "backtrace_enable_on_signal")

	// Capture starts disarmed and toggles on each delivery.
	assert.False(t, d.BacktraceArmed())

	require.NoError(t, unix.Kill(os.Getpid(), d.cfg.BacktraceSignal))
	require.Eventually(t, d.BacktraceArmed, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, unix.Kill(os.Getpid(), d.cfg.BacktraceSignal))
	require.Eventually(t, func() bool { return !d.BacktraceArmed() }, 2*time.Second, 10*time.Millisecond)
}

func TestFileTrigger(t *testing.T) {
	d := newDebugger(t, "backtrace_enable_on_signal")

	path := filepath.Join(t.TempDir(), "trigger")
	stop, err := d.ArmFileTrigger(path)
	require.NoError(t, err)
	defer stop()

	require.False(t, d.BacktraceArmed())
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.Eventually(t, d.BacktraceArmed, 2*time.Second, 10*time.Millisecond)
}

func TestCheckRuntimeVersion(t *testing.T) {
	assert.NoError(t, checkRuntimeVersion("go1.22.3"))
	assert.Error(t, checkRuntimeVersion("go1.20.1"))
	// Devel builds do not parse and are allowed through.
	assert.NoError(t, checkRuntimeVersion("devel +abcdef"))
}

func TestShutdownIdempotent(t *testing.T) {
	d := newDebugger(t, "free_track=2 leak_track")

	ptr := d.Malloc(32)
	require.NotNil(t, ptr)
	d.Free(ptr)

	d.Shutdown()
	d.Shutdown()
}
