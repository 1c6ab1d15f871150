// Package debug implements the allocation shims of the heaptrace
// layer. A Debugger wraps a base allocator and, driven entirely by the
// parsed configuration, adds guard regions, fill patterns, free
// tracking, leak tracking, and backtrace capture to every allocation
// passing through it.
package debug

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	semver "github.com/Masterminds/semver/v3"

	"github.com/heaptrace/heaptrace/internal/allocator"
	"github.com/heaptrace/heaptrace/internal/config"
	"github.com/heaptrace/heaptrace/internal/logging"
	"github.com/heaptrace/heaptrace/internal/metrics"
)

// minimumRuntime is the oldest Go runtime the unsafe block layout has
// been validated against.
const minimumRuntime = ">= 1.21.0"

// Debugger interposes on an allocator's lifecycle operations. It is
// constructed once, before any allocation activity, and its
// configuration is never mutated afterwards.
type Debugger struct {
	cfg  *config.Config
	base allocator.Allocator
	log  *logging.Logger
	met  *metrics.Registry

	mu   sync.RWMutex
	live map[unsafe.Pointer]*record

	quarantine *quarantine

	backtraceArmed atomic.Bool
	seq            atomic.Uint64

	stopTrigger func()
	shutdown    sync.Once
}

// Option configures a Debugger.
type Option func(*Debugger)

// WithLogger routes corruption and leak reports to the given logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Debugger) { d.log = l }
}

// WithMetrics overrides the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(d *Debugger) { d.met = m }
}

// New creates a Debugger for the given configuration and base
// allocator. When backtrace_enable_on_signal is configured, the signal
// trigger is armed before returning.
func New(cfg *config.Config, base allocator.Allocator, opts ...Option) (*Debugger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil configuration")
	}
	if base == nil {
		return nil, fmt.Errorf("nil base allocator")
	}

	if err := checkRuntimeVersion(runtime.Version()); err != nil {
		return nil, err
	}

	d := &Debugger{
		cfg:  cfg,
		base: base,
		log:  logging.Default(),
		met:  metrics.Get(),
		live: make(map[unsafe.Pointer]*record),
	}

	for _, opt := range opts {
		opt(d)
	}

	if cfg.Enabled(config.FreeTrack) {
		d.quarantine = newQuarantine(cfg.FreeTrackAllocations)
	}

	// Immediate capture unless deferred to a signal.
	d.backtraceArmed.Store(cfg.BacktraceEnabled)

	if cfg.BacktraceEnableOnSignal {
		d.stopTrigger = d.armSignalTrigger()
	}

	return d, nil
}

// checkRuntimeVersion gates the unsafe block layout on the running Go
// version. Unparsable versions (devel builds) are allowed through.
func checkRuntimeVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "go"))
	if err != nil {
		return nil
	}

	c, err := semver.NewConstraint(minimumRuntime)
	if err != nil {
		return err
	}

	if !c.Check(v) {
		return fmt.Errorf("unsupported Go runtime %s: heaptrace requires %s", version, minimumRuntime)
	}

	return nil
}

// Layout helpers. Guard and expansion sizes apply only when their
// feature bit is set.

func (d *Debugger) frontBytes() uint64 {
	if d.cfg.Enabled(config.FrontGuard) {
		return d.cfg.FrontGuardBytes
	}
	return 0
}

func (d *Debugger) rearBytes() uint64 {
	if d.cfg.Enabled(config.RearGuard) {
		return d.cfg.RearGuardBytes
	}
	return 0
}

func (d *Debugger) expandBytes() uint64 {
	if d.cfg.Enabled(config.ExpandAlloc) {
		return d.cfg.ExpandAllocBytes
	}
	return 0
}

// Malloc allocates size bytes through the base allocator, decorated
// with whatever features the configuration enables. Returns nil when
// the base allocator fails or the decorated size overflows.
func (d *Debugger) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	front := d.frontBytes()
	rear := d.rearBytes()
	expand := d.expandBytes()

	overhead := front + rear + expand
	if size > math.MaxInt64-overhead {
		return nil
	}
	total := uintptr(front + size + rear + expand)

	base := d.base.Alloc(total)
	if base == nil {
		return nil
	}

	r := &record{
		base:  base,
		user:  unsafe.Add(base, int(front)),
		size:  size,
		total: total,
		seq:   d.seq.Add(1),
	}

	d.writeGuards(r)

	if d.cfg.Enabled(config.FillOnAlloc) {
		fillRegion(r, d.cfg.FillOnAllocBytes, d.cfg.FillAllocValue)
	}

	if d.backtraceArmed.Load() {
		r.frames = CaptureBacktrace(1, int(d.cfg.BacktraceFrames))
	}

	d.mu.Lock()
	d.live[r.user] = r
	tracked := len(d.live)
	d.mu.Unlock()

	d.met.AllocationsTotal.Inc()
	d.met.TrackedAllocations.Set(float64(tracked))

	return r.user
}

// Free verifies and releases an allocation. With free_track enabled the
// block is quarantined instead of released, and the oldest quarantined
// block is verified and released in its place.
func (d *Debugger) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	d.mu.Lock()
	r, ok := d.live[ptr]
	if ok {
		delete(d.live, ptr)
	}
	tracked := len(d.live)
	d.mu.Unlock()

	if !ok {
		d.met.InvalidPointers.Inc()
		d.log.Error("free of untracked pointer", "pointer", fmt.Sprintf("%p", ptr))
		return
	}

	d.met.FreesTotal.Inc()
	d.met.TrackedAllocations.Set(float64(tracked))

	d.reportCorruption(r, d.verifyGuards(r))

	if d.cfg.Enabled(config.FillOnFree) {
		fillRegion(r, d.cfg.FillOnFreeBytes, d.cfg.FillFreeValue)
	}

	if d.quarantine != nil {
		if d.cfg.FreeTrackBacktraceNumFrames > 0 {
			r.freeFrames = CaptureBacktrace(1, int(d.cfg.FreeTrackBacktraceNumFrames))
		}

		if evicted := d.quarantine.push(r); evicted != nil {
			d.verifyQuarantined(evicted)
			d.base.Free(evicted.base)
		}
		d.met.QuarantineSize.Set(float64(d.quarantine.len()))
		return
	}

	d.base.Free(r.base)
}

// Realloc resizes an allocation, preserving contents up to the smaller
// of the two sizes. The old block goes through the full Free path.
func (d *Debugger) Realloc(ptr unsafe.Pointer, newSize uint64) unsafe.Pointer {
	if ptr == nil {
		return d.Malloc(newSize)
	}

	if newSize == 0 {
		d.Free(ptr)
		return nil
	}

	d.mu.RLock()
	r, ok := d.live[ptr]
	d.mu.RUnlock()

	if !ok {
		d.met.InvalidPointers.Inc()
		d.log.Error("realloc of untracked pointer", "pointer", fmt.Sprintf("%p", ptr))
		return nil
	}

	newPtr := d.Malloc(newSize)
	if newPtr == nil {
		return nil
	}

	copySize := r.size
	if newSize < copySize {
		copySize = newSize
	}
	copy(unsafe.Slice((*byte)(newPtr), copySize), unsafe.Slice((*byte)(ptr), copySize))

	d.Free(ptr)
	d.met.ReallocsTotal.Inc()

	return newPtr
}

// VerifyLive checks the guards of every live allocation and returns the
// number found corrupted.
func (d *Debugger) VerifyLive() int {
	d.mu.RLock()
	records := make([]*record, 0, len(d.live))
	for _, r := range d.live {
		records = append(records, r)
	}
	d.mu.RUnlock()

	corrupted := 0
	for _, r := range records {
		if found := d.verifyGuards(r); len(found) > 0 {
			d.reportCorruption(r, found)
			corrupted++
		}
	}

	return corrupted
}

// Stats returns the base allocator's statistics.
func (d *Debugger) Stats() allocator.AllocatorStats {
	return d.base.Stats()
}

// Shutdown drains the quarantine, runs the leak report when configured,
// and disarms any trigger. Safe to call more than once.
func (d *Debugger) Shutdown() {
	d.shutdown.Do(func() {
		if d.stopTrigger != nil {
			d.stopTrigger()
		}

		if d.quarantine != nil {
			for _, r := range d.quarantine.drain() {
				d.verifyQuarantined(r)
				d.base.Free(r.base)
			}
			d.met.QuarantineSize.Set(0)
		}

		if d.cfg.Enabled(config.LeakTrack) {
			d.reportLeaks()
		}
	})
}

// reportCorruption logs every corrupted guard byte of a record.
func (d *Debugger) reportCorruption(r *record, found []Corruption) {
	if len(found) == 0 {
		return
	}

	for _, c := range found {
		d.met.GuardViolations.WithLabelValues(c.Guard).Inc()
		d.log.Error("guard corrupted",
			"pointer", fmt.Sprintf("%p", r.user),
			"guard", c.Guard,
			"offset", c.Offset,
			"found", fmt.Sprintf("%#02x", c.Found),
			"expected", fmt.Sprintf("%#02x", c.Want),
		)
	}

	if len(r.frames) > 0 {
		d.log.Error("allocated at", "backtrace", FormatBacktrace(r.frames))
	}
}
