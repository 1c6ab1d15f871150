// Package config parses the heaptrace options string into a validated,
// typed configuration consumed by the allocation shims. The format is a
// flat list of whitespace-separated options of the form `name` or
// `name=decimal`; the parse is all-or-nothing and runs once at
// initialization time. The resulting Config is read-only afterwards.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/heaptrace/heaptrace/internal/allocator"
	"github.com/heaptrace/heaptrace/internal/logging"
)

// Options is the bitmask of enabled debug features.
type Options uint64

const (
	FrontGuard Options = 1 << iota
	RearGuard
	Backtrace
	FillOnAlloc
	FillOnFree
	ExpandAlloc
	FreeTrack
	LeakTrack
	// TrackAllocs is implied by backtrace and leak_track; it makes the
	// shims retain per-pointer records for later reporting.
	TrackAllocs
)

// Default pattern bytes written into guards and filled memory.
const (
	DefaultFillAllocValue  byte = 0xeb
	DefaultFillFreeValue   byte = 0xef
	DefaultFrontGuardValue byte = 0xaa
	DefaultRearGuardValue  byte = 0xbb
)

// defaultBacktraceSignal is SIGRTMIN+10: the kernel real-time base plus
// the two signals the C library reserves, offset by ten.
const defaultBacktraceSignal = unix.Signal(34 + 10)

// defaultFreeTrackFrames applies when free_track is enabled but
// free_track_backtrace_num_frames is never mentioned.
const defaultFreeTrackFrames = 16

// Config is the structured configuration produced by Build. It is
// written only during the build and treated as immutable by every
// thread that consults it afterwards.
type Config struct {
	options Options

	FrontGuardBytes uint64
	RearGuardBytes  uint64
	FrontGuardValue byte
	RearGuardValue  byte

	FillAllocValue   byte
	FillFreeValue    byte
	FillOnAllocBytes uint64
	FillOnFreeBytes  uint64

	ExpandAllocBytes uint64

	BacktraceFrames         uint64
	BacktraceEnabled        bool
	BacktraceEnableOnSignal bool
	BacktraceSignal         unix.Signal

	FreeTrackAllocations        uint64
	FreeTrackBacktraceNumFrames uint64
}

// Options returns the accumulated feature bitmask.
func (c *Config) Options() Options {
	return c.options
}

// Enabled reports whether every bit of opt is set.
func (c *Config) Enabled(opt Options) bool {
	return c.options&opt == opt
}

type buildOptions struct {
	log      *logging.Logger
	progname string
}

// BuildOption configures the builder.
type BuildOption func(*buildOptions)

// WithLogger routes diagnostics to the given logger.
func WithLogger(l *logging.Logger) BuildOption {
	return func(b *buildOptions) { b.log = l }
}

// WithProgname overrides the program name included in diagnostics.
func WithProgname(name string) BuildOption {
	return func(b *buildOptions) { b.progname = name }
}

// Build drives the parser over the source's options string and returns
// the finished configuration. The parse is atomic: the first error
// aborts the build, the full usage reference is logged, and no
// configuration is returned. Errors are advisory; callers are expected
// to treat a failed build as "debugging disabled" rather than fatal.
func Build(source Source, opts ...BuildOption) (*Config, error) {
	b := buildOptions{
		log:      logging.Default(),
		progname: filepath.Base(os.Args[0]),
	}
	for _, opt := range opts {
		opt(&b)
	}

	raw, ok := source.Options()
	if !ok {
		return nil, ErrNoConfiguration
	}

	// Stage into a fresh Config and publish only on full success, so a
	// failed build can never leak partially-applied fields.
	cfg := &Config{
		FillAllocValue:              DefaultFillAllocValue,
		FillFreeValue:               DefaultFillFreeValue,
		FrontGuardValue:             DefaultFrontGuardValue,
		RearGuardValue:              DefaultRearGuardValue,
		BacktraceSignal:             defaultBacktraceSignal,
		FreeTrackBacktraceNumFrames: defaultFreeTrackFrames,
	}

	if err := parseInto(cfg, raw); err != nil {
		b.log.Error(err.Error(), "program", b.progname)
		b.log.Error(Usage(), "program", b.progname)
		return nil, err
	}

	normalize(cfg)

	return cfg, nil
}

// parseInto runs the token loop against the feature table.
func parseInto(cfg *Config, raw string) error {
	p := newParser(raw)

	for {
		tok, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		f := lookupFeature(tok.name)
		if f == nil {
			return &UnknownOptionError{Option: tok.name}
		}

		if f.marker {
			// A combo selects every member of its group with the same
			// value/value-set pair.
			for _, member := range groupMembers(f.group) {
				if err := member.apply(cfg, tok.name, tok.value, tok.valueSet); err != nil {
					return err
				}
				cfg.options |= member.options
			}
			continue
		}

		if err := f.apply(cfg, tok.name, tok.value, tok.valueSet); err != nil {
			return err
		}
		cfg.options |= f.options
	}
}

// normalize applies the post-parse passes that make the configuration
// internally consistent.
func normalize(cfg *Config) {
	// The front guard precedes allocator-visible memory, so its size
	// must keep the returned pointer on an aligned boundary.
	if cfg.Enabled(FrontGuard) {
		cfg.FrontGuardBytes = alignUp(cfg.FrontGuardBytes, allocator.MinimumAlignment)
	}

	// free_track implies fill on free without saying how much to fill;
	// an untouched byte count means the whole allocation.
	if cfg.Enabled(FillOnFree) && cfg.FillOnFreeBytes == 0 {
		cfg.FillOnFreeBytes = math.MaxUint64
	}
}

// alignUp rounds v up to the nearest multiple of alignment, which must
// be a power of two.
func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// String renders the enabled features and their values, one per line.
func (c *Config) String() string {
	var b strings.Builder

	if c.Enabled(FrontGuard) {
		fmt.Fprintf(&b, "front_guard: %d bytes (pattern %#02x)\n", c.FrontGuardBytes, c.FrontGuardValue)
	}
	if c.Enabled(RearGuard) {
		fmt.Fprintf(&b, "rear_guard: %d bytes (pattern %#02x)\n", c.RearGuardBytes, c.RearGuardValue)
	}
	if c.Enabled(Backtrace) {
		fmt.Fprintf(&b, "backtrace: %d frames (on signal: %t, signal %d)\n",
			c.BacktraceFrames, c.BacktraceEnableOnSignal, c.BacktraceSignal)
	}
	if c.Enabled(FillOnAlloc) {
		fmt.Fprintf(&b, "fill_on_alloc: %s (pattern %#02x)\n", fillAmount(c.FillOnAllocBytes), c.FillAllocValue)
	}
	if c.Enabled(FillOnFree) {
		fmt.Fprintf(&b, "fill_on_free: %s (pattern %#02x)\n", fillAmount(c.FillOnFreeBytes), c.FillFreeValue)
	}
	if c.Enabled(ExpandAlloc) {
		fmt.Fprintf(&b, "expand_alloc: %d bytes\n", c.ExpandAllocBytes)
	}
	if c.Enabled(FreeTrack) {
		fmt.Fprintf(&b, "free_track: %d allocations (%d backtrace frames)\n",
			c.FreeTrackAllocations, c.FreeTrackBacktraceNumFrames)
	}
	if c.Enabled(LeakTrack) {
		b.WriteString("leak_track: enabled\n")
	}

	if b.Len() == 0 {
		return "no debug features enabled\n"
	}
	return b.String()
}

func fillAmount(n uint64) string {
	if n == math.MaxUint64 {
		return "entire allocation"
	}
	return fmt.Sprintf("%d bytes", n)
}
