package config

import "math"

// group identifies a combo run. A marker feature selects every
// non-marker feature carrying the same group id, so expansion does not
// depend on table ordering.
type group int

const (
	groupNone group = iota
	groupGuard
	groupFill
)

// feature is one row of the option table. Numeric and boolean output
// slots are setter closures on the staging Config rather than raw field
// pointers; dispatch stays table-driven without address aliasing.
type feature struct {
	name    string
	def     uint64
	min     uint64
	max     uint64
	options Options
	set     func(*Config, uint64)
	enable  func(*Config)
	group   group
	marker  bool
}

// featureTable is the static catalog of recognized options. Constructed
// once and never mutated.
var featureTable = []feature{
	// Enables both guards with the same value.
	{name: "guard", def: 32, min: 1, max: 16384, group: groupGuard, marker: true},
	// Enable front guard. Value is the size of the guard.
	{name: "front_guard", def: 32, min: 1, max: 16384, options: FrontGuard, group: groupGuard,
		set: func(c *Config, v uint64) { c.FrontGuardBytes = v }},
	// Enable rear guard. Value is the size of the guard.
	{name: "rear_guard", def: 32, min: 1, max: 16384, options: RearGuard, group: groupGuard,
		set: func(c *Config, v uint64) { c.RearGuardBytes = v }},

	// Enable logging the backtrace on allocation. Value is the total
	// number of frames to record.
	{name: "backtrace", def: 16, min: 1, max: 256, options: Backtrace | TrackAllocs,
		set:    func(c *Config, v uint64) { c.BacktraceFrames = v },
		enable: func(c *Config) { c.BacktraceEnabled = true }},
	// Enable gathering backtrace values on a signal.
	{name: "backtrace_enable_on_signal", def: 16, min: 1, max: 256, options: Backtrace | TrackAllocs,
		set:    func(c *Config, v uint64) { c.BacktraceFrames = v },
		enable: func(c *Config) { c.BacktraceEnableOnSignal = true }},

	// Enables both fills with the same value.
	{name: "fill", def: math.MaxUint64, min: 1, max: math.MaxUint64, group: groupFill, marker: true},
	// Fill allocations with a pattern on allocation. Value is the number
	// of bytes to fill (default entire allocation).
	{name: "fill_on_alloc", def: math.MaxUint64, min: 1, max: math.MaxUint64, options: FillOnAlloc, group: groupFill,
		set: func(c *Config, v uint64) { c.FillOnAllocBytes = v }},
	// Fill allocations with a pattern on free. Value is the number of
	// bytes to fill (default entire allocation).
	{name: "fill_on_free", def: math.MaxUint64, min: 1, max: math.MaxUint64, options: FillOnFree, group: groupFill,
		set: func(c *Config, v uint64) { c.FillOnFreeBytes = v }},

	// Expand every allocation by this number of bytes.
	{name: "expand_alloc", def: 16, min: 1, max: 16384, options: ExpandAlloc,
		set: func(c *Config, v uint64) { c.ExpandAllocBytes = v }},

	// Keep freed allocations around and verify at a later date that they
	// have not been modified. Turning this on also turns on fill on free.
	{name: "free_track", def: 100, min: 1, max: 16384, options: FreeTrack | FillOnFree,
		set: func(c *Config, v uint64) { c.FreeTrackAllocations = v }},
	// Number of backtrace frames to keep when free_track is enabled.
	// Zero disables the free backtrace.
	{name: "free_track_backtrace_num_frames", def: 16, min: 0, max: 256,
		set: func(c *Config, v uint64) { c.FreeTrackBacktraceNumFrames = v }},

	// Enable leak reporting.
	{name: "leak_track", options: LeakTrack | TrackAllocs},
}

// apply validates a parsed value against the feature's bounds and writes
// it into the staging configuration. The name is the option as the user
// wrote it, so combo members report the combo name on failure. Bitmask
// accumulation is the builder's job; a single parsed name may expand to
// several apply calls.
func (f *feature) apply(cfg *Config, name string, value uint64, valueSet bool) error {
	if f.enable != nil {
		f.enable(cfg)
	}

	if f.set != nil {
		if valueSet {
			if value < f.min {
				return &RangeError{Option: name, Value: value, Bound: f.min, Below: true}
			}
			if value > f.max {
				return &RangeError{Option: name, Value: value, Bound: f.max}
			}
			f.set(cfg, value)
		} else {
			f.set(cfg, f.def)
		}
		return nil
	}

	if valueSet {
		return &UnexpectedValueError{Option: name}
	}

	return nil
}

// lookupFeature linear-scans the table for a name match.
func lookupFeature(name string) *feature {
	for i := range featureTable {
		if featureTable[i].name == name {
			return &featureTable[i]
		}
	}
	return nil
}

// groupMembers returns the non-marker features of a combo group.
func groupMembers(g group) []*feature {
	var members []*feature
	for i := range featureTable {
		if featureTable[i].group == g && !featureTable[i].marker {
			members = append(members, &featureTable[i])
		}
	}
	return members
}
