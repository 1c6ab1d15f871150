package config

import (
	"fmt"
	"strings"
)

// Usage returns the full option reference. It is logged whenever a
// build fails so operators can see every recognized option, its bounds,
// and its effect.
func Usage() string {
	var b strings.Builder

	b.WriteString("heaptrace options usage:\n")
	b.WriteString("\n")
	b.WriteString("  front_guard[=XX]\n")
	b.WriteString("    Enables a front guard on all allocations. If XX is set\n")
	b.WriteString("    it sets the number of bytes in the guard. The default is\n")
	b.WriteString("    32 bytes.\n")
	b.WriteString("\n")
	b.WriteString("  rear_guard[=XX]\n")
	b.WriteString("    Enables a rear guard on all allocations. If XX is set\n")
	b.WriteString("    it sets the number of bytes in the guard. The default is\n")
	b.WriteString("    32 bytes.\n")
	b.WriteString("\n")
	b.WriteString("  guard[=XX]\n")
	b.WriteString("    Enables both a front guard and a rear guard on all allocations.\n")
	b.WriteString("    If XX is set it sets the number of bytes in both guards.\n")
	b.WriteString("    The default is 32 bytes.\n")
	b.WriteString("\n")
	b.WriteString("  backtrace[=XX]\n")
	b.WriteString("    Enable capturing the backtrace at the point of allocation.\n")
	b.WriteString("    If XX is set it sets the number of backtrace frames.\n")
	b.WriteString("    The default is 16 frames.\n")
	b.WriteString("\n")
	b.WriteString("  backtrace_enable_on_signal[=XX]\n")
	b.WriteString("    Enable capturing the backtrace at the point of allocation.\n")
	b.WriteString("    The backtrace capture is not enabled until the process\n")
	b.WriteString("    receives a signal. If XX is set it sets the number of backtrace\n")
	b.WriteString("    frames. The default is 16 frames.\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "  fill_on_alloc[=XX]\n")
	fmt.Fprintf(&b, "    On first allocation, fill with the value 0x%02x.\n", DefaultFillAllocValue)
	b.WriteString("    If XX is set it will only fill up to XX bytes of the\n")
	b.WriteString("    allocation. The default is to fill the entire allocation.\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "  fill_on_free[=XX]\n")
	fmt.Fprintf(&b, "    On free, fill with the value 0x%02x. If XX is set it will\n", DefaultFillFreeValue)
	b.WriteString("    only fill up to XX bytes of the allocation. The default is to\n")
	b.WriteString("    fill the entire allocation.\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "  fill[=XX]\n")
	fmt.Fprintf(&b, "    On both first allocation and free, fill with the value 0x%02x on\n", DefaultFillAllocValue)
	fmt.Fprintf(&b, "    first allocation and the value 0x%02x on free. If XX is set, only\n", DefaultFillFreeValue)
	b.WriteString("    fill up to XX bytes. The default is to fill the entire allocation.\n")
	b.WriteString("\n")
	b.WriteString("  expand_alloc[=XX]\n")
	b.WriteString("    Allocate an extra number of bytes for every allocation call.\n")
	b.WriteString("    If XX is set, that is the number of bytes to expand the\n")
	b.WriteString("    allocation by. The default is 16 bytes.\n")
	b.WriteString("\n")
	b.WriteString("  free_track[=XX]\n")
	b.WriteString("    When a pointer is freed, do not free the memory right away.\n")
	b.WriteString("    Instead, keep XX of these allocations around and then verify\n")
	b.WriteString("    that they have not been modified when the total number of freed\n")
	b.WriteString("    allocations exceeds the XX amount. When the program terminates,\n")
	b.WriteString("    the rest of these allocations are verified. When this option is\n")
	b.WriteString("    enabled, it automatically records the backtrace at the time of the free.\n")
	b.WriteString("    The default is to record 100 allocations.\n")
	b.WriteString("\n")
	b.WriteString("  free_track_backtrace_num_frames[=XX]\n")
	b.WriteString("    This option only has meaning if free_track is set. This indicates\n")
	b.WriteString("    how many backtrace frames to capture when an allocation is freed.\n")
	b.WriteString("    If XX is set, that is the number of frames to capture. If XX\n")
	b.WriteString("    is set to zero, then no backtrace will be captured.\n")
	b.WriteString("    The default is to record 16 frames.\n")
	b.WriteString("\n")
	b.WriteString("  leak_track\n")
	b.WriteString("    Enable the leak tracking of memory allocations.\n")

	return b.String()
}
