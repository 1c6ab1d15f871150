package debug

import (
	"fmt"
	"sort"
)

// reportLeaks logs every allocation still live at shutdown, oldest
// first, and returns the leak count.
func (d *Debugger) reportLeaks() int {
	d.mu.RLock()
	records := make([]*record, 0, len(d.live))
	for _, r := range d.live {
		records = append(records, r)
	}
	d.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	var leakedBytes uint64
	for _, r := range records {
		leakedBytes += r.size

		d.log.Error("leaked allocation",
			"pointer", fmt.Sprintf("%p", r.user),
			"size", r.size,
			"sequence", r.seq,
		)
		if len(r.frames) > 0 {
			d.log.Error("allocated at", "backtrace", FormatBacktrace(r.frames))
		}
	}

	d.met.LeakedAllocations.Set(float64(len(records)))
	d.met.LeakedBytes.Set(float64(leakedBytes))

	if len(records) > 0 {
		d.log.Error("leak summary", "allocations", len(records), "bytes", leakedBytes)
	}

	return len(records)
}
