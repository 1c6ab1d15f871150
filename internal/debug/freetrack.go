package debug

import (
	"fmt"
	"sync"
)

// quarantine is the free-track FIFO. Freed blocks sit here, still
// backed by real memory, until newer frees push them out; eviction is
// when the fill pattern is verified, so a use-after-free is caught even
// though the offending write happened earlier.
type quarantine struct {
	mu       sync.Mutex
	records  []*record
	capacity uint64
}

func newQuarantine(capacity uint64) *quarantine {
	return &quarantine{
		records:  make([]*record, 0, capacity),
		capacity: capacity,
	}
}

// push adds a freed record and returns the evicted oldest record once
// the quarantine is over capacity, else nil.
func (q *quarantine) push(r *record) *record {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = append(q.records, r)
	if uint64(len(q.records)) <= q.capacity {
		return nil
	}

	evicted := q.records[0]
	q.records = q.records[1:]
	return evicted
}

// drain removes and returns every quarantined record in FIFO order.
func (q *quarantine) drain() []*record {
	q.mu.Lock()
	defer q.mu.Unlock()

	records := q.records
	q.records = nil
	return records
}

func (q *quarantine) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.records)
}

// verifyQuarantined checks that a quarantined block still carries the
// free-fill pattern and intact guards. Any modified byte means the
// program wrote through a stale pointer after free.
func (d *Debugger) verifyQuarantined(r *record) {
	d.reportCorruption(r, d.verifyGuards(r))

	offset := verifyFill(r, d.cfg.FillOnFreeBytes, d.cfg.FillFreeValue)
	if offset < 0 {
		return
	}

	d.met.UseAfterFree.Inc()
	d.log.Error("allocation modified after free",
		"pointer", fmt.Sprintf("%p", r.user),
		"size", r.size,
		"offset", offset,
	)

	if len(r.freeFrames) > 0 {
		d.log.Error("freed at", "backtrace", FormatBacktrace(r.freeFrames))
	}
	if len(r.frames) > 0 {
		d.log.Error("allocated at", "backtrace", FormatBacktrace(r.frames))
	}
}
