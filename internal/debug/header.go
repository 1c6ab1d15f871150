package debug

import (
	"unsafe"
)

// record describes one allocation handed out by the debug layer. The
// raw block starts at base and holds, in order: front guard, user data,
// rear guard, expansion padding. user points past the front guard.
type record struct {
	base  unsafe.Pointer
	user  unsafe.Pointer
	size  uint64
	total uintptr
	seq   uint64

	frames     []Frame
	freeFrames []Frame
}

// Corruption describes one corrupted guard byte.
type Corruption struct {
	Guard  string // "front" or "rear"
	Offset int    // byte offset within the guard region
	Found  byte
	Want   byte
}

// rawBytes exposes the full raw block of a record.
func (r *record) rawBytes() []byte {
	return unsafe.Slice((*byte)(r.base), r.total)
}

// userBytes exposes the user-visible portion of a record.
func (r *record) userBytes() []byte {
	return unsafe.Slice((*byte)(r.user), r.size)
}

// writeGuards stamps the configured patterns into both guard regions.
func (d *Debugger) writeGuards(r *record) {
	raw := r.rawBytes()
	front := int(d.frontBytes())
	rear := int(d.rearBytes())

	for i := 0; i < front; i++ {
		raw[i] = d.cfg.FrontGuardValue
	}

	rearStart := front + int(r.size)
	for i := 0; i < rear; i++ {
		raw[rearStart+i] = d.cfg.RearGuardValue
	}
}

// verifyGuards checks both guard regions and returns every corrupted
// byte found.
func (d *Debugger) verifyGuards(r *record) []Corruption {
	raw := r.rawBytes()
	front := int(d.frontBytes())
	rear := int(d.rearBytes())

	var found []Corruption

	for i := 0; i < front; i++ {
		if raw[i] != d.cfg.FrontGuardValue {
			found = append(found, Corruption{
				Guard:  "front",
				Offset: i,
				Found:  raw[i],
				Want:   d.cfg.FrontGuardValue,
			})
		}
	}

	rearStart := front + int(r.size)
	for i := 0; i < rear; i++ {
		if raw[rearStart+i] != d.cfg.RearGuardValue {
			found = append(found, Corruption{
				Guard:  "rear",
				Offset: i,
				Found:  raw[rearStart+i],
				Want:   d.cfg.RearGuardValue,
			})
		}
	}

	return found
}

// fillRegion writes value into the first n bytes of the user data,
// clamped to the allocation size.
func fillRegion(r *record, n uint64, value byte) {
	if n > r.size {
		n = r.size
	}

	user := r.userBytes()
	for i := uint64(0); i < n; i++ {
		user[i] = value
	}
}

// verifyFill reports the offset of the first byte that no longer holds
// the expected fill value, or -1 when the region is intact.
func verifyFill(r *record, n uint64, value byte) int {
	if n > r.size {
		n = r.size
	}

	user := r.userBytes()
	for i := uint64(0); i < n; i++ {
		if user[i] != value {
			return int(i)
		}
	}

	return -1
}
