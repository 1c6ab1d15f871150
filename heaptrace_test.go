package heaptrace

import (
	"testing"
	"unsafe"
)

// Initialization is process-wide and happens once, so every assertion
// about the armed layer lives in this single test.
func TestInitAndShims(t *testing.T) {
	if !InitString("guard=16 fill_on_alloc") {
		t.Fatal("InitString failed on a valid options string")
	}
	if !Enabled() {
		t.Fatal("layer not enabled after successful init")
	}

	// Later init attempts keep the first outcome.
	if !InitString("bogus_option") {
		t.Error("repeated init changed the recorded outcome")
	}

	ptr := Malloc(64)
	if ptr == nil {
		t.Fatal("Malloc failed")
	}

	data := unsafe.Slice((*byte)(ptr), 64)
	for i, b := range data {
		if b != 0xeb {
			t.Fatalf("byte %d = %#02x, want fill pattern 0xeb", i, b)
		}
	}

	ptr = Realloc(ptr, 128)
	if ptr == nil {
		t.Fatal("Realloc failed")
	}

	Free(ptr)
	Shutdown()
}
