package hal

import "testing"

func TestAlignedAllocDataRoundTrip(t *testing.T) {
	b := AlignedAlloc(64, 16)
	data := b.Data()
	if len(data) != 64 {
		t.Fatalf("expected 64-byte usable region, got %d", len(data))
	}
	data[0] = 0x42
	if b.Data()[0] != 0x42 {
		t.Fatalf("Data() did not return a stable view of the backing allocation")
	}
}

func TestAlignedBufferFreeThenDataPanics(t *testing.T) {
	b := AlignedAlloc(32, 8)
	b.Free()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Data() on a freed AlignedBuffer to panic")
		}
	}()
	_ = b.Data()
}

func TestAlignedBufferDoubleFreePanics(t *testing.T) {
	b := AlignedAlloc(32, 8)
	b.Free()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a second Free() to panic (header already poisoned)")
		}
	}()
	b.Free()
}
