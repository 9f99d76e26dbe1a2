package bitmap

import "testing"

func TestQMaskDefaultsToSilver(t *testing.T) {
	q := NewQMask(10)
	// The raw 0xAA format pattern packs to four QualitySilver (0b10) groups
	// per byte, so a freshly formatted mask reads back as Silver everywhere.
	v, err := q.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != QualitySilver {
		t.Fatalf("got %v, want QualitySilver", v)
	}
	toxic, err := q.IsToxic(0)
	if err != nil {
		t.Fatalf("IsToxic: %v", err)
	}
	if toxic {
		t.Fatalf("expected freshly formatted block to not be toxic")
	}
}

func TestQMaskUnrecognizedEncodingIsToxic(t *testing.T) {
	q := LoadQMask(4, []byte{0xFF}) // every 2-bit group is 0b11, neither defined state
	toxic, err := q.IsToxic(0)
	if err != nil {
		t.Fatalf("IsToxic: %v", err)
	}
	if !toxic {
		t.Fatalf("expected an unrecognized encoding to fail safe as toxic")
	}
}

func TestQMaskSetGet(t *testing.T) {
	q := NewQMask(10)
	if err := q.Set(4, QualitySilver); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := q.Get(4)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != QualitySilver {
		t.Fatalf("got %v, want QualitySilver", v)
	}
	toxic, _ := q.IsToxic(4)
	if toxic {
		t.Fatalf("expected silver block to not be toxic")
	}
}

func TestQMaskMarkToxic(t *testing.T) {
	q := NewQMask(10)
	_ = q.Set(2, QualitySilver)
	if err := q.MarkToxic(2); err != nil {
		t.Fatalf("MarkToxic: %v", err)
	}
	toxic, _ := q.IsToxic(2)
	if !toxic {
		t.Fatalf("expected block 2 to be toxic after MarkToxic")
	}
}

func TestQMaskRoundTripBytes(t *testing.T) {
	q := NewQMask(8)
	_ = q.Set(0, QualitySilver)
	_ = q.Set(1, QualityToxic)

	reloaded := LoadQMask(8, q.Bytes())
	v0, _ := reloaded.Get(0)
	v1, _ := reloaded.Get(1)
	if v0 != QualitySilver || v1 != QualityToxic {
		t.Fatalf("round trip mismatch: v0=%v v1=%v", v0, v1)
	}
}
