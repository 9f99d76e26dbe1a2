package types

import "testing"

func TestAnchorSerializeDeserializeRoundTrip(t *testing.T) {
	a := &Anchor{
		SeedID:        UUID{Hi: 0x1111, Lo: 0x2222},
		PublicID:      UUID{Hi: 0x3333, Lo: 0x4444},
		GravityCenter: 1000,
		Mass:          2048,
		DataClass:     ClassValid | ClassStatic,
		Permissions:   PermRead | PermWrite,
		WriteGen:      7,
		CreateClock:   123,
		ModClock:      456789,
		FractalScale:  3,
	}
	a.SetVelocity(0xABCDEF012345)
	copy(a.InlineBuffer[:], "ROOT")

	buf := a.Serialize()
	if len(buf) != AnchorSize {
		t.Fatalf("expected serialized anchor to be %d bytes, got %d", AnchorSize, len(buf))
	}

	back, err := DeserializeAnchor(buf)
	if err != nil {
		t.Fatalf("DeserializeAnchor: %v", err)
	}
	if back.SeedID != a.SeedID || back.PublicID != a.PublicID {
		t.Fatalf("identity fields did not round-trip: got seed=%v public=%v", back.SeedID, back.PublicID)
	}
	if back.Velocity() != 0xABCDEF012345 {
		t.Fatalf("expected velocity to round-trip as a 48-bit field, got %#x", back.Velocity())
	}
	if string(back.InlineBuffer[:4]) != "ROOT" {
		t.Fatalf("expected inline buffer to round-trip, got %q", back.InlineBuffer[:4])
	}
	if !back.VerifyChecksum() {
		t.Fatalf("expected a freshly round-tripped anchor to verify its own checksum")
	}
}

func TestAnchorVelocityIsTruncatedTo48Bits(t *testing.T) {
	a := &Anchor{}
	a.SetVelocity(0xFFFFFFFFFFFFFFFF)
	if a.Velocity() != 0xFFFFFFFFFFFF {
		t.Fatalf("expected SetVelocity/Velocity to mask to 48 bits, got %#x", a.Velocity())
	}
}

func TestAnchorChecksumDetectsCorruption(t *testing.T) {
	a := &Anchor{DataClass: ClassValid, Mass: 10}
	buf := a.Serialize()

	back, err := DeserializeAnchor(buf)
	if err != nil {
		t.Fatalf("DeserializeAnchor: %v", err)
	}
	if !back.VerifyChecksum() {
		t.Fatalf("expected uncorrupted anchor to verify")
	}

	back.Mass = 999 // mutate a head field without recomputing the checksum
	if back.VerifyChecksum() {
		t.Fatalf("expected corrupted anchor (mass changed, checksum stale) to fail verification")
	}
}

func TestAnchorIsEmptyTracksValidBit(t *testing.T) {
	a := &Anchor{}
	if !a.IsEmpty() {
		t.Fatalf("expected a zero-value anchor (no VALID bit) to be empty")
	}
	a.DataClass = ClassValid
	if a.IsEmpty() {
		t.Fatalf("expected an anchor with VALID set to not be empty")
	}
}

func TestAnchorChecksumCoversHeadThenInlineBuffer(t *testing.T) {
	// §3: "checksum (u32 CRC over {bytes 0..checksum-offset} then
	// {inline_buffer})" — changing only InlineBuffer must change the
	// checksum, proving the inline region is part of the covered span.
	a := &Anchor{DataClass: ClassValid}
	buf1 := a.Serialize()
	c1 := a.Checksum

	a2 := &Anchor{DataClass: ClassValid}
	copy(a2.InlineBuffer[:], "X")
	buf2 := a2.Serialize()
	c2 := a2.Checksum

	if c1 == c2 {
		t.Fatalf("expected differing inline buffers to produce differing checksums")
	}
	if len(buf1) != len(buf2) {
		t.Fatalf("expected both serializations to be the fixed anchor size")
	}
}
