package types

import (
	"testing"

	guuid "github.com/google/uuid"
)

func fixedRand(fill byte) RandSource {
	return func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = fill
		}
		return b
	}
}

func TestGenerateUUIDv7VersionNibbleAndTimestamp(t *testing.T) {
	const ts = 0x0001020304ABCD // arbitrary 48-bit millisecond timestamp
	u := GenerateUUIDv7(ts, fixedRand(0x00))

	if got := (u.Hi >> 16) & 0xFFFFFFFFFFFF; got != ts {
		t.Fatalf("expected the high 48 bits of Hi to carry the ms timestamp, got %#x want %#x", got, ts)
	}
	if nibble := u.Hi & 0xF000; nibble != 0x7000 {
		t.Fatalf("expected version nibble 0x7 at Hi&0xF000, got %#x", nibble)
	}
}

func TestGenerateUUIDv7PersistsBothHalves(t *testing.T) {
	// §4.4: "a common bug to watch for is persisting only lo" — make sure
	// Hi carries real entropy/timestamp bits and Lo is independently
	// populated from the random source, not left zero.
	u := GenerateUUIDv7(12345, fixedRand(0xFF))
	if u.Hi == 0 {
		t.Fatalf("expected Hi to be non-zero (timestamp + version + random bits)")
	}
	if u.Lo == 0 {
		t.Fatalf("expected Lo to be fully populated from the random source, got 0")
	}
}

func TestGenerateUUIDv7RandomnessVariesBothHalves(t *testing.T) {
	a := GenerateUUIDv7(1, fixedRand(0x11))
	b := GenerateUUIDv7(1, fixedRand(0x22))
	if a.Hi == b.Hi && a.Lo == b.Lo {
		t.Fatalf("expected different random sources to produce different UUIDs")
	}
}

func TestUUIDIsRoot(t *testing.T) {
	if !RootSeedID.IsRoot() {
		t.Fatalf("expected RootSeedID to report IsRoot")
	}
	other := UUID{Hi: 1, Lo: 2}
	if other.IsRoot() {
		t.Fatalf("expected a non-all-ones UUID to not be root")
	}
}

func TestUUIDStringRoundTripsThroughGoogleUUID(t *testing.T) {
	u := UUID{Hi: 0x0102030405060708, Lo: 0x090A0B0C0D0E0F10}
	s := u.String()
	if len(s) != 36 {
		t.Fatalf("expected a canonical 36-character UUID string, got %q (%d)", s, len(s))
	}
	parsed, err := guuid.Parse(s)
	if err != nil {
		t.Fatalf("expected google/uuid to parse %q, got %v", s, err)
	}
	if [16]byte(parsed) != u.Bytes() {
		t.Fatalf("expected %q to parse back to the original bytes, got %x", s, parsed)
	}
}
