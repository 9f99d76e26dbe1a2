// File: internal/types/uuid.go
package types

import (
	"encoding/binary"

	guuid "github.com/google/uuid"
)

// UUID is the on-disk 128-bit volume/object identity, stored as two
// host-endian 64-bit halves exactly as described in §3 ("Addresses ...
// optionally 128-bit (lo, hi)") and §4.4 ("Both halves must be persisted —
// a common bug to watch for is persisting only lo"). Display/parsing is
// delegated to google/uuid; the bit construction below is hand-rolled per
// the version-7 layout spec.md mandates.
type UUID struct {
	Hi uint64
	Lo uint64
}

// RootSeedID is the reserved seed_id for the system root anchor (§3, §4.4).
var RootSeedID = UUID{Hi: ^uint64(0), Lo: ^uint64(0)}

// IsRoot reports whether u is the reserved all-ones root identity.
func (u UUID) IsRoot() bool {
	return u.Hi == ^uint64(0) && u.Lo == ^uint64(0)
}

// Bytes returns the 16-byte big-endian presentation of u (Hi then Lo),
// suitable for handing to google/uuid for String()/equality, independent of
// the little-endian wire format used when the value is written to media
// (that conversion happens at the serialization boundary, per §3/§6).
func (u UUID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], u.Hi)
	binary.BigEndian.PutUint64(b[8:16], u.Lo)
	return b
}

// String renders u via google/uuid for a human-readable form.
func (u UUID) String() string {
	b := u.Bytes()
	return guuid.UUID(b).String()
}

// RandSource supplies random bytes for UUID generation. The HAL's
// deterministic PRNG (§4.1) satisfies this; tests may substitute a fixed
// source.
type RandSource func(n int) []byte

// GenerateUUIDv7 builds a version-7 UUID per §4.4: a 48-bit millisecond
// timestamp occupies the high 48 bits of Hi, the version nibble 0x7 sits at
// the nibble masked by 0xF000, the remaining 12 bits of Hi and all 64 bits
// of Lo come from the supplied random source. Per spec, Lo is fully random
// (no variant bits are forced into it) — a deliberate simplification
// carried over from the source behavior, not a bug to fix.
func GenerateUUIDv7(tsMillis uint64, rnd RandSource) UUID {
	r := rnd(10) // 12 bits (2 bytes, top nibble discarded) + 8 bytes for Lo
	randA := binary.BigEndian.Uint16(r[0:2]) & 0x0FFF
	lo := binary.BigEndian.Uint64(r[2:10])

	hi := (tsMillis & 0xFFFFFFFFFFFF) << 16
	hi |= 0x7000
	hi |= uint64(randA)

	return UUID{Hi: hi, Lo: lo}
}
