// File: internal/types/anchor.go
package types

import (
	"encoding/binary"
	"hash/crc32"
)

// AnchorSize is the fixed on-disk size of an Anchor record (§3).
const AnchorSize = 128

// anchorHeadSize is the byte length of every field preceding InlineBuffer:
// seed_id(16) + public_id(16) + gravity_center(8) + mass(8) +
// orbit_vector(6) + data_class(8) + permissions(4) + write_gen(4) +
// create_clock(4) + mod_clock(8) + fractal_scale(2) = 84.
const anchorHeadSize = 16 + 16 + 8 + 8 + 6 + 8 + 4 + 4 + 4 + 8 + 2

// anchorInlineOffset / anchorChecksumOffset mark where InlineBuffer and the
// trailing checksum begin. The checksum directly follows InlineBuffer, and
// 12 reserved/padding bytes after it bring the record up to the fixed
// 128-byte size.
const (
	anchorInlineOffset    = anchorHeadSize
	anchorInlineSize      = 28
	anchorChecksumOffset  = anchorInlineOffset + anchorInlineSize // 112
	anchorReservedSize    = AnchorSize - anchorChecksumOffset - 4 // 12
)

// Anchor is the fixed 128-byte file-like metadata record (§3).
type Anchor struct {
	SeedID       UUID
	PublicID     UUID
	GravityCenter uint64 // G
	Mass          uint64 // cumulative logical byte length
	OrbitVector   uint64 // only low 48 bits used: velocity V (u48)
	DataClass     DataClass
	Permissions   Permissions
	WriteGen      uint32
	CreateClock   uint32 // seconds
	ModClock      uint64 // nanoseconds
	FractalScale  uint16 // M
	InlineBuffer  [anchorInlineSize]byte
	Checksum      uint32
}

// IsEmpty reports whether the anchor is unused (§3).
func (a *Anchor) IsEmpty() bool { return a.DataClass.IsEmpty() }

// Velocity returns the allocator stride V (low 48 bits of OrbitVector).
func (a *Anchor) Velocity() uint64 { return a.OrbitVector & 0xFFFFFFFFFFFF }

// SetVelocity stores V into the low 48 bits of OrbitVector, leaving any
// higher bits (unused by HN4, reserved on media) untouched.
func (a *Anchor) SetVelocity(v uint64) {
	a.OrbitVector = (a.OrbitVector &^ 0xFFFFFFFFFFFF) | (v & 0xFFFFFFFFFFFF)
}

// Serialize encodes the anchor into a fresh AnchorSize-byte slice,
// computing the trailing checksum as a split CRC32: one update over the
// head fields, a second over InlineBuffer, matching §3's "checksum (u32 CRC
// over {bytes 0..checksum-offset} then {inline_buffer})".
func (a *Anchor) Serialize() []byte {
	buf := make([]byte, AnchorSize)

	binary.LittleEndian.PutUint64(buf[0:8], a.SeedID.Hi)
	binary.LittleEndian.PutUint64(buf[8:16], a.SeedID.Lo)
	binary.LittleEndian.PutUint64(buf[16:24], a.PublicID.Hi)
	binary.LittleEndian.PutUint64(buf[24:32], a.PublicID.Lo)
	binary.LittleEndian.PutUint64(buf[32:40], a.GravityCenter)
	binary.LittleEndian.PutUint64(buf[40:48], a.Mass)
	// orbit_vector is a 6-byte (u48) field.
	var ov [8]byte
	binary.LittleEndian.PutUint64(ov[:], a.OrbitVector&0xFFFFFFFFFFFF)
	copy(buf[48:54], ov[0:6])
	binary.LittleEndian.PutUint64(buf[54:62], uint64(a.DataClass))
	binary.LittleEndian.PutUint32(buf[62:66], uint32(a.Permissions))
	binary.LittleEndian.PutUint32(buf[66:70], a.WriteGen)
	binary.LittleEndian.PutUint32(buf[70:74], a.CreateClock)
	binary.LittleEndian.PutUint64(buf[74:82], a.ModClock)
	binary.LittleEndian.PutUint16(buf[82:84], a.FractalScale)
	copy(buf[anchorInlineOffset:anchorInlineOffset+anchorInlineSize], a.InlineBuffer[:])

	a.Checksum = computeAnchorChecksum(buf)
	binary.LittleEndian.PutUint32(buf[anchorChecksumOffset:anchorChecksumOffset+4], a.Checksum)
	return buf
}

func computeAnchorChecksum(buf []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(buf[0:anchorHeadSize])
	crc.Write(buf[anchorInlineOffset : anchorInlineOffset+anchorInlineSize])
	return crc.Sum32()
}

// DeserializeAnchor decodes an Anchor from an AnchorSize-byte slice.
func DeserializeAnchor(buf []byte) (*Anchor, error) {
	if len(buf) < AnchorSize {
		return nil, ErrShortBuffer
	}
	a := &Anchor{
		SeedID: UUID{
			Hi: binary.LittleEndian.Uint64(buf[0:8]),
			Lo: binary.LittleEndian.Uint64(buf[8:16]),
		},
		PublicID: UUID{
			Hi: binary.LittleEndian.Uint64(buf[16:24]),
			Lo: binary.LittleEndian.Uint64(buf[24:32]),
		},
		GravityCenter: binary.LittleEndian.Uint64(buf[32:40]),
		Mass:          binary.LittleEndian.Uint64(buf[40:48]),
		DataClass:     DataClass(binary.LittleEndian.Uint64(buf[54:62])),
		Permissions:   Permissions(binary.LittleEndian.Uint32(buf[62:66])),
		WriteGen:      binary.LittleEndian.Uint32(buf[66:70]),
		CreateClock:   binary.LittleEndian.Uint32(buf[70:74]),
		ModClock:      binary.LittleEndian.Uint64(buf[74:82]),
		FractalScale:  binary.LittleEndian.Uint16(buf[82:84]),
		Checksum:      binary.LittleEndian.Uint32(buf[anchorChecksumOffset : anchorChecksumOffset+4]),
	}
	var ov [8]byte
	copy(ov[0:6], buf[48:54])
	a.OrbitVector = binary.LittleEndian.Uint64(ov[:])
	copy(a.InlineBuffer[:], buf[anchorInlineOffset:anchorInlineOffset+anchorInlineSize])
	return a, nil
}

// VerifyChecksum recomputes the split CRC32 and compares against the
// decoded Checksum field, without mutating a.Checksum.
func (a *Anchor) VerifyChecksum() bool {
	want := a.Checksum
	buf := a.Serialize() // mutates a.Checksum as a side effect; restored below
	got := binary.LittleEndian.Uint32(buf[anchorChecksumOffset : anchorChecksumOffset+4])
	a.Checksum = want
	return got == want
}
