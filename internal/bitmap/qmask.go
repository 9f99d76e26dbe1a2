package bitmap

import "github.com/hn4dev/hn4/internal/herr"

// Quality is the 2-bit-per-block quality mask value (§3, §4.5). It carries
// no ECC of its own; the allocator treats an unexpected encoding as toxic
// (fail safe) rather than healing it.
type Quality uint8

const (
	// QualitySilver is the default, fully-usable state. Encoded as 0b10 so
	// that four Silver blocks packed into one byte read back as 0xAA
	// (10101010) — the exact on-disk sentinel §4.4 specifies for a freshly
	// formatted quality mask (spec.md "Initialized to all-silver (0xAA
	// bytes) at format").
	QualitySilver Quality = 0b10
	// QualityToxic marks a block the allocator must never place data on
	// (media error history, vendor-reported wear-out, etc.).
	QualityToxic Quality = 0b00
)

// initPattern is the byte the on-disk quality mask region is formatted
// with: 0xAA packs to four QualitySilver (0b10) groups, so a freshly
// formatted mask is simultaneously the §4.4 sentinel byte and a
// legitimately Silver-everywhere mask — no separate re-encoding pass is
// needed after the pattern fill.
const initPattern byte = 0xAA

// QMask is the in-memory mirror of the on-disk quality mask, 2 bits per
// block packed 4-to-a-byte.
type QMask struct {
	bytes  []byte
	blocks uint64
}

// NewQMask allocates a quality mask covering the given number of blocks,
// filled with the format-time sentinel pattern (§4.4).
func NewQMask(blocks uint64) *QMask {
	n := (blocks + 3) / 4
	b := make([]byte, n)
	for i := range b {
		b[i] = initPattern
	}
	return &QMask{bytes: b, blocks: blocks}
}

// LoadQMask wraps existing on-disk quality mask bytes.
func LoadQMask(blocks uint64, raw []byte) *QMask {
	b := make([]byte, len(raw))
	copy(b, raw)
	return &QMask{bytes: b, blocks: blocks}
}

// Bytes returns a snapshot of the packed on-disk representation.
func (q *QMask) Bytes() []byte {
	out := make([]byte, len(q.bytes))
	copy(out, q.bytes)
	return out
}

func (q *QMask) locate(i uint64) (byteIdx int, shift uint, err error) {
	if i >= q.blocks {
		return 0, 0, herr.New(herr.ErrInvalidArgument, "qmask", "", "block index out of range")
	}
	return int(i / 4), uint((i % 4) * 2), nil
}

// Get returns the quality value of block i. An encoding other than Silver
// or Toxic (a 0b01 or 0b11 group) reports QualityToxic so the
// allocator fails safe rather than placing data on an unverified block.
func (q *QMask) Get(i uint64) (Quality, error) {
	idx, shift, err := q.locate(i)
	if err != nil {
		return QualityToxic, err
	}
	v := Quality((q.bytes[idx] >> shift) & 0b11)
	if v != QualitySilver && v != QualityToxic {
		return QualityToxic, nil
	}
	return v, nil
}

// Set writes the quality value of block i (§4.5: quality transitions are
// driven by the parity engine's read-repair and reconstruction paths, never
// by ordinary writes).
func (q *QMask) Set(i uint64, v Quality) error {
	idx, shift, err := q.locate(i)
	if err != nil {
		return err
	}
	q.bytes[idx] = (q.bytes[idx] &^ (0b11 << shift)) | (uint8(v&0b11) << shift)
	return nil
}

// MarkToxic is the convenience form of Set(i, QualityToxic), used when the
// parity engine gives up reconstructing a block (§4.7 Case C exhaustion) or
// the HAL reports a persistent media error for it.
func (q *QMask) MarkToxic(i uint64) error { return q.Set(i, QualityToxic) }

// IsToxic reports whether block i is currently marked toxic; the allocator
// consults this before ever proposing i as a placement candidate (§4.6).
func (q *QMask) IsToxic(i uint64) (bool, error) {
	v, err := q.Get(i)
	if err != nil {
		return true, err
	}
	return v == QualityToxic, nil
}

// TotalBlocks returns the number of blocks this mask covers.
func (q *QMask) TotalBlocks() uint64 { return q.blocks }
