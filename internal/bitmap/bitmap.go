// Package bitmap implements HN4's armored free-space bitmap and quality
// mask (§3, §4.5): one Hamming-ECC-protected 64-bit word per 64 data
// blocks, plus a read-mostly 2-bit-per-block quality mask the allocator
// consults to evade toxic blocks.
package bitmap

import (
	"sync"

	"github.com/hn4dev/hn4/internal/herr"
)

// Word is one armored bitmap word: 64 usage bits plus its 8-bit ECC.
type Word struct {
	Data uint64
	ECC  uint8
}

// Bitmap is the in-memory mirror of the on-disk armored bitmap, covering
// `blocks` flux blocks. The volume handle exclusively owns this mirror
// (§3 Ownership); updates synchronize per word (one mutex per armored
// word), never through a global lock (§5: "no global bitmap lock").
type Bitmap struct {
	words  []Word
	wordMu []sync.Mutex // one mutex per word: the CAS-with-ECC-update unit
	blocks uint64
}

// New allocates a Bitmap covering the given number of blocks, all clear.
func New(blocks uint64) *Bitmap {
	n := (blocks + 63) / 64
	b := &Bitmap{
		words:  make([]Word, n),
		wordMu: make([]sync.Mutex, n),
		blocks: blocks,
	}
	for i := range b.words {
		b.words[i].ECC = EncodeECC(0)
	}
	return b
}

// LoadWords initializes the bitmap's in-memory mirror from on-disk words
// (used when mounting).
func LoadWords(blocks uint64, words []Word) *Bitmap {
	b := &Bitmap{
		words:  make([]Word, len(words)),
		wordMu: make([]sync.Mutex, len(words)),
		blocks: blocks,
	}
	copy(b.words, words)
	return b
}

// Words returns a snapshot copy of the bitmap's words, for serialization to
// disk.
func (b *Bitmap) Words() []Word {
	out := make([]Word, len(b.words))
	for i := range b.words {
		b.wordMu[i].Lock()
		out[i] = b.words[i]
		b.wordMu[i].Unlock()
	}
	return out
}

func (b *Bitmap) locate(i uint64) (word, shift int, err error) {
	if i >= b.blocks {
		return 0, 0, herr.New(herr.ErrInvalidArgument, "bitmap", "", "block index out of range")
	}
	return int(i / 64), int(i % 64), nil
}

// readAndHeal reads word index w, correcting and persisting any single-bit
// ECC error it finds (§4.5). Returns whether a heal occurred.
func (b *Bitmap) readAndHeal(w int) (Word, bool, error) {
	b.wordMu[w].Lock()
	defer b.wordMu[w].Unlock()
	cur := b.words[w]
	res := CheckAndCorrect(cur.Data, cur.ECC)
	if res.Uncorrectable {
		return cur, false, herr.New(herr.ErrDataRot, "bitmap", "", "uncorrectable ECC error in bitmap word")
	}
	if res.Healed {
		b.words[w] = Word{Data: res.Data, ECC: res.ECC}
		return b.words[w], true, nil
	}
	return cur, false, nil
}

// Test returns the bit value at block index i. A detected-and-corrected
// ECC error surfaces as herr.InfoHealed, which callers must treat as
// success (§9 design note).
func (b *Bitmap) Test(i uint64) (bool, error) {
	w, s, err := b.locate(i)
	if err != nil {
		return false, err
	}
	word, healed, err := b.readAndHeal(w)
	if err != nil {
		return false, err
	}
	bit := (word.Data>>uint(s))&1 != 0
	if healed {
		return bit, herr.New(herr.InfoHealed, "bitmap", "", "single-bit ECC error corrected")
	}
	return bit, nil
}

// mutate atomically sets or clears bit s of word w and recomputes ECC.
func (b *Bitmap) mutate(i uint64, set bool) error {
	w, s, err := b.locate(i)
	if err != nil {
		return err
	}
	b.wordMu[w].Lock()
	defer b.wordMu[w].Unlock()

	cur := b.words[w]
	res := CheckAndCorrect(cur.Data, cur.ECC)
	data := cur.Data
	if !res.Uncorrectable {
		data = res.Data
	}

	if set {
		data |= 1 << uint(s)
	} else {
		data &^= 1 << uint(s)
	}
	b.words[w] = Word{Data: data, ECC: EncodeECC(data)}
	return nil
}

// Set marks block i used (§4.5).
func (b *Bitmap) Set(i uint64) error { return b.mutate(i, true) }

// Clear marks block i free (§4.5).
func (b *Bitmap) Clear(i uint64) error { return b.mutate(i, false) }

// ForceClear unconditionally clears block i, bypassing any usage-counter
// bookkeeping a higher layer might keep (§4.5).
func (b *Bitmap) ForceClear(i uint64) error { return b.Clear(i) }

// CAS atomically sets bit i if it is currently clear, returning whether the
// set happened. Used by the allocator's "CAS-set the bitmap bit at the
// candidate LBA" step (§4.6).
func (b *Bitmap) CAS(i uint64) (bool, error) {
	w, s, err := b.locate(i)
	if err != nil {
		return false, err
	}
	b.wordMu[w].Lock()
	defer b.wordMu[w].Unlock()

	cur := b.words[w]
	res := CheckAndCorrect(cur.Data, cur.ECC)
	if res.Uncorrectable {
		return false, herr.New(herr.ErrDataRot, "bitmap", "", "uncorrectable ECC error in bitmap word")
	}
	data := res.Data
	if (data>>uint(s))&1 != 0 {
		return false, nil // already set
	}
	data |= 1 << uint(s)
	b.words[w] = Word{Data: data, ECC: EncodeECC(data)}
	return true, nil
}

// UsedCount returns the number of set bits across the whole bitmap,
// consulted by the allocator's saturation check (§4.6).
func (b *Bitmap) UsedCount() uint64 {
	var n uint64
	for i := range b.words {
		b.wordMu[i].Lock()
		w := b.words[i]
		b.wordMu[i].Unlock()
		for bit := 0; bit < 64; bit++ {
			if (w.Data>>uint(bit))&1 != 0 {
				n++
			}
		}
	}
	return n
}

// TotalBlocks returns the number of blocks this bitmap covers.
func (b *Bitmap) TotalBlocks() uint64 { return b.blocks }

// WordSize is one Word's encoded on-disk footprint: 8 bytes of little-endian
// data plus the trailing 1-byte ECC.
const WordSize = 9

// EncodeWords packs words into their on-disk representation, for writing the
// bitmap region (§4.4 step 8/11, §4.5).
func EncodeWords(words []Word) []byte {
	buf := make([]byte, len(words)*WordSize)
	for i, w := range words {
		off := i * WordSize
		for b := 0; b < 8; b++ {
			buf[off+b] = byte(w.Data >> uint(8*b))
		}
		buf[off+8] = w.ECC
	}
	return buf
}

// DecodeWords unpacks a bitmap region's raw bytes back into Words (used when
// mounting).
func DecodeWords(buf []byte) []Word {
	n := len(buf) / WordSize
	words := make([]Word, n)
	for i := 0; i < n; i++ {
		off := i * WordSize
		var data uint64
		for b := 0; b < 8; b++ {
			data |= uint64(buf[off+b]) << uint(8*b)
		}
		words[i] = Word{Data: data, ECC: buf[off+8]}
	}
	return words
}
