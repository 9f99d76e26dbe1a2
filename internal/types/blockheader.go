// File: internal/types/blockheader.go
package types

import (
	"encoding/binary"
	"hash/crc32"
)

// BlockHeaderMagic is HN4_BLOCK_MAGIC (§6).
const BlockHeaderMagic uint32 = 0x484E3442 // "HN4B"

// BlockHeaderSize is the fixed prefix every data block carries (§6):
// magic(4) + flags(4) + anchor_seed_id(16) + logical_index(8) +
// data_crc(4) + header_crc(4).
const BlockHeaderSize = 4 + 4 + 16 + 8 + 4 + 4

// BlockHeaderFlag bits carried in a block header's flags word.
type BlockHeaderFlag uint32

const (
	BlockFlagCompressed BlockHeaderFlag = 1 << iota
	BlockFlagParityColumn
)

// BlockHeader prefixes every data block (§6).
type BlockHeader struct {
	Magic         uint32
	Flags         BlockHeaderFlag
	AnchorSeedID  UUID
	LogicalIndex  uint64
	DataCRC       uint32
	HeaderCRC     uint32
}

// Serialize writes the header into the first BlockHeaderSize bytes of buf
// (buf must be at least that long) and returns the payload region.
func (h *BlockHeader) Serialize(buf []byte) []byte {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Flags))
	binary.LittleEndian.PutUint64(buf[8:16], h.AnchorSeedID.Hi)
	binary.LittleEndian.PutUint64(buf[16:24], h.AnchorSeedID.Lo)
	binary.LittleEndian.PutUint64(buf[24:32], h.LogicalIndex)
	binary.LittleEndian.PutUint32(buf[32:36], h.DataCRC)
	// header_crc is computed over bytes [0:36) and stored last.
	h.HeaderCRC = crc32.ChecksumIEEE(buf[0:36])
	binary.LittleEndian.PutUint32(buf[36:40], h.HeaderCRC)
	return buf[BlockHeaderSize:]
}

// DeserializeBlockHeader reads a header from buf's first BlockHeaderSize
// bytes.
func DeserializeBlockHeader(buf []byte) (*BlockHeader, []byte, error) {
	if len(buf) < BlockHeaderSize {
		return nil, nil, ErrShortBuffer
	}
	h := &BlockHeader{
		Magic: binary.LittleEndian.Uint32(buf[0:4]),
		Flags: BlockHeaderFlag(binary.LittleEndian.Uint32(buf[4:8])),
		AnchorSeedID: UUID{
			Hi: binary.LittleEndian.Uint64(buf[8:16]),
			Lo: binary.LittleEndian.Uint64(buf[16:24]),
		},
		LogicalIndex: binary.LittleEndian.Uint64(buf[24:32]),
		DataCRC:      binary.LittleEndian.Uint32(buf[32:36]),
		HeaderCRC:    binary.LittleEndian.Uint32(buf[36:40]),
	}
	return h, buf[BlockHeaderSize:], nil
}

// VerifyHeaderCRC reports whether the header's own CRC validates against
// buf[0:36), the first of the two checks §4.7's silent-corruption-recovery
// path performs on read.
func (h *BlockHeader) VerifyHeaderCRC(buf []byte) bool {
	if len(buf) < 40 {
		return false
	}
	return crc32.ChecksumIEEE(buf[0:36]) == h.HeaderCRC
}

// VerifyPayloadCRC reports whether payload matches h.DataCRC, the second of
// the two checks in §4.7's read path.
func (h *BlockHeader) VerifyPayloadCRC(payload []byte) bool {
	return crc32.ChecksumIEEE(payload) == h.DataCRC
}

// shortBufferError is the type behind the ErrShortBuffer sentinel; callers
// outside this package wrap it in a herr.Error at the API boundary rather than here,
// keeping internal/types free of the herr dependency (avoids an import
// cycle, since herr has no reason to depend on on-media layout).
type shortBufferError struct{}

func (shortBufferError) Error() string { return "hn4: buffer shorter than required layout" }

// ErrShortBuffer is returned by Deserialize* helpers when the input slice
// is too small to hold the fixed-size structure being decoded.
var ErrShortBuffer error = shortBufferError{}
