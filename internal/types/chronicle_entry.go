// File: internal/types/chronicle_entry.go
package types

import "encoding/binary"

// ChronicleMagic is "NORCHILC" as a little-endian u64 (§3, §6).
const ChronicleMagic uint64 = 0x4E4F524348494C43

// ChronicleOpCode identifies the kind of event a chronicle entry records.
type ChronicleOpCode uint16

const (
	OpSnapshot ChronicleOpCode = iota
	OpFork
	OpWormhole
)

// ChronicleEntrySize is the fixed on-disk size of one entry: magic(8) +
// op_code(2) + old_lba(8) + new_lba(8) + payload_tag(8) + timestamp(8) +
// prev_sector_crc(4) = 46, padded to a round 48 bytes. The entry occupies
// one sector; padding is to the entry's own fixed struct size, not the
// sector size (callers embed it at the start of a sector-sized buffer).
const ChronicleEntrySize = 48

// ChronicleEntry is one append-only audit/intent log record (§3, §4.2).
type ChronicleEntry struct {
	Magic         uint64
	OpCode        ChronicleOpCode
	OldLBA        Addr
	NewLBA        Addr
	PayloadTag    uint64
	Timestamp     uint64 // ns
	PrevSectorCRC uint32
}

// Serialize encodes the entry into the first ChronicleEntrySize bytes of
// buf (which must be at least that long; typically a full sector).
func (e *ChronicleEntry) Serialize(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], e.Magic)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(e.OpCode))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(e.OldLBA))
	binary.LittleEndian.PutUint64(buf[18:26], uint64(e.NewLBA))
	binary.LittleEndian.PutUint64(buf[26:34], e.PayloadTag)
	binary.LittleEndian.PutUint64(buf[34:42], e.Timestamp)
	binary.LittleEndian.PutUint32(buf[42:46], e.PrevSectorCRC)
}

// DeserializeChronicleEntry reads an entry from buf's first
// ChronicleEntrySize bytes.
func DeserializeChronicleEntry(buf []byte) (*ChronicleEntry, error) {
	if len(buf) < ChronicleEntrySize {
		return nil, ErrShortBuffer
	}
	return &ChronicleEntry{
		Magic:         binary.LittleEndian.Uint64(buf[0:8]),
		OpCode:        ChronicleOpCode(binary.LittleEndian.Uint16(buf[8:10])),
		OldLBA:        Addr(binary.LittleEndian.Uint64(buf[10:18])),
		NewLBA:        Addr(binary.LittleEndian.Uint64(buf[18:26])),
		PayloadTag:    binary.LittleEndian.Uint64(buf[26:34]),
		Timestamp:     binary.LittleEndian.Uint64(buf[34:42]),
		PrevSectorCRC: binary.LittleEndian.Uint32(buf[42:46]),
	}, nil
}

// EpochHeader is one epoch ring entry (§3).
type EpochHeader struct {
	EpochID uint64
	PrevCRC uint32
	OwnCRC  uint32
}

const EpochHeaderSize = 8 + 4 + 4

func (e *EpochHeader) Serialize(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], e.EpochID)
	binary.LittleEndian.PutUint32(buf[8:12], e.PrevCRC)
	binary.LittleEndian.PutUint32(buf[12:16], e.OwnCRC)
}

func DeserializeEpochHeader(buf []byte) (*EpochHeader, error) {
	if len(buf) < EpochHeaderSize {
		return nil, ErrShortBuffer
	}
	return &EpochHeader{
		EpochID: binary.LittleEndian.Uint64(buf[0:8]),
		PrevCRC: binary.LittleEndian.Uint32(buf[8:12]),
		OwnCRC:  binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}
