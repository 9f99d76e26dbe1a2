// File: internal/types/superblock.go
package types

import (
	"encoding/binary"
	"hash/crc32"
)

// SBMagic is "HYDRA_N4" as a little-endian u64 (§3, §6).
const SBMagic uint64 = 0x48594452415F4E34

// SBEndianTag is the little-endian canary stored in every superblock (§3).
const SBEndianTag uint32 = 0x11223344

// SBSize is the fixed on-disk size of one superblock copy (§3).
const SBSize = 8192

// Version is the on-disk format version triple.
type Version struct {
	Major, Minor, Patch uint16
}

// Regions holds the start LBA of every fixed metadata/data region (§3).
// Invariant (checked by superblock.ValidateGeometry):
// EpochStart < CortexStart < BitmapStart < QMaskStart < FluxStart <=
// HorizonStart <= ChronicleStart < TotalCapacity.
type Regions struct {
	EpochStart     Addr
	CortexStart    Addr
	BitmapStart    Addr
	QMaskStart     Addr
	FluxStart      Addr
	HorizonStart   Addr
	ChronicleStart Addr
}

// Superblock is the fixed 8 KiB quorum mirror record (§3).
type Superblock struct {
	Magic             uint64
	EndianTag         uint32
	Version           Version
	Profile           Profile
	BlockSize         uint32
	SectorSize        uint32
	VolumeUUID        UUID
	VolumeLabel       [32]byte // <=31 chars + NUL
	TotalCapacity     uint64   // sectors
	GenerationTS      uint64   // ns
	LastMountTime     uint64   // ns
	CopyGeneration    uint64   // monotonic, per-SB-write
	CompatFlags       CompatFlags
	StateFlags        StateFlags
	DeviceType        DeviceType
	HWCaps            HWCaps
	MountIntentFlags  MountIntentFlags
	Regions           Regions
	JournalHead       Addr
	EpochCurrentIndex uint64
	CRC               uint32
}

// sbFixedLen is the number of bytes preceding the trailing CRC32 field.
const sbFixedLen = SBSize - 4

// SetLabel copies s (truncated to 31 bytes) into VolumeLabel, NUL-terminated.
func (sb *Superblock) SetLabel(s string) {
	var buf [32]byte
	n := len(s)
	if n > 31 {
		n = 31
	}
	copy(buf[:n], s[:n])
	sb.VolumeLabel = buf
}

// Serialize encodes the superblock into a fresh SBSize-byte slice with a
// trailing CRC32 over everything preceding it (§3).
func (sb *Superblock) Serialize() []byte {
	buf := make([]byte, SBSize)
	binary.LittleEndian.PutUint64(buf[0:8], sb.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], sb.EndianTag)
	binary.LittleEndian.PutUint16(buf[12:14], sb.Version.Major)
	binary.LittleEndian.PutUint16(buf[14:16], sb.Version.Minor)
	binary.LittleEndian.PutUint16(buf[16:18], sb.Version.Patch)
	binary.LittleEndian.PutUint32(buf[18:22], uint32(sb.Profile))
	binary.LittleEndian.PutUint32(buf[22:26], sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[26:30], sb.SectorSize)
	binary.LittleEndian.PutUint64(buf[30:38], sb.VolumeUUID.Hi)
	binary.LittleEndian.PutUint64(buf[38:46], sb.VolumeUUID.Lo)
	copy(buf[46:78], sb.VolumeLabel[:])
	binary.LittleEndian.PutUint64(buf[78:86], sb.TotalCapacity)
	binary.LittleEndian.PutUint64(buf[86:94], sb.GenerationTS)
	binary.LittleEndian.PutUint64(buf[94:102], sb.LastMountTime)
	binary.LittleEndian.PutUint64(buf[102:110], sb.CopyGeneration)
	binary.LittleEndian.PutUint64(buf[110:118], uint64(sb.CompatFlags))
	binary.LittleEndian.PutUint32(buf[118:122], uint32(sb.StateFlags))
	buf[122] = byte(sb.DeviceType)
	binary.LittleEndian.PutUint32(buf[123:127], uint32(sb.HWCaps))
	binary.LittleEndian.PutUint32(buf[127:131], uint32(sb.MountIntentFlags))
	off := 131
	regions := []Addr{
		sb.Regions.EpochStart, sb.Regions.CortexStart, sb.Regions.BitmapStart,
		sb.Regions.QMaskStart, sb.Regions.FluxStart, sb.Regions.HorizonStart,
		sb.Regions.ChronicleStart,
	}
	for _, r := range regions {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r))
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(sb.JournalHead))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], sb.EpochCurrentIndex)
	off += 8

	sb.CRC = crc32.ChecksumIEEE(buf[0:sbFixedLen])
	binary.LittleEndian.PutUint32(buf[sbFixedLen:SBSize], sb.CRC)
	return buf
}

// DeserializeSuperblock decodes a Superblock from an SBSize-byte slice.
func DeserializeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < SBSize {
		return nil, ErrShortBuffer
	}
	sb := &Superblock{
		Magic:     binary.LittleEndian.Uint64(buf[0:8]),
		EndianTag: binary.LittleEndian.Uint32(buf[8:12]),
		Version: Version{
			Major: binary.LittleEndian.Uint16(buf[12:14]),
			Minor: binary.LittleEndian.Uint16(buf[14:16]),
			Patch: binary.LittleEndian.Uint16(buf[16:18]),
		},
		Profile:    Profile(binary.LittleEndian.Uint32(buf[18:22])),
		BlockSize:  binary.LittleEndian.Uint32(buf[22:26]),
		SectorSize: binary.LittleEndian.Uint32(buf[26:30]),
		VolumeUUID: UUID{
			Hi: binary.LittleEndian.Uint64(buf[30:38]),
			Lo: binary.LittleEndian.Uint64(buf[38:46]),
		},
		TotalCapacity:  binary.LittleEndian.Uint64(buf[78:86]),
		GenerationTS:   binary.LittleEndian.Uint64(buf[86:94]),
		LastMountTime:  binary.LittleEndian.Uint64(buf[94:102]),
		CopyGeneration: binary.LittleEndian.Uint64(buf[102:110]),
		CompatFlags:    CompatFlags(binary.LittleEndian.Uint64(buf[110:118])),
		StateFlags:     StateFlags(binary.LittleEndian.Uint32(buf[118:122])),
		DeviceType:     DeviceType(buf[122]),
		HWCaps:         HWCaps(binary.LittleEndian.Uint32(buf[123:127])),
		MountIntentFlags: MountIntentFlags(binary.LittleEndian.Uint32(buf[127:131])),
	}
	copy(sb.VolumeLabel[:], buf[46:78])

	off := 131
	readAddr := func() Addr {
		v := Addr(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
		return v
	}
	sb.Regions = Regions{
		EpochStart:     readAddr(),
		CortexStart:    readAddr(),
		BitmapStart:    readAddr(),
		QMaskStart:     readAddr(),
		FluxStart:      readAddr(),
		HorizonStart:   readAddr(),
		ChronicleStart: readAddr(),
	}
	sb.JournalHead = readAddr()
	sb.EpochCurrentIndex = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	sb.CRC = binary.LittleEndian.Uint32(buf[sbFixedLen:SBSize])
	return sb, nil
}

// VerifyCRC recomputes the trailing CRC32 over a freshly-serialized copy
// and compares it to the decoded CRC field.
func (sb *Superblock) VerifyCRC() bool {
	want := sb.CRC
	buf := sb.Serialize()
	got := binary.LittleEndian.Uint32(buf[sbFixedLen:SBSize])
	sb.CRC = want
	return got == want
}

// ValidateGeometry enforces the §3 region-ordering invariant.
func (sb *Superblock) ValidateGeometry() bool {
	r := sb.Regions
	return r.EpochStart < r.CortexStart &&
		r.CortexStart < r.BitmapStart &&
		r.BitmapStart < r.QMaskStart &&
		r.QMaskStart < r.FluxStart &&
		r.FluxStart <= r.HorizonStart &&
		r.HorizonStart <= r.ChronicleStart &&
		r.ChronicleStart < Addr(sb.TotalCapacity)
}
