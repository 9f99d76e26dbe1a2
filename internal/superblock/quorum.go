// Package superblock implements the four-mirror superblock quorum (§4.3):
// mount-time validation and self-heal across North/East/West/South copies,
// and an unmount sequence that writes the mirrors in strict order with a
// flush between each (South only when the volume has one).
//
// Modeled on the teacher's multi-copy checkpoint handling
// (apfs/pkg/container, which reads a checkpoint map and picks the
// highest-generation valid copy) generalized from a read-only "pick the
// newest checkpoint" scan into a read/write quorum with self-heal, per
// §4.3/§9.
package superblock

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Mirror identifies one of the four quorum copies (§3 "Four-mirror
// quorum").
type Mirror int

const (
	MirrorNorth Mirror = iota
	MirrorEast
	MirrorWest
	MirrorSouth
)

func (m Mirror) String() string {
	switch m {
	case MirrorNorth:
		return "North"
	case MirrorEast:
		return "East"
	case MirrorWest:
		return "West"
	case MirrorSouth:
		return "South"
	default:
		return "Unknown"
	}
}

// MirrorLBAs computes the four mirrors' LBAs from total capacity and
// sector size (§3: "North (LBA 0), East (~33% of capacity, block-aligned),
// West (~66%), South (capacity - SB_SIZE, only if south-SB-present flag
// set)").
func MirrorLBAs(totalCapacitySectors uint64, sectorSize uint32) (north, east, west, south types.Addr) {
	sbSectors := uint64(types.SBSize+uint32(sectorSize)-1) / uint64(sectorSize)
	north = 0
	east = types.Addr(alignDown(totalCapacitySectors/3, sbSectors))
	west = types.Addr(alignDown(totalCapacitySectors*2/3, sbSectors))
	if totalCapacitySectors >= sbSectors {
		south = types.Addr(totalCapacitySectors - sbSectors)
	}
	return
}

func alignDown(v, unit uint64) uint64 {
	if unit == 0 {
		return v
	}
	return (v / unit) * unit
}

// readMirror reads and decodes the superblock at lba, validating magic,
// endian tag, and CRC (§4.3 step 1). A failure of any check is reported as
// an error rather than a partially-valid Superblock.
func readMirror(h *hal.Handle, dev hal.Device, lba types.Addr) (*types.Superblock, error) {
	buf := make([]byte, types.SBSize)
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return nil, herr.New(herr.ErrHwIO, "readMirror", "", res.Err.Error())
	}
	sb, err := types.DeserializeSuperblock(buf)
	if err != nil {
		return nil, herr.New(herr.ErrInvalidArgument, "readMirror", "", "short superblock buffer")
	}
	if sb.Magic != types.SBMagic || sb.EndianTag != types.SBEndianTag {
		return nil, herr.New(herr.ErrGeometry, "readMirror", "", "bad magic/endian tag")
	}
	if !sb.VerifyCRC() {
		return nil, herr.New(herr.ErrDataRot, "readMirror", "", "CRC mismatch")
	}
	return sb, nil
}

// writeMirror serializes sb and writes it to lba, flushing after (§4.3,
// §5: every SB mirror write is immediately followed by a flush barrier).
func writeMirror(h *hal.Handle, dev hal.Device, lba types.Addr, sb *types.Superblock) error {
	buf := sb.Serialize()
	if err := h.SyncWriteThenFlush(dev, lba, buf); err != nil {
		return herr.New(herr.ErrHwIO, "writeMirror", "", err.Error())
	}
	return nil
}

// WriteFreshMirrors writes sb to the North, East, and West mirrors in that
// strict order, each followed by its own flush, then issues one more flush
// (§4.4 step 11: "Build and write four SB mirrors (N, then E, then W, then
// S)... with a flush between them; finally flush"). The formatter never
// writes the South mirror directly; South only comes into existence via a
// later self-heal once StateSouthSBPresent is set.
func WriteFreshMirrors(h *hal.Handle, dev hal.Device, totalCapacitySectors uint64, sectorSize uint32, sb *types.Superblock) error {
	north, east, west, _ := MirrorLBAs(totalCapacitySectors, sectorSize)
	for _, lba := range []types.Addr{north, east, west} {
		if err := writeMirror(h, dev, lba, sb); err != nil {
			return err
		}
	}
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpFlush})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "WriteFreshMirrors", "", res.Err.Error())
	}
	return nil
}

// MountResult is the outcome of Mount: the winning superblock, whether the
// quorum disagreed (and thus the volume must be marked DEGRADED), and the
// mirror LBAs for later unmount/self-heal use.
type MountResult struct {
	SB            *types.Superblock
	Degraded      bool
	North, East, West, South types.Addr
	SouthPresent  bool
}

// Mount implements the §4.3 mount algorithm steps 1-6.
func Mount(h *hal.Handle, dev hal.Device, totalCapacitySectors uint64, sectorSize uint32, wantWormhole bool, writable bool) (*MountResult, error) {
	north, east, west, south := MirrorLBAs(totalCapacitySectors, sectorSize)

	type copy struct {
		mirror Mirror
		lba    types.Addr
		sb     *types.Superblock
		err    error
	}

	candidates := []copy{
		{MirrorNorth, north, nil, nil},
		{MirrorEast, east, nil, nil},
		{MirrorWest, west, nil, nil},
	}

	var firstValid *types.Superblock
	for i := range candidates {
		candidates[i].sb, candidates[i].err = readMirror(h, dev, candidates[i].lba)
		if candidates[i].err == nil && firstValid == nil {
			firstValid = candidates[i].sb
		}
	}

	southPresent := firstValid != nil && firstValid.StateFlags.Has(types.StateSouthSBPresent)
	var southSB *types.Superblock
	var southErr error
	if southPresent {
		southSB, southErr = readMirror(h, dev, south)
		candidates = append(candidates, copy{MirrorSouth, south, southSB, southErr})
	}

	var winner *types.Superblock
	var winnerMirror Mirror
	validCount := 0
	for _, c := range candidates {
		if c.err != nil {
			continue
		}
		validCount++
		if winner == nil || c.sb.CopyGeneration > winner.CopyGeneration {
			winner = c.sb
			winnerMirror = c.mirror
		}
	}
	if winner == nil {
		return nil, herr.New(herr.ErrGeometry, "Mount", "", "no valid superblock mirror found")
	}

	degraded := validCount < len(candidates)

	// Step 3: self-heal weaker/missing mirrors from the winner, if writable.
	if writable {
		for _, c := range candidates {
			if c.mirror == winnerMirror {
				continue
			}
			if c.err != nil || c.sb.CopyGeneration < winner.CopyGeneration {
				healed := *winner
				_ = writeMirror(h, dev, c.lba, &healed) // best-effort; mount still proceeds if this fails
			}
		}
	}

	// Step 4: geometry invariants.
	if !winner.ValidateGeometry() {
		return nil, herr.New(herr.ErrGeometry, "Mount", "", "region ordering invariant violated")
	}

	// Step 5: WORMHOLE mount requires STRICT_FLUSH capability.
	if wantWormhole && !dev.Caps().Has(types.CapStrictFlush) {
		return nil, herr.New(herr.ErrHwIO, "Mount", "", "WORMHOLE mount requested without STRICT_FLUSH capability")
	}

	// Step 6: 128-bit capacity sanity (HN4 implements the 64-bit Addr form
	// throughout, per internal/types.Addr's documented scope decision; the
	// "hi != 0 but HAL reports smaller" check applies only to the
	// 128-bit-capacity HWCaps flag, which a 64-bit-only build never sets).
	if dev.Caps().Has(types.Cap128BitCapacity) && dev.CapacitySectors() < totalCapacitySectors {
		return nil, herr.New(herr.ErrGeometry, "Mount", "", "HAL-reported capacity smaller than superblock capacity")
	}

	if degraded {
		winner.StateFlags.Set(types.StateDegraded)
	}

	return &MountResult{
		SB: winner, Degraded: degraded,
		North: north, East: east, West: west, South: south,
		SouthPresent: southPresent,
	}, nil
}

// Unmount flushes dirty in-memory state (the caller is expected to have
// already synced bitmap/qmask/chronicle; Unmount's job is the superblock
// write sequence itself), bumps copy_generation, and rewrites the mirrors
// strictly N -> E -> W, then S only when SouthPresent, with a flush between
// each (§4.3, §5
// "Four-mirror SB writes are strictly ordered... with a flush between
// each; unmount advances copy_generation exactly once").
func Unmount(h *hal.Handle, dev hal.Device, mr *MountResult) error {
	mr.SB.CopyGeneration++
	mr.SB.StateFlags.Clear(types.StateDegraded)
	if !mr.SouthPresent {
		mr.SB.StateFlags.Clear(types.StateSouthSBPresent)
	} else {
		mr.SB.StateFlags.Set(types.StateSouthSBPresent)
	}

	order := []types.Addr{mr.North, mr.East, mr.West}
	if mr.SouthPresent {
		order = append(order, mr.South)
	}
	for _, lba := range order {
		if err := writeMirror(h, dev, lba, mr.SB); err != nil {
			return err
		}
	}
	return nil
}
