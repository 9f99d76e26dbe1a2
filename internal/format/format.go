// Package format implements Genesis (§4.4): the one-time sequence that lays
// down a fresh volume's region geometry, zeroes its metadata regions,
// pattern-fills the quality mask, writes the root anchor, and commits the
// four-mirror superblock quorum.
//
// Modeled on the teacher's container-initialization sequencing
// (apfs/pkg/container reads a fixed header-then-region layout in strict
// order) generalized from a read-only layout parser into a write path that
// lays the same kind of region table down for the first time.
package format

import (
	"github.com/hn4dev/hn4/internal/bitmap"
	"github.com/hn4dev/hn4/internal/cortex"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/superblock"
	"github.com/hn4dev/hn4/internal/types"
)

// DefaultCortexSlots is the anchor table capacity used when Params.CortexSlots
// is 0.
const DefaultCortexSlots = 4096

// DefaultEpochRingSectors is the epoch ring's default length, in sectors (one
// EpochHeader slot per sector, matching the chronicle's one-entry-per-sector
// convention).
const DefaultEpochRingSectors = 8

// DefaultHorizonSectors is the horizon ring's default length, in sectors.
const DefaultHorizonSectors = 64

// ChronicleReservationBytes is the fixed chronicle reservation (§4.4 step 7:
// "enforce a fixed 10 MiB chronicle reservation").
const ChronicleReservationBytes = 10 * 1024 * 1024

// Params is FormatParams (§4.4, §6): the formatter's inputs.
type Params struct {
	Profile          types.Profile
	Label            string
	SpecificUUID     *types.UUID // nil => generate a fresh UUIDv7
	MountIntentFlags types.MountIntentFlags
	CompatFlags      types.CompatFlags

	// OverrideCapacitySectors, if non-zero, overrides the HAL-reported
	// capacity (§4.4 step 2). Only a value larger than the HAL capacity is
	// restricted: it's allowed solely for a virtual overlay (MountVirtual)
	// and must represent at least VirtualOverlayMin bytes.
	OverrideCapacitySectors uint64

	// RootPermsOr is the user_overrides term ANDed against PermValidMask and
	// ORed into the root anchor's permissions (§4.4 "Root anchor").
	RootPermsOr types.Permissions

	// CortexSlots overrides the anchor table's slot capacity; 0 selects
	// DefaultCortexSlots.
	CortexSlots uint64

	// RandSource overrides the UUID random source; nil uses h.RandBytes.
	RandSource types.RandSource
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

func alignUp(v, unit uint64) uint64 {
	if unit == 0 {
		return v
	}
	return ceilDiv(v, unit) * unit
}

// validateProfileAndCapacity implements §4.4 steps 1-3.
func validateProfileAndCapacity(p Params, dev hal.Device) (effectiveSectors uint64, err error) {
	if !p.Profile.Valid() || p.Profile == types.ProfileUnknown {
		return 0, herr.New(herr.ErrProfileMismatch, "Format", "", "unknown or reserved profile")
	}

	capacity := dev.CapacitySectors()
	sectorSize := dev.SectorSize()
	effective := capacity

	if p.OverrideCapacitySectors != 0 {
		if p.OverrideCapacitySectors > capacity {
			if !p.MountIntentFlags.Has(types.MountVirtual) {
				return 0, herr.New(herr.ErrGeometry, "Format", "", "override_capacity exceeds HAL capacity and MOUNT_VIRTUAL not requested")
			}
			if p.OverrideCapacitySectors*uint64(sectorSize) < types.VirtualOverlayMin {
				return 0, herr.New(herr.ErrGeometry, "Format", "", "virtual overlay capacity below VirtualOverlayMin")
			}
		}
		effective = p.OverrideCapacitySectors
	}

	effBytes := effective * uint64(sectorSize)
	devType := dev.DeviceType()

	switch {
	case p.Profile == types.ProfilePico && sectorSize > 512:
		return 0, herr.New(herr.ErrProfileMismatch, "Format", "", "Pico profile requires sector size <= 512")
	case p.Profile == types.ProfileArchive && devType == types.DeviceNVM:
		return 0, herr.New(herr.ErrProfileMismatch, "Format", "", "Archive profile rejected on NVM media")
	case p.Profile == types.ProfilePico && devType == types.DeviceZNS:
		return 0, herr.New(herr.ErrProfileMismatch, "Format", "", "Pico profile rejected on ZNS media")
	case p.Profile == types.ProfileGeneric && effBytes < types.GenericMinCapacity:
		return 0, herr.New(herr.ErrGeometry, "Format", "", "Generic profile below minimum capacity")
	case p.Profile == types.ProfileArchive && (effBytes < types.ArchiveMinCapacity || effBytes > types.ArchiveMaxCapacity):
		return 0, herr.New(herr.ErrGeometry, "Format", "", "Archive profile capacity out of bounds")
	case p.Profile == types.ProfilePico && effBytes > types.PicoMaxCapacity:
		return 0, herr.New(herr.ErrGeometry, "Format", "", "Pico profile above maximum capacity")
	}

	return effective, nil
}

// chooseBlockSize implements §4.4 step 4.
func chooseBlockSize(p types.Profile, sectorSize uint32) (uint32, error) {
	blockSize := p.DefaultBlockSize()
	if blockSize < sectorSize {
		blockSize = sectorSize
	}
	if blockSize%sectorSize != 0 {
		return 0, herr.New(herr.ErrAlignmentFail, "Format", "", "block size not a multiple of sector size")
	}
	return blockSize, nil
}

// alignZNS implements §4.4 step 5.
func alignZNS(dev hal.Device, effective uint64) (uint64, error) {
	zd, ok := dev.(hal.ZonedDevice)
	if !ok {
		return effective, nil
	}
	zoneSize := zd.ZoneSize()
	if zoneSize == 0 || zoneSize > effective {
		return 0, herr.New(herr.ErrGeometry, "Format", "", "zone size is zero or exceeds capacity")
	}
	aligned := (effective / zoneSize) * zoneSize
	if aligned == 0 {
		return 0, herr.New(herr.ErrEnospc, "Format", "", "capacity rounds to zero zones")
	}
	return aligned, nil
}

// layout is the outcome of region computation: the regions themselves plus
// the sizing the caller needs to build the in-memory bitmap/qmask/cortex
// structures over them.
type layout struct {
	regions       types.Regions
	sectorsPerBlk uint64
	bitmapBlocks  uint64 // coverage: every absolute sector LBA the allocator can ever CAS
	cortexSlots   uint64
}

// computeLayout implements §4.4 step 7: region LBAs in strict order, with the
// fixed chronicle reservation and an ENOSPC check if reservations exceed
// capacity.
func computeLayout(effective uint64, sectorSize, blockSize uint32, cortexSlots uint64) (layout, error) {
	sectorsPerBlk := uint64(blockSize / sectorSize)
	sbSectors := alignUp(ceilDiv(types.SBSize, uint64(sectorSize)), sectorsPerBlk)

	epochSectors := alignUp(DefaultEpochRingSectors, sectorsPerBlk)
	cortexBytes := cortexSlots * types.AnchorSize
	cortexSectors := alignUp(ceilDiv(cortexBytes, uint64(sectorSize)), sectorsPerBlk)

	// The bitmap/qmask must cover every absolute sector address the
	// allocator can ever present to bitmap.CAS/qmask.IsToxic, since
	// CalcTrajectoryLBA returns flux_start-relative offsets added directly
	// to an absolute LBA (internal/allocator/trajectory.go). Covering the
	// full device, rather than just [flux_start, flux_start+flux_blocks), is
	// simpler than threading the circular dependency through this
	// computation and costs only a handful of extra armored words.
	bitmapBlocks := effective
	bitmapSectors := alignUp(ceilDiv(bitmapBlocks, 64)*bitmap.WordSize, uint64(sectorSize))
	bitmapSectors = alignUp(bitmapSectors, sectorsPerBlk)
	qmaskSectors := alignUp(ceilDiv(bitmapBlocks, 4), uint64(sectorSize))
	qmaskSectors = alignUp(qmaskSectors, sectorsPerBlk)

	chronicleSectors := ceilDiv(ChronicleReservationBytes, uint64(sectorSize))
	horizonSectors := uint64(DefaultHorizonSectors)

	epochStart := types.Addr(sbSectors)
	cortexStart := epochStart + types.Addr(epochSectors)
	bitmapStart := cortexStart + types.Addr(cortexSectors)
	qmaskStart := bitmapStart + types.Addr(bitmapSectors)
	fluxStart := qmaskStart + types.Addr(qmaskSectors)

	reserved := uint64(fluxStart) + horizonSectors + chronicleSectors
	if reserved >= effective {
		return layout{}, herr.New(herr.ErrEnospc, "Format", "", "metadata reservations exceed capacity")
	}
	fluxSectors := effective - reserved

	horizonStart := fluxStart + types.Addr(fluxSectors)
	chronicleStart := horizonStart + types.Addr(horizonSectors)

	return layout{
		regions: types.Regions{
			EpochStart:     epochStart,
			CortexStart:    cortexStart,
			BitmapStart:    bitmapStart,
			QMaskStart:     qmaskStart,
			FluxStart:      fluxStart,
			HorizonStart:   horizonStart,
			ChronicleStart: chronicleStart,
		},
		sectorsPerBlk: sectorsPerBlk,
		bitmapBlocks:  bitmapBlocks,
		cortexSlots:   cortexSlots,
	}, nil
}

// zeroRegion zeroes [start, start+lengthSectors) in blockSize-sized chunks
// via SyncIOLarge (§4.4 step 8).
func zeroRegion(h *hal.Handle, dev hal.Device, start types.Addr, lengthSectors uint64, blockSize uint32) error {
	if lengthSectors == 0 {
		return nil
	}
	buf := make([]byte, lengthSectors*uint64(dev.SectorSize()))
	if err := h.SyncIOLarge(dev, start, buf, blockSize); err != nil {
		return herr.New(herr.ErrHwIO, "Format", "", err.Error())
	}
	return nil
}

// fillQMask pattern-fills the quality mask region with 0xAA, one block-sized
// chunk at a time (§4.4 step 9: "critical: use block-byte chunks, not sector
// bytes x blocks").
func fillQMask(h *hal.Handle, dev hal.Device, start types.Addr, lengthSectors uint64, blockSize uint32) error {
	buf := make([]byte, lengthSectors*uint64(dev.SectorSize()))
	for i := range buf {
		buf[i] = 0xAA
	}
	if err := h.SyncIOLarge(dev, start, buf, blockSize); err != nil {
		return herr.New(herr.ErrHwIO, "Format", "", err.Error())
	}
	return nil
}

// reserveMirrorFootprints marks the sectors spanned by the East and West
// superblock mirrors as permanently used in bm, so the allocator never
// proposes a flux candidate that would overwrite a live superblock copy. The
// North mirror always lands inside the reserved header space below
// epoch_start and needs no such reservation; South doesn't exist yet at
// format time, but its LBA is reserved too since a later mount may self-heal
// one into existence.
func reserveMirrorFootprints(bm *bitmap.Bitmap, effective uint64, sectorSize uint32) error {
	sbSectors := ceilDiv(types.SBSize, uint64(sectorSize))
	north, east, west, south := superblock.MirrorLBAs(effective, sectorSize)
	for _, mirror := range []types.Addr{north, east, west, south} {
		for i := uint64(0); i < sbSectors; i++ {
			lba := uint64(mirror) + i
			if lba >= bm.TotalBlocks() {
				continue
			}
			if err := bm.Set(lba); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildRootAnchor implements §4.4's "Root anchor" paragraph.
func buildRootAnchor(generationTS uint64, rootPermsOr types.Permissions) *types.Anchor {
	perms := types.PermRead | types.PermWrite | types.PermExec | types.PermImmutable | types.PermSovereign
	perms |= rootPermsOr & types.PermValidMask

	a := &types.Anchor{
		SeedID:      types.RootSeedID,
		DataClass:   types.ClassStatic | types.ClassValid,
		Permissions: perms,
		ModClock:    generationTS,
		CreateClock: uint32(generationTS / 1e9),
	}
	copy(a.InlineBuffer[:], "ROOT")
	return a
}

// Format implements the full §4.4 Genesis sequence and returns the
// superblock that now governs dev (already committed to all three written
// mirrors). Callers mount the volume fresh with internal/superblock.Mount
// rather than reusing this in-memory copy directly.
func Format(h *hal.Handle, dev hal.Device, p Params) (*types.Superblock, error) {
	effective, err := validateProfileAndCapacity(p, dev)
	if err != nil {
		return nil, err
	}

	sectorSize := dev.SectorSize()
	blockSize, err := chooseBlockSize(p.Profile, sectorSize)
	if err != nil {
		return nil, err
	}

	effective, err = alignZNS(dev, effective)
	if err != nil {
		return nil, err
	}

	if p.MountIntentFlags.Has(types.MountWormhole) && !dev.Caps().Has(types.CapStrictFlush) {
		return nil, herr.New(herr.ErrHwIO, "Format", "", "WORMHOLE mount intent requested without STRICT_FLUSH capability")
	}

	cortexSlots := p.CortexSlots
	if cortexSlots == 0 {
		cortexSlots = DefaultCortexSlots
	}
	lay, err := computeLayout(effective, sectorSize, blockSize, cortexSlots)
	if err != nil {
		return nil, err
	}
	r := lay.regions

	// Step 8: zero epoch, cortex, and bitmap regions.
	if err := zeroRegion(h, dev, r.EpochStart, uint64(r.CortexStart-r.EpochStart), blockSize); err != nil {
		return nil, err
	}
	if err := zeroRegion(h, dev, r.CortexStart, uint64(r.BitmapStart-r.CortexStart), blockSize); err != nil {
		return nil, err
	}
	if err := zeroRegion(h, dev, r.BitmapStart, uint64(r.QMaskStart-r.BitmapStart), blockSize); err != nil {
		return nil, err
	}

	// Step 9: pattern-fill the quality mask with the §4.4 0xAA sentinel.
	// 0xAA packs to four QualitySilver (0b10) groups per byte (see
	// internal/bitmap/qmask.go), so this single write is simultaneously the
	// spec-mandated on-disk sentinel and a legitimately all-Silver mask —
	// alloc-time quality is driven solely by the parity engine's
	// read-repair path (§4.5), never by format-time state, so there is
	// nothing further to encode here.
	if err := fillQMask(h, dev, r.QMaskStart, uint64(r.FluxStart-r.QMaskStart), blockSize); err != nil {
		return nil, err
	}

	bm := bitmap.New(lay.bitmapBlocks)
	if err := reserveMirrorFootprints(bm, effective, sectorSize); err != nil {
		return nil, err
	}
	bmBuf := bitmap.EncodeWords(bm.Words())
	if err := h.SyncIOLarge(dev, r.BitmapStart, padToBlock(bmBuf, blockSize, sectorSize), blockSize); err != nil {
		return nil, herr.New(herr.ErrHwIO, "Format", "", err.Error())
	}

	generationTS := hal.NowNanos()

	sb := &types.Superblock{
		Magic:             types.SBMagic,
		EndianTag:         types.SBEndianTag,
		Version:           types.Version{Major: 1, Minor: 0, Patch: 0},
		Profile:           p.Profile,
		BlockSize:         blockSize,
		SectorSize:        sectorSize,
		TotalCapacity:     effective,
		GenerationTS:      generationTS,
		CopyGeneration:    0,
		CompatFlags:       p.CompatFlags,
		DeviceType:        dev.DeviceType(),
		HWCaps:            dev.Caps(),
		MountIntentFlags:  p.MountIntentFlags,
		Regions:           r,
		JournalHead:       r.ChronicleStart,
		EpochCurrentIndex: 0,
	}
	sb.StateFlags.Set(types.StateValid)
	sb.StateFlags.Set(types.StateClean)
	sb.StateFlags.Set(types.StateMetadataZeroed)
	sb.SetLabel(p.Label)

	if p.SpecificUUID != nil {
		sb.VolumeUUID = *p.SpecificUUID
	} else {
		rnd := p.RandSource
		if rnd == nil {
			rnd = h.RandBytes
		}
		sb.VolumeUUID = types.GenerateUUIDv7(generationTS/1_000_000, rnd)
	}

	// Step 10: write the root anchor. Refuses to run unless the metadata
	// zero pass already completed and cortex_start lands on a block
	// boundary (§4.4 "Root anchor" safety contract).
	if !sb.StateFlags.Has(types.StateMetadataZeroed) {
		return nil, herr.New(herr.ErrInternalFault, "Format", "", "root anchor write attempted before metadata zeroing")
	}
	if (uint64(r.CortexStart)*uint64(sectorSize))%uint64(blockSize) != 0 {
		return nil, herr.New(herr.ErrAlignmentFail, "Format", "", "cortex_start is not block-aligned")
	}
	cortexLen := uint64(r.BitmapStart - r.CortexStart)
	dir := cortex.New(h, dev, r.CortexStart, cortexLen)
	root := buildRootAnchor(generationTS, p.RootPermsOr)
	if err := dir.PutAt(0, root); err != nil {
		return nil, err
	}

	// Step 11: build and write the N/E/W superblock mirrors, flush between
	// each, and a final flush.
	if err := superblock.WriteFreshMirrors(h, dev, effective, sectorSize, sb); err != nil {
		return nil, err
	}

	return sb, nil
}

// padToBlock right-pads buf with zero bytes up to the next multiple of
// blockSize, the shape SyncIOLarge requires.
func padToBlock(buf []byte, blockSize, sectorSize uint32) []byte {
	total := len(buf)
	want := int(alignUp(uint64(total), uint64(blockSize)))
	if want == total {
		return buf
	}
	out := make([]byte, want)
	copy(out, buf)
	return out
}
