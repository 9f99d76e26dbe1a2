package superblock

import (
	"testing"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

func freshSuperblock(totalCapacity uint64) *types.Superblock {
	sb := &types.Superblock{
		Magic:      types.SBMagic,
		EndianTag:  types.SBEndianTag,
		Version:    types.Version{Major: 1},
		Profile:    types.ProfileGeneric,
		BlockSize:  4096,
		SectorSize: 512,
		VolumeUUID: types.UUID{Hi: 1, Lo: 2},
		TotalCapacity: totalCapacity,
		Regions: types.Regions{
			EpochStart:     64,
			CortexStart:    128,
			BitmapStart:    256,
			QMaskStart:     320,
			FluxStart:      384,
			HorizonStart:   384,
			ChronicleStart: 400,
		},
	}
	sb.StateFlags.Set(types.StateValid)
	return sb
}

func newMountableDevice(t *testing.T, capacitySectors uint64, caps types.HWCaps) (*hal.Handle, *hal.MemDevice, *types.Superblock) {
	t.Helper()
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(512, capacitySectors, types.DeviceSSD, caps)
	sb := freshSuperblock(capacitySectors)
	if err := WriteFreshMirrors(h, dev, capacitySectors, 512, sb); err != nil {
		t.Fatalf("WriteFreshMirrors: %v", err)
	}
	return h, dev, sb
}

func TestMountPicksHighestGenerationAmongValidMirrors(t *testing.T) {
	h, dev, sb := newMountableDevice(t, 1<<16, types.CapStrictFlush)

	// Bump the generation and rewrite only East, simulating East being
	// ahead of a stale North/West (e.g. a crash mid-unmount).
	north, east, _, _ := MirrorLBAs(1<<16, 512)
	sb.CopyGeneration = 7
	buf := sb.Serialize()
	if err := h.SyncWriteThenFlush(dev, east, buf); err != nil {
		t.Fatalf("rewrite east: %v", err)
	}

	mr, err := Mount(h, dev, 1<<16, 512, false, true)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if mr.SB.CopyGeneration != 7 {
		t.Fatalf("expected winner generation 7 (East), got %d", mr.SB.CopyGeneration)
	}

	// Self-heal: mounting writable must have rewritten the weaker North
	// mirror from the winner.
	healedNorth, err := readMirror(h, dev, north)
	if err != nil {
		t.Fatalf("reading healed North mirror: %v", err)
	}
	if healedNorth.CopyGeneration != 7 {
		t.Fatalf("expected North mirror healed to generation 7, got %d", healedNorth.CopyGeneration)
	}
}

func TestMountSurvivesSingleMirrorCorruption(t *testing.T) {
	h, dev, _ := newMountableDevice(t, 1<<16, types.CapStrictFlush)
	north, _, _, _ := MirrorLBAs(1<<16, 512)

	// Corrupt North's on-disk bytes so its CRC no longer validates (§8
	// invariant 11: "after any single SB mirror corruption, mount succeeds
	// and copy_generation of surviving winner is preserved").
	garbage := make([]byte, types.SBSize)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	if err := h.SyncWriteThenFlush(dev, north, garbage); err != nil {
		t.Fatalf("corrupting North: %v", err)
	}

	mr, err := Mount(h, dev, 1<<16, 512, false, true)
	if err != nil {
		t.Fatalf("expected mount to succeed despite one corrupted mirror, got %v", err)
	}
	if !mr.Degraded {
		t.Fatalf("expected DEGRADED after a corrupted mirror")
	}
	if mr.SB.CopyGeneration != 0 {
		t.Fatalf("expected the surviving winner's generation preserved, got %d", mr.SB.CopyGeneration)
	}

	healedNorth, err := readMirror(h, dev, north)
	if err != nil {
		t.Fatalf("North should have been healed and now read back cleanly: %v", err)
	}
	if healedNorth.CopyGeneration != mr.SB.CopyGeneration {
		t.Fatalf("healed North generation mismatch: got %d want %d", healedNorth.CopyGeneration, mr.SB.CopyGeneration)
	}
}

func TestMountFailsWhenNoMirrorValidates(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(512, 1<<16, types.DeviceSSD, types.CapStrictFlush)
	// Never formatted: every mirror LBA reads back zeroed, which fails the
	// magic/CRC check.

	_, err := Mount(h, dev, 1<<16, 512, false, true)
	if !herr.IsCode(err, herr.ErrGeometry) {
		t.Fatalf("expected ErrGeometry when no mirror validates, got %v", err)
	}
}

func TestMountRejectsWormholeWithoutStrictFlush(t *testing.T) {
	h, dev, _ := newMountableDevice(t, 1<<16, 0) // no CapStrictFlush

	_, err := Mount(h, dev, 1<<16, 512, true, true)
	if !herr.IsCode(err, herr.ErrHwIO) {
		t.Fatalf("expected ErrHwIO for a WORMHOLE mount without STRICT_FLUSH, got %v", err)
	}
}

func TestUnmountAdvancesGenerationExactlyOnce(t *testing.T) {
	h, dev, _ := newMountableDevice(t, 1<<16, types.CapStrictFlush)
	mr, err := Mount(h, dev, 1<<16, 512, false, true)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	startGen := mr.SB.CopyGeneration

	if err := Unmount(h, dev, mr); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if mr.SB.CopyGeneration != startGen+1 {
		t.Fatalf("expected CopyGeneration to advance by exactly 1, got %d -> %d", startGen, mr.SB.CopyGeneration)
	}

	north, _, _, _ := MirrorLBAs(1<<16, 512)
	onDisk, err := readMirror(h, dev, north)
	if err != nil {
		t.Fatalf("reading North after unmount: %v", err)
	}
	if onDisk.CopyGeneration != startGen+1 {
		t.Fatalf("North mirror on disk not updated: got %d want %d", onDisk.CopyGeneration, startGen+1)
	}
}
