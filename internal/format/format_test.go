package format

import (
	"testing"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/superblock"
	"github.com/hn4dev/hn4/internal/types"
)

func newTestDevice(t *testing.T, capacitySectors uint64) (*hal.Handle, *hal.MemDevice) {
	t.Helper()
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(512, capacitySectors, types.DeviceSSD, types.CapStrictFlush)
	return h, dev
}

func TestFormatGenericProducesValidGeometry(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20) // 512 MiB
	sb, err := Format(h, dev, Params{Profile: types.ProfileGeneric, Label: "test-volume", CortexSlots: 64})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !sb.ValidateGeometry() {
		t.Fatalf("formatted superblock fails geometry validation: %+v", sb.Regions)
	}
	if !sb.StateFlags.Has(types.StateMetadataZeroed) {
		t.Fatalf("expected StateMetadataZeroed set")
	}
	if sb.CopyGeneration != 0 {
		t.Fatalf("expected CopyGeneration 0 fresh out of Format, got %d", sb.CopyGeneration)
	}
}

func TestFormatRejectsUnknownProfile(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20)
	_, err := Format(h, dev, Params{Profile: types.ProfileUnknown})
	if !herr.IsCode(err, herr.ErrProfileMismatch) {
		t.Fatalf("expected ErrProfileMismatch, got %v", err)
	}
}

func TestFormatRejectsPicoAboveMaxCapacity(t *testing.T) {
	h, dev := newTestDevice(t, (types.PicoMaxCapacity/512)*4)
	_, err := Format(h, dev, Params{Profile: types.ProfilePico})
	if !herr.IsCode(err, herr.ErrGeometry) {
		t.Fatalf("expected ErrGeometry for oversized Pico volume, got %v", err)
	}
}

func TestFormatRejectsWormholeWithoutStrictFlush(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(512, 1<<20, types.DeviceSSD, 0) // no CapStrictFlush
	_, err := Format(h, dev, Params{Profile: types.ProfileGeneric, MountIntentFlags: types.MountWormhole})
	if err == nil {
		t.Fatalf("expected rejection of WORMHOLE mount intent without STRICT_FLUSH capability")
	}
}

func TestFormatWritesRecoverableMirrors(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20)
	sb, err := Format(h, dev, Params{Profile: types.ProfileGeneric, CortexSlots: 64})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	mr, err := superblock.Mount(h, dev, sb.TotalCapacity, dev.SectorSize(), false, true)
	if err != nil {
		t.Fatalf("Mount after Format: %v", err)
	}
	if mr.Degraded {
		t.Fatalf("freshly formatted volume should not mount degraded")
	}
	if mr.SB.VolumeUUID != sb.VolumeUUID {
		t.Fatalf("mounted superblock UUID does not match formatted one")
	}
}

func TestFormatGeneratesUUIDWhenUnspecified(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20)
	sb, err := Format(h, dev, Params{Profile: types.ProfileGeneric, CortexSlots: 64})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if sb.VolumeUUID.Hi == 0 && sb.VolumeUUID.Lo == 0 {
		t.Fatalf("expected a non-zero generated UUID")
	}
	if (sb.VolumeUUID.Hi>>12)&0xF != 0x7 {
		t.Fatalf("expected UUIDv7 version nibble, got %x", (sb.VolumeUUID.Hi>>12)&0xF)
	}
}

func TestFormatHonorsSpecificUUID(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20)
	want := types.UUID{Hi: 0x1122, Lo: 0x3344}
	sb, err := Format(h, dev, Params{Profile: types.ProfileGeneric, SpecificUUID: &want, CortexSlots: 64})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if sb.VolumeUUID != want {
		t.Fatalf("expected caller-supplied UUID to be honored, got %+v", sb.VolumeUUID)
	}
}

func TestFormatRejectsInsufficientCapacity(t *testing.T) {
	h, dev := newTestDevice(t, 64) // far too small to hold even the fixed reservations
	_, err := Format(h, dev, Params{Profile: types.ProfileGeneric, CortexSlots: 64})
	if err == nil {
		t.Fatalf("expected an error formatting a volume too small for fixed reservations")
	}
}

func TestFormatQMaskFirstByteIsSilverSentinel(t *testing.T) {
	h, dev := newTestDevice(t, 1<<20)
	sb, err := Format(h, dev, Params{Profile: types.ProfileGeneric, Label: "test-volume", CortexSlots: 64})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	buf := make([]byte, dev.SectorSize())
	if res := h.SyncIO(dev, &hal.Request{Op: hal.OpRead, LBA: sb.Regions.QMaskStart, Buffer: buf}); res.Err != nil {
		t.Fatalf("reading qmask region: %v", res.Err)
	}
	if buf[0] != 0xAA {
		t.Fatalf("expected qmask first byte 0xAA per spec, got 0x%02X", buf[0])
	}
}
