package allocator

import (
	"testing"

	"github.com/hn4dev/hn4/internal/bitmap"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

func newTestAllocator(t *testing.T, profile types.Profile, devType types.DeviceType) (*Allocator, *hal.Handle) {
	t.Helper()
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(4096, 2048, devType, 0)
	bm := bitmap.New(1000)
	qm := bitmap.NewQMask(1000)
	for i := uint64(0); i < 1000; i++ {
		_ = qm.Set(i, bitmap.QualitySilver)
	}
	al := New(h, dev, Config{
		FluxStart:    100,
		FluxBlocks:   997,
		Profile:      profile,
		Bitmap:       bm,
		QMask:        qm,
		HorizonStart: 1100,
		HorizonLen:   8,
	})
	return al, h
}

func TestAllocGenesisRailModeForSystemProfile(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileSystem, types.DeviceSSD)
	_, v, err := al.AllocGenesis(0, 0, false)
	if err != nil {
		t.Fatalf("AllocGenesis: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected Rail mode V=1 for SYSTEM profile, got %d", v)
	}
}

func TestAllocBlockAdvancesOrbitOnCollision(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileGeneric, types.DeviceSSD)
	anchor := &types.Anchor{GravityCenter: 10, FractalScale: 0}
	anchor.SetVelocity(3)

	lba1, k1, err := al.AllocBlock(anchor, 0)
	if err != nil {
		t.Fatalf("first AllocBlock: %v", err)
	}
	// Second allocation at the same logical index must find the bit taken
	// and advance K (or fall to horizon), never return the same LBA twice.
	lba2, k2, err := al.AllocBlock(anchor, 0)
	if err != nil {
		t.Fatalf("second AllocBlock: %v", err)
	}
	if lba1 == lba2 {
		t.Fatalf("expected distinct LBAs on collision, got %v twice (k1=%d k2=%d)", lba1, k1, k2)
	}
}

func TestAllocBlockSkipsToxicBlocks(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileGeneric, types.DeviceSSD)
	// Mark every block toxic; allocation must exhaust orbits and report
	// either gravity collapse (M!=0) or fall to horizon (M==0).
	for i := uint64(0); i < 1000; i++ {
		_ = al.qmask.MarkToxic(i)
	}
	anchor := &types.Anchor{GravityCenter: 10, FractalScale: 0}
	anchor.SetVelocity(3)
	lba, _, err := al.AllocBlock(anchor, 0)
	if err != nil {
		t.Fatalf("expected horizon fallback success, got err=%v", err)
	}
	if lba < al.horizonStart || uint64(lba-al.horizonStart) >= al.horizonLen {
		t.Fatalf("expected horizon-ring LBA, got %v", lba)
	}
}

func TestAllocBlockGravityCollapseOnNonUnitFractalScale(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileGeneric, types.DeviceSSD)
	for i := uint64(0); i < 1000; i++ {
		_ = al.qmask.MarkToxic(i)
	}
	anchor := &types.Anchor{GravityCenter: 10, FractalScale: 2}
	anchor.SetVelocity(3)
	_, _, err := al.AllocBlock(anchor, 0)
	if err == nil || herr.Code(err) != herr.ErrGravityCollapse {
		t.Fatalf("expected ErrGravityCollapse, got %v", err)
	}
}

func TestAllocHorizonMonotonicAndExhausts(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileGeneric, types.DeviceSSD)
	seen := make(map[types.Addr]bool)
	for i := 0; i < 8; i++ {
		lba, err := al.AllocHorizon()
		if err != nil {
			t.Fatalf("AllocHorizon[%d]: %v", i, err)
		}
		if seen[lba] {
			t.Fatalf("duplicate horizon LBA %v", lba)
		}
		seen[lba] = true
	}
	if _, err := al.AllocHorizon(); err == nil || herr.Code(err) != herr.ErrEnospc {
		t.Fatalf("expected ErrEnospc once horizon ring is exhausted, got %v", err)
	}
}

func TestThetaSuppressedOnHDD(t *testing.T) {
	al, _ := newTestAllocator(t, types.ProfileGeneric, types.DeviceHDD)
	anchor := &types.Anchor{GravityCenter: 55, FractalScale: 0}
	anchor.SetVelocity(3)

	start, phi, _ := al.window()
	geo1 := Geometry{FluxStart: start, Phi: phi, SuppressTheta: al.dev.DeviceType().SuppressesTheta()}
	lba1 := CalcTrajectoryLBA(geo1, Coord{G: anchor.GravityCenter, V: 3, N: 0, M: 0, K: 1})
	lba2 := CalcTrajectoryLBA(geo1, Coord{G: anchor.GravityCenter, V: 3, N: 0, M: 0, K: 2})
	if lba1 != lba2 {
		t.Fatalf("expected theta suppression on HDD device to collapse K=1,2")
	}
}

func TestAcceleratorWindowUnknownIDFallsBackToGlobal(t *testing.T) {
	al, h := newTestAllocator(t, types.ProfileAI, types.DeviceSSD)
	h.SetAcceleratorContext(hal.AcceleratorID(42)) // never registered in topology
	start, phi, strict := al.window()
	if strict {
		t.Fatalf("expected graceful fallback (not strict) for unknown accelerator id")
	}
	if start != al.fluxStart || phi != al.fluxBlocks {
		t.Fatalf("expected global pool window, got start=%v phi=%d", start, phi)
	}
}

func TestAcceleratorWindowRestrictsPool(t *testing.T) {
	al, h := newTestAllocator(t, types.ProfileAI, types.DeviceSSD)
	al.SetAccelWindow(7, AccelWindow{LBAStart: 100, LBALen: 64})
	h.SetAcceleratorContext(7)
	start, phi, strict := al.window()
	if !strict {
		t.Fatalf("expected strict locality window for bound accelerator")
	}
	if start != 100 || phi != 64 {
		t.Fatalf("expected window (100,64), got (%v,%d)", start, phi)
	}
}
