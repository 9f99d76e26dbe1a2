package allocator

import (
	"sync"
	"sync/atomic"

	"github.com/hn4dev/hn4/internal/bitmap"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// DefaultUpdateLimitPerMille is the §4.6 "Saturation" default threshold
// (used_blocks / total_blocks), expressed as a per-mille fraction to avoid
// floating point on the hot allocation path.
const DefaultUpdateLimitPerMille = 950

// DefaultStrictLocalityProbes is the default N in "strict locality can't
// find space after N probes" (§4.6 alloc_genesis).
const DefaultStrictLocalityProbes = 20

// maxOrbitK is the normal K range (§4.6: "0..12 normally, up to 15 as a
// sentinel" — §9 Open Question resolved as max K=12 with 15 reserved).
const maxOrbitK = 12

// sentinelK is the reserved sentinel orbit index.
const sentinelK = 15

// AccelWindow is one entry of the AI-profile accelerator topology map
// (§4.6 "AI affinity"): the [LBAStart, LBAStart+LBALen) window reserved for
// one accelerator id.
type AccelWindow struct {
	LBAStart types.Addr
	LBALen   uint64
}

// Allocator is the Void/Ballistic allocator bound to one volume's flux
// region, horizon ring, bitmap, and quality mask (§4.6).
type Allocator struct {
	h   *hal.Handle
	dev hal.Device

	fluxStart   types.Addr
	fluxBlocks  uint64 // Φ, global
	profile     types.Profile

	bm    *bitmap.Bitmap
	qmask *bitmap.QMask

	updateLimitPerMille uint64
	saturated           int32 // atomic bool, RUNTIME_SATURATED sticky bit

	horizonStart types.Addr
	horizonLen   uint64
	horizonHead  uint64 // atomic, next free slot index into the horizon ring

	topology map[hal.AcceleratorID]AccelWindow
	topoMu   sync.RWMutex
}

// Config configures a new Allocator.
type Config struct {
	FluxStart   types.Addr
	FluxBlocks  uint64
	Profile     types.Profile
	Bitmap      *bitmap.Bitmap
	QMask       *bitmap.QMask

	HorizonStart types.Addr
	HorizonLen   uint64

	UpdateLimitPerMille uint64 // 0 => DefaultUpdateLimitPerMille
}

// New constructs an Allocator bound to the given volume geometry.
func New(h *hal.Handle, dev hal.Device, cfg Config) *Allocator {
	limit := cfg.UpdateLimitPerMille
	if limit == 0 {
		limit = DefaultUpdateLimitPerMille
	}
	return &Allocator{
		h:                   h,
		dev:                 dev,
		fluxStart:           cfg.FluxStart,
		fluxBlocks:          cfg.FluxBlocks,
		profile:             cfg.Profile,
		bm:                  cfg.Bitmap,
		qmask:               cfg.QMask,
		updateLimitPerMille: limit,
		horizonStart:        cfg.HorizonStart,
		horizonLen:          cfg.HorizonLen,
		topology:            make(map[hal.AcceleratorID]AccelWindow),
	}
}

// SetAccelWindow registers (or clears, with LBALen 0) the spatial window
// reserved for accelerator id (§4.6 "AI affinity").
func (al *Allocator) SetAccelWindow(id hal.AcceleratorID, w AccelWindow) {
	al.topoMu.Lock()
	defer al.topoMu.Unlock()
	if w.LBALen == 0 {
		delete(al.topology, id)
		return
	}
	al.topology[id] = w
}

// Saturated reports whether the sticky RUNTIME_SATURATED bit is set.
func (al *Allocator) Saturated() bool {
	return atomic.LoadInt32(&al.saturated) != 0
}

// window resolves the active (start, Φ) pair for this call: the global
// flux region, or an accelerator's strict-locality window if the profile
// is AI and a window is bound for the calling goroutine's accelerator
// context (§4.6 "AI affinity").
func (al *Allocator) window() (start types.Addr, phi uint64, strict bool) {
	if al.profile != types.ProfileAI {
		return al.fluxStart, al.fluxBlocks, false
	}
	id, ok := al.h.AcceleratorContext()
	if !ok || id == hal.AcceleratorNone {
		return al.fluxStart, al.fluxBlocks, false
	}
	al.topoMu.RLock()
	w, found := al.topology[id]
	al.topoMu.RUnlock()
	if !found {
		// Unknown accelerator id (or empty topology map): graceful
		// fallback to the global pool.
		return al.fluxStart, al.fluxBlocks, false
	}
	return w.LBAStart, w.LBALen, true
}

// checkSaturation implements the §4.6 "Saturation" rule: if used/total >=
// update_limit and M == 0, report HORIZON_FALLBACK (an info code, not an
// error) and latch RUNTIME_SATURATED.
func (al *Allocator) checkSaturation(m uint8) bool {
	total := al.bm.TotalBlocks()
	if total == 0 {
		return false
	}
	used := al.bm.UsedCount()
	if used*1000/total >= al.updateLimitPerMille {
		atomic.StoreInt32(&al.saturated, 1)
		return m == 0
	}
	return false
}

// maxK returns the orbit index ceiling, clamped for Pico profile, which "clamps K
// to 0 (no gravity assist)" (§4.6 "Saturation").
func (al *Allocator) maxK() int {
	if al.profile == types.ProfilePico {
		return 0
	}
	return maxOrbitK
}

// withinStrictWindow reports whether all 8 hops (G+0..G+7) of a candidate
// stay inside [start, start+phi) (§4.6 "Strict locality").
func withinStrictWindow(candidate types.Addr, start types.Addr, phi uint64) bool {
	rel := uint64(candidate - start)
	return rel+7 < phi
}

// AllocGenesis implements alloc_genesis(vol, hint, flags, &G_out, &V_out)
// (§4.6): choose a new (G, V) pair for a brand-new anchor.
func (al *Allocator) AllocGenesis(hint uint64, flags types.MountIntentFlags, contiguous bool) (g, v uint64, err error) {
	start, phi, strict := al.window()
	if phi == 0 {
		return 0, 0, herr.New(herr.ErrEventHorizon, "AllocGenesis", "", "no flux capacity available")
	}
	if al.checkSaturation(0) {
		return 0, 0, herr.New(herr.InfoHorizonFallback, "AllocGenesis", "", "volume saturated, fall back to horizon")
	}

	railMode := contiguous || al.profile.ForcesRailMode()

	probes := DefaultStrictLocalityProbes
	for i := 0; i < probes; i++ {
		g = (hint + uint64(i)) % phi
		if railMode {
			v = 1
		} else {
			v = SanitizeVector(al.h, al.h.NextUint64(), phi)
		}

		candidate := start + types.Addr(g)
		toxic, tErr := al.qmask.IsToxic(uint64(candidate))
		if tErr == nil && toxic {
			continue
		}
		if strict && !withinStrictWindow(candidate, start, phi) {
			continue
		}
		return g, v, nil
	}

	return 0, 0, herr.New(herr.ErrEventHorizon, "AllocGenesis", "", "strict locality exhausted after probe budget")
}

// AllocBlock implements alloc_block(vol, anchor, N, &lba_out, &K_out)
// (§4.6): allocate the next physical block for anchor at logical index N,
// trying orbit indices K = 0..max_k in order.
func (al *Allocator) AllocBlock(anchor *types.Anchor, n uint64) (lba types.Addr, k uint8, err error) {
	start, phi, strict := al.window()
	if phi == 0 {
		return types.InvalidAddr, 0, herr.New(herr.ErrEventHorizon, "AllocBlock", "", "no flux capacity available")
	}
	if err := validateUnit(phi, uint8(anchor.FractalScale)); err != nil {
		return types.InvalidAddr, 0, err
	}

	saturate := al.checkSaturation(uint8(anchor.FractalScale))

	geo := Geometry{
		FluxStart:     start,
		Phi:           phi,
		SuppressTheta: al.dev.DeviceType().SuppressesTheta() || al.profile.SuppressesTheta(),
	}
	v := SanitizeVector(al.h, anchor.Velocity(), phi)

	maxK := al.maxK()
	for kk := 0; kk <= maxK; kk++ {
		coord := Coord{G: anchor.GravityCenter, V: v, N: n, M: uint8(anchor.FractalScale), K: uint8(kk)}
		candidate := CalcTrajectoryLBA(geo, coord)
		if candidate == types.InvalidAddr {
			continue
		}
		toxic, tErr := al.qmask.IsToxic(uint64(candidate))
		if tErr == nil && toxic {
			continue
		}
		if strict && !withinStrictWindow(candidate, start, phi) {
			continue
		}
		set, cErr := al.bm.CAS(uint64(candidate))
		if cErr != nil {
			continue
		}
		if set {
			return candidate, uint8(kk), nil
		}
		// Bit already taken: try the next orbit.
	}

	if strict {
		return types.InvalidAddr, 0, herr.New(herr.ErrEventHorizon, "AllocBlock", "", "accelerator window saturated under strict locality")
	}
	if anchor.FractalScale != 0 {
		return types.InvalidAddr, 0, herr.New(herr.ErrGravityCollapse, "AllocBlock", "", "orbit exhausted for non-unit fractal scale")
	}
	if saturate {
		return types.InvalidAddr, 0, herr.New(herr.InfoHorizonFallback, "AllocBlock", "", "orbit exhausted and volume saturated")
	}
	lba, hErr := al.AllocHorizon()
	return lba, sentinelK, hErr
}

// CandidateLBAs recomputes the same K = 0..max_k trajectory sequence
// AllocBlock would have tried for (anchor, n), without touching the bitmap
// or quality mask. A read path uses this to recover which of the sequence
// is the one that actually landed, by checking each candidate's on-disk
// block header (§4.6: K itself is never stored, only recoverable by
// replaying the deterministic sequence).
func (al *Allocator) CandidateLBAs(anchor *types.Anchor, n uint64) ([]types.Addr, error) {
	start, phi, _ := al.window()
	if phi == 0 {
		return nil, herr.New(herr.ErrEventHorizon, "CandidateLBAs", "", "no flux capacity available")
	}
	if err := validateUnit(phi, uint8(anchor.FractalScale)); err != nil {
		return nil, err
	}

	geo := Geometry{
		FluxStart:     start,
		Phi:           phi,
		SuppressTheta: al.dev.DeviceType().SuppressesTheta() || al.profile.SuppressesTheta(),
	}
	v := SanitizeVector(al.h, anchor.Velocity(), phi)

	out := make([]types.Addr, 0, al.maxK()+2)
	for kk := 0; kk <= al.maxK(); kk++ {
		coord := Coord{G: anchor.GravityCenter, V: v, N: n, M: uint8(anchor.FractalScale), K: uint8(kk)}
		if lba := CalcTrajectoryLBA(geo, coord); lba != types.InvalidAddr {
			out = append(out, lba)
		}
	}
	if al.horizonLen > 0 {
		for i := uint64(0); i < al.horizonHead; i++ {
			out = append(out, al.horizonStart+types.Addr(i))
		}
	}
	return out, nil
}

// AllocHorizon implements alloc_horizon(vol, &lba_out) (§4.6): monotonic
// append into the horizon ring between horizon_start and chronicle_start.
func (al *Allocator) AllocHorizon() (types.Addr, error) {
	if al.horizonLen == 0 {
		return types.InvalidAddr, herr.New(herr.ErrEnospc, "AllocHorizon", "", "horizon ring has no capacity")
	}
	for {
		old := atomic.LoadUint64(&al.horizonHead)
		if old >= al.horizonLen {
			return types.InvalidAddr, herr.New(herr.ErrEnospc, "AllocHorizon", "", "horizon ring exhausted")
		}
		if atomic.CompareAndSwapUint64(&al.horizonHead, old, old+1) {
			return al.horizonStart + types.Addr(old), nil
		}
	}
}

// HorizonUsed reports how many horizon slots have been consumed, for fsck
// and status reporting.
func (al *Allocator) HorizonUsed() uint64 {
	return atomic.LoadUint64(&al.horizonHead)
}
