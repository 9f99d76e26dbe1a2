package volume

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// NewAnchorParams is the caller-supplied portion of a fresh anchor; the
// router fills in seed_id, gravity_center, and orbit_vector from the
// allocator (§4.6 alloc_genesis).
type NewAnchorParams struct {
	Class       types.DataClass
	Permissions types.Permissions
	FractalScale uint16
	Contiguous   bool
	Hint         uint64
}

// CreateAnchor allocates a (G, V) pair via alloc_genesis, builds a fresh
// anchor around it, and inserts it into the cortex directory (§4.4 Root
// anchor paragraph's non-root counterpart, §4.6 alloc_genesis).
func (v *Volume) CreateAnchor(p NewAnchorParams) (*types.Anchor, error) {
	release := v.pin()
	defer release()

	g, vel, err := v.alloc.AllocGenesis(p.Hint, v.mr.SB.MountIntentFlags, p.Contiguous)
	if err != nil {
		return nil, err
	}

	ts := hal.NowNanos()
	seedID := types.GenerateUUIDv7(ts/1_000_000, v.h.RandBytes)

	a := &types.Anchor{
		SeedID:        seedID,
		GravityCenter: g,
		DataClass:     p.Class | types.ClassValid,
		Permissions:   p.Permissions,
		CreateClock:   uint32(ts / 1e9),
		ModClock:      ts,
		FractalScale:  p.FractalScale,
	}
	a.SetVelocity(vel)

	if _, err := v.dir.Insert(a); err != nil {
		return nil, err
	}
	return a, nil
}

// LookupAnchor resolves seed_id to its anchor record. The returned release
// func must be called when the caller is done with the anchor; it drops the
// borrow the lookup pinned (§9 "borrow handle").
func (v *Volume) LookupAnchor(seedID types.UUID) (*types.Anchor, func(), error) {
	release := v.pin()
	a, _, err := v.dir.Lookup(seedID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return a, release, nil
}

// DeleteAnchor tombstones seed_id's cortex slot (§4.5 addendum). Blocks the
// anchor already wrote remain allocated in the bitmap; HN4 has no anchor-level
// garbage collection pass (blocks are only reclaimed by a future whole-volume
// scrub, out of scope here).
func (v *Volume) DeleteAnchor(seedID types.UUID) error {
	release := v.pin()
	defer release()

	a, _, err := v.dir.Lookup(seedID)
	if err != nil {
		return err
	}
	if !a.Permissions.Has(types.PermWrite) || a.Permissions.Has(types.PermImmutable) {
		return herr.New(herr.ErrAccessDenied, "DeleteAnchor", "", "anchor is immutable or read-only")
	}
	return v.dir.Delete(seedID)
}
