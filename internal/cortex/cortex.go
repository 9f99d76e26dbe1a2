// Package cortex implements the anchor directory: an open-addressed table
// of fixed-size Anchor records living in the cortex region (§3, §4.4, §4.5
// addendum). spec.md defines the Anchor record and its lifecycle but never
// names a lookup structure; this package is the minimal one that makes
// CreateAnchor/LookupAnchor well defined: hash(seed_id) mod capacity,
// linear probe on collision, tombstone skip on delete.
//
// Grounded on the teacher's object map (apfs/pkg/container/omap.go), which
// resolves a logical object id to a physical block via a lookup structure
// over a fixed on-disk region; generalized here from a b-tree keyed lookup
// to a flat open-addressed table, since HN4 has no need for the b-tree's
// ordered-range queries — every lookup is by exact seed_id.
package cortex

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Directory is the anchor table over one volume's cortex region.
type Directory struct {
	h          *hal.Handle
	dev        hal.Device
	start      types.Addr // cortex_start, absolute LBA
	sectorSize uint32
	slotCount  uint64
}

// New builds a Directory over [start, start+lengthSectors) sized for
// AnchorSize-byte slots.
func New(h *hal.Handle, dev hal.Device, start types.Addr, lengthSectors uint64) *Directory {
	sectorSize := dev.SectorSize()
	totalBytes := lengthSectors * uint64(sectorSize)
	return &Directory{
		h:          h,
		dev:        dev,
		start:      start,
		sectorSize: sectorSize,
		slotCount:  totalBytes / types.AnchorSize,
	}
}

// SlotCount reports the table's fixed capacity.
func (d *Directory) SlotCount() uint64 { return d.slotCount }

// hashSeed mixes a seed_id's two 64-bit halves down to one index-space
// hash with a murmur-style finalizer (a fuller mix than the single round
// the parity engine's row lock uses), so adversarial input sees no linear
// congruential short cycles.
func hashSeed(id types.UUID) uint64 {
	mix := id.Hi ^ (id.Lo*0x9E3779B97F4A7C15 + 0x9E3779B97F4A7C15)
	mix ^= mix >> 33
	mix *= 0xff51afd7ed558ccd
	mix ^= mix >> 33
	mix *= 0xc4ceb9fe1a85ec53
	mix ^= mix >> 33
	return mix
}

func (d *Directory) slotLBA(slot uint64) (types.Addr, uint64) {
	byteOff := slot * types.AnchorSize
	sectorsIn := byteOff / uint64(d.sectorSize)
	withinSector := byteOff % uint64(d.sectorSize)
	return d.start + types.Addr(sectorsIn), withinSector
}

func (d *Directory) readSlot(slot uint64) (*types.Anchor, error) {
	lba, off := d.slotLBA(slot)
	buf := make([]byte, d.sectorSize)
	res := d.h.SyncIO(d.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return nil, herr.New(herr.ErrHwIO, "readSlot", "", res.Err.Error())
	}
	a, err := types.DeserializeAnchor(buf[off : off+types.AnchorSize])
	if err != nil {
		return nil, herr.New(herr.ErrInternalFault, "readSlot", "", "short anchor slot")
	}
	return a, nil
}

// writeSlot does a read-modify-write of the sector containing slot, since
// multiple AnchorSize slots typically share one sector.
func (d *Directory) writeSlot(slot uint64, a *types.Anchor) error {
	lba, off := d.slotLBA(slot)
	buf := make([]byte, d.sectorSize)
	res := d.h.SyncIO(d.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "writeSlot", "", res.Err.Error())
	}
	copy(buf[off:off+types.AnchorSize], a.Serialize())
	wres := d.h.SyncIO(d.dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: buf})
	if wres.Err != nil {
		return herr.New(herr.ErrHwIO, "writeSlot", "", wres.Err.Error())
	}
	return nil
}

// PutAt writes a directly to slot, bypassing hashing — used only by the
// formatter for the root anchor, which is pinned to slot 0 (§4.4: "Write
// root anchor to cortex_start").
func (d *Directory) PutAt(slot uint64, a *types.Anchor) error {
	if slot >= d.slotCount {
		return herr.New(herr.ErrInvalidArgument, "PutAt", "", "slot out of range")
	}
	return d.writeSlot(slot, a)
}

// GetAt reads the raw slot at index slot, regardless of its seed_id —
// used by fsck's full-table scan.
func (d *Directory) GetAt(slot uint64) (*types.Anchor, error) {
	if slot >= d.slotCount {
		return nil, herr.New(herr.ErrInvalidArgument, "GetAt", "", "slot out of range")
	}
	return d.readSlot(slot)
}

// Lookup probes from hash(seed_id) mod capacity, skipping tombstones and
// colliding live entries, until it finds seed_id, an empty slot (not
// found), or exhausts the table (ErrNotFound). The reserved root identity
// never participates in hashing: the formatter pins it to slot 0 (§4.4
// "Write root anchor to cortex_start"), so it resolves there directly.
func (d *Directory) Lookup(seedID types.UUID) (*types.Anchor, uint64, error) {
	if seedID.IsRoot() {
		a, err := d.readSlot(0)
		if err != nil {
			return nil, 0, err
		}
		if a.IsEmpty() || a.SeedID != seedID {
			return nil, 0, herr.New(herr.ErrNotFound, "Lookup", "", "root anchor slot is empty or foreign")
		}
		return a, 0, nil
	}
	start := hashSeed(seedID) % d.slotCount
	for probe := uint64(0); probe < d.slotCount; probe++ {
		slot := (start + probe) % d.slotCount
		a, err := d.readSlot(slot)
		if err != nil {
			return nil, 0, err
		}
		if a.IsEmpty() && !a.DataClass.Has(types.ClassTombstone) {
			return nil, 0, herr.New(herr.ErrNotFound, "Lookup", "", "seed_id not present")
		}
		if !a.DataClass.Has(types.ClassTombstone) && a.SeedID == seedID {
			return a, slot, nil
		}
	}
	return nil, 0, herr.New(herr.ErrNotFound, "Lookup", "", "table exhausted")
}

// Insert finds the first empty-or-tombstone slot starting at
// hash(seed_id) and writes a there, rejecting a duplicate live seed_id
// with ErrEexist.
func (d *Directory) Insert(a *types.Anchor) (uint64, error) {
	start := hashSeed(a.SeedID) % d.slotCount
	for probe := uint64(0); probe < d.slotCount; probe++ {
		slot := (start + probe) % d.slotCount
		existing, err := d.readSlot(slot)
		if err != nil {
			return 0, err
		}
		if !existing.DataClass.Has(types.ClassTombstone) && !existing.IsEmpty() {
			if existing.SeedID == a.SeedID {
				return 0, herr.New(herr.ErrEexist, "Insert", "", "seed_id already present")
			}
			continue // live collision, keep probing
		}
		if err := d.writeSlot(slot, a); err != nil {
			return 0, err
		}
		return slot, nil
	}
	return 0, herr.New(herr.ErrEnospc, "Insert", "", "anchor table full")
}

// Update rewrites the slot already holding a.SeedID with a's current
// field values, the persistence half of the anchor write-path mutation
// contract (§3 lifecycle: "mutated by writes (mass, mod_clock,
// write_gen)").
func (d *Directory) Update(a *types.Anchor) error {
	_, slot, err := d.Lookup(a.SeedID)
	if err != nil {
		return err
	}
	return d.writeSlot(slot, a)
}

// Delete marks seed_id's slot as a tombstone (ClassTombstone set, ClassValid
// cleared) rather than zeroing it, preserving the probe chain for every
// other key that hashed past this slot.
func (d *Directory) Delete(seedID types.UUID) error {
	_, slot, err := d.Lookup(seedID)
	if err != nil {
		return err
	}
	tomb := &types.Anchor{
		SeedID:    seedID,
		DataClass: types.ClassTombstone,
	}
	return d.writeSlot(slot, tomb)
}
