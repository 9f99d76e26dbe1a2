package parity

import (
	"github.com/hn4dev/hn4/internal/chronicle"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// Read dispatches a sector-unit read through the array's mode (§4.7).
func (a *Array) Read(h *hal.Handle, id types.UUID, lba types.Addr, buf []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.mode {
	case ModeSingle:
		return a.readSingle(h, lba, buf)
	case ModeMirror:
		return a.readMirror(h, lba, buf)
	case ModeShard:
		return a.readShard(h, id, lba, buf)
	case ModeParity:
		return herr.New(herr.ErrInvalidArgument, "Read", "", "use ReadStripe/ReadRows directly for PARITY mode")
	default:
		return herr.New(herr.ErrInvalidArgument, "Read", "", "unknown array mode")
	}
}

// Write dispatches a sector-unit write through the array's mode (§4.7).
func (a *Array) Write(h *hal.Handle, log *chronicle.Log, id types.UUID, lba types.Addr, buf []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.mode {
	case ModeSingle:
		return a.writeSingle(h, lba, buf)
	case ModeMirror:
		return a.writeMirror(h, lba, buf)
	case ModeShard:
		return a.writeShard(h, id, lba, buf)
	default:
		return herr.New(herr.ErrInvalidArgument, "Write", "", "use WriteStripe/WriteRows directly for PARITY mode")
	}
}

func (a *Array) readSingle(h *hal.Handle, lba types.Addr, buf []byte) error {
	if len(a.members) == 0 {
		return herr.New(herr.ErrUninitialized, "readSingle", "", "array has no devices")
	}
	a.pin(0)
	defer a.unpin(0)
	dev := a.members[0].dev
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "readSingle", "", res.Err.Error())
	}
	return nil
}

func (a *Array) writeSingle(h *hal.Handle, lba types.Addr, buf []byte) error {
	if len(a.members) == 0 {
		return herr.New(herr.ErrUninitialized, "writeSingle", "", "array has no devices")
	}
	a.pin(0)
	defer a.unpin(0)
	dev := a.members[0].dev
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "writeSingle", "", res.Err.Error())
	}
	return nil
}

// readMirror reads from the lowest-index online device (§4.7 "read
// prefers the lowest-index online device").
func (a *Array) readMirror(h *hal.Handle, lba types.Addr, buf []byte) error {
	for i, m := range a.members {
		if !a.isOnline(i) {
			continue
		}
		a.pin(i)
		res := h.SyncIO(m.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
		a.unpin(i)
		if res.Err == nil {
			return nil
		}
	}
	return herr.New(herr.ErrHwIO, "readMirror", "", "no online mirror member could satisfy the read")
}

// writeMirror broadcasts to every online device; a write that produces
// success < online_count is HW_IO and marks the volume DEGRADED (§4.7).
// The write is strictly all-or-fail: each member's prior contents are read
// first, and on a partial failure the members that did take the new data
// are rolled back to them, so a diverged mirror never leaves a half-new
// stripe visible on the survivors (§8 scenario 6).
func (a *Array) writeMirror(h *hal.Handle, lba types.Addr, buf []byte) error {
	type target struct {
		idx int
		old []byte
	}
	var targets []target
	for i := range a.members {
		if !a.isOnline(i) {
			continue
		}
		a.pin(i)
		old := make([]byte, len(buf))
		res := h.SyncIO(a.members[i].dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: old})
		a.unpin(i)
		if res.Err != nil {
			old = nil // unreadable member: no rollback image, still a write target
		}
		targets = append(targets, target{idx: i, old: old})
	}
	if len(targets) == 0 {
		return herr.New(herr.ErrUninitialized, "writeMirror", "", "no online mirror members")
	}

	var succeeded []target
	failed := false
	for _, t := range targets {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		a.pin(t.idx)
		res := h.SyncIO(a.members[t.idx].dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: cp})
		a.unpin(t.idx)
		if res.Err == nil {
			succeeded = append(succeeded, t)
		} else {
			failed = true
		}
	}
	if !failed {
		return nil
	}

	for _, t := range succeeded {
		if t.old == nil {
			continue
		}
		a.pin(t.idx)
		_ = h.SyncIO(a.members[t.idx].dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: t.old}).Err
		a.unpin(t.idx)
	}
	a.markDegraded()
	return herr.New(herr.ErrHwIO, "writeMirror", "", "partial mirror write failure, survivors rolled back")
}

func (a *Array) readShard(h *hal.Handle, id types.UUID, lba types.Addr, buf []byte) error {
	idx, err := ShardSelect(id, a.isOnline, len(a.members))
	if err != nil {
		return err
	}
	a.pin(idx)
	defer a.unpin(idx)
	res := h.SyncIO(a.members[idx].dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "readShard", "", res.Err.Error())
	}
	return nil
}

func (a *Array) writeShard(h *hal.Handle, id types.UUID, lba types.Addr, buf []byte) error {
	idx, err := ShardSelect(id, a.isOnline, len(a.members))
	if err != nil {
		return err
	}
	a.pin(idx)
	defer a.unpin(idx)
	res := h.SyncIO(a.members[idx].dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "writeShard", "", res.Err.Error())
	}
	return nil
}

// SplitZoneBoundary rejects a PARITY-mode I/O that would cross a ZNS zone
// boundary (§4.7 "for ZNS, cross-zone writes are rejected with
// ZONE_FULL"). zoneSizeSectors is the device's zone size.
func SplitZoneBoundary(startLBA types.Addr, lengthSectors, zoneSizeSectors uint64) error {
	if zoneSizeSectors == 0 {
		return nil
	}
	startZone := uint64(startLBA) / zoneSizeSectors
	endZone := (uint64(startLBA) + lengthSectors - 1) / zoneSizeSectors
	if startZone != endZone {
		return herr.New(herr.ErrZoneFull, "SplitZoneBoundary", "", "I/O crosses a ZNS zone boundary")
	}
	return nil
}
