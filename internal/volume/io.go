package volume

import (
	"hash/crc32"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/parity"
	"github.com/hn4dev/hn4/internal/types"
)

// blockBytes returns the I/O unit size for the flux data path: one
// stripe-unit's worth of sectors for a PARITY array (the RMW engine's
// native unit, §4.7), or the volume's block size everywhere else.
func (v *Volume) blockBytes() uint32 {
	if v.array.Mode() == parity.ModeParity {
		return uint32(v.stripeUnitSectors()) * v.dev.SectorSize()
	}
	return v.mr.SB.BlockSize
}

func (v *Volume) stripeUnitSectors() uint64 {
	// The array doesn't expose its configured stripe unit directly; derive
	// it from the default set at Mount time. This assumes a 1-sector stripe
	// unit, Mount's default when opts.StripeUnit is zero; a non-zero
	// opts.StripeUnit is not reflected here.
	return 1
}

func (v *Volume) parityRowAndCol(anchor *types.Anchor, n uint64, lba types.Addr) (row uint64, phys int, err error) {
	count := v.array.DeviceCount()
	dataCols := count - 2
	if dataCols <= 0 {
		return 0, 0, herr.New(herr.ErrGeometry, "parityRowAndCol", "", "parity array has fewer than 3 devices")
	}
	row = uint64(lba - v.mr.SB.Regions.FluxStart)
	layout := parity.ComputeRowLayout(row, count)
	logicalCol := int(n % uint64(dataCols))
	return row, layout.DataCols[logicalCol], nil
}

// buildBlock assembles one on-disk block: header (magic, flags, anchor
// seed_id, logical_index, CRCs) followed by payload (§6 "Block header
// prefixes every data block"). payload must be exactly blockSize -
// BlockHeaderSize bytes, the fixed per-block payload capacity; this keeps
// DataCRC's domain unambiguous on read back.
func buildBlock(anchor *types.Anchor, n uint64, payload []byte, blockSize uint32) ([]byte, error) {
	if uint32(len(payload)) != blockSize-types.BlockHeaderSize {
		return nil, herr.New(herr.ErrInvalidArgument, "buildBlock", "", "payload must exactly fill one block")
	}
	buf := make([]byte, blockSize)
	hdr := &types.BlockHeader{
		Magic:        types.BlockHeaderMagic,
		AnchorSeedID: anchor.SeedID,
		LogicalIndex: n,
		DataCRC:      crc32.ChecksumIEEE(payload),
	}
	body := hdr.Serialize(buf)
	copy(body, payload)
	return buf, nil
}

// WriteBlock allocates (if necessary) and writes the block at anchor's
// logical index n, routing through the array's mode (§4.6 alloc_block,
// §4.7 router write path). A successful write mutates the anchor's mass,
// mod_clock, and write_gen and persists the updated record back to the
// cortex (§3 anchor lifecycle).
func (v *Volume) WriteBlock(anchor *types.Anchor, n uint64, payload []byte) (types.Addr, error) {
	release := v.pin()
	defer release()

	if anchor.DataClass.Has(types.ClassTombstone) {
		return types.InvalidAddr, herr.New(herr.ErrTombstone, "WriteBlock", "", "anchor is tombstoned")
	}
	if !anchor.Permissions.Has(types.PermWrite) {
		return types.InvalidAddr, herr.New(herr.ErrAccessDenied, "WriteBlock", "", "anchor lacks WRITE permission")
	}

	blockSize := v.blockBytes()
	lba, _, err := v.alloc.AllocBlock(anchor, n)
	if err != nil {
		return types.InvalidAddr, err
	}
	buf, err := buildBlock(anchor, n, payload, blockSize)
	if err != nil {
		return types.InvalidAddr, err
	}

	if v.array.Mode() == parity.ModeParity {
		row, phys, perr := v.parityRowAndCol(anchor, n, lba)
		if perr != nil {
			return types.InvalidAddr, perr
		}
		if v.array.RowDegraded(row) {
			err = v.array.DegradedWrite(v.h, v.log, row, map[int][]byte{phys: buf})
		} else {
			err = v.array.WriteStripe(v.h, v.log, row, phys, buf)
		}
		if err != nil {
			return types.InvalidAddr, err
		}
	} else if err := v.array.Write(v.h, v.log, anchor.SeedID, lba, buf); err != nil {
		return types.InvalidAddr, err
	}

	anchor.Mass += uint64(len(payload))
	anchor.WriteGen++
	anchor.ModClock = hal.NowNanos()
	if err := v.dir.Update(anchor); err != nil {
		return types.InvalidAddr, err
	}
	return lba, nil
}

// ReadBlock recovers the block HN4 would have placed at anchor's logical
// index n: it recomputes the deterministic trajectory across K = 0..max_k
// and verifies the candidate's block header against (anchor.SeedID, n)
// before trusting it, since K itself isn't stored anywhere (§4.6's
// allocation is deterministic given the same bitmap state, but a read path
// must disambiguate by content, not just recompute blindly).
func (v *Volume) ReadBlock(anchor *types.Anchor, n uint64) ([]byte, error) {
	release := v.pin()
	defer release()

	if anchor.DataClass.Has(types.ClassTombstone) {
		return nil, herr.New(herr.ErrTombstone, "ReadBlock", "", "anchor is tombstoned")
	}

	if v.array.Mode() == parity.ModeParity {
		return v.readBlockParity(anchor, n)
	}

	lba, err := v.locateBlock(anchor, n)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, v.blockBytes())
	if err := v.array.Read(v.h, anchor.SeedID, lba, buf); err != nil {
		return nil, err
	}
	return verifyBlock(anchor, n, buf)
}

// readBlockParity replays the candidate trajectory and reads each
// candidate's data column through ReadStripe, so a transiently failed or
// silently corrupted column is healed by reconstruction rather than
// skipped (§4.7 "Read with healing"). The header's (seed_id, logical
// index) pair disambiguates which orbit actually landed.
func (v *Volume) readBlockParity(anchor *types.Anchor, n uint64) ([]byte, error) {
	candidates, err := v.candidateLBAs(anchor, n)
	if err != nil {
		return nil, err
	}
	for _, lba := range candidates {
		row, phys, perr := v.parityRowAndCol(anchor, n, lba)
		if perr != nil {
			return nil, perr
		}
		res, rerr := v.array.ReadStripe(v.h, row, phys)
		if rerr != nil {
			continue
		}
		hdr, _, derr := types.DeserializeBlockHeader(res.Data)
		if derr != nil || hdr.Magic != types.BlockHeaderMagic {
			continue
		}
		if hdr.AnchorSeedID != anchor.SeedID || hdr.LogicalIndex != n {
			continue
		}
		return verifyBlock(anchor, n, res.Data)
	}
	return nil, herr.New(herr.ErrNotFound, "ReadBlock", "", "no block found for this anchor/logical index")
}

// verifyBlock validates a block's header identity and both CRCs before
// releasing its payload to the caller (§4.7 "Silent corruption recovery",
// final read-side check).
func verifyBlock(anchor *types.Anchor, n uint64, buf []byte) ([]byte, error) {
	hdr, payload, derr := types.DeserializeBlockHeader(buf)
	if derr != nil || hdr.Magic != types.BlockHeaderMagic {
		return nil, herr.New(herr.ErrDataRot, "ReadBlock", "", "block header invalid")
	}
	if hdr.AnchorSeedID != anchor.SeedID || hdr.LogicalIndex != n {
		return nil, herr.New(herr.ErrDataRot, "ReadBlock", "", "block header identity mismatch")
	}
	if !hdr.VerifyHeaderCRC(buf) || !hdr.VerifyPayloadCRC(payload) {
		return nil, herr.New(herr.ErrDataRot, "ReadBlock", "", "payload CRC mismatch")
	}
	return payload, nil
}

// candidateLBAs delegates to the allocator's replay of alloc_block's
// trajectory sequence for (anchor, n).
func (v *Volume) candidateLBAs(anchor *types.Anchor, n uint64) ([]types.Addr, error) {
	return v.alloc.CandidateLBAs(anchor, n)
}

// locateBlock recomputes candidate LBAs the same way alloc_block would
// (§4.6), trying allocator.CandidateLBAs in order (orbits 0..maxK, then
// the used horizon slots), and returns the first whose
// on-disk header matches (anchor.SeedID, n). PARITY volumes locate through
// readBlockParity instead, since column rotation means the block may not
// live on the primary member at all.
func (v *Volume) locateBlock(anchor *types.Anchor, n uint64) (types.Addr, error) {
	candidates, err := v.candidateLBAs(anchor, n)
	if err != nil {
		return types.InvalidAddr, err
	}
	for _, lba := range candidates {
		buf := make([]byte, types.BlockHeaderSize)
		if res := v.h.SyncIO(v.dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf}); res.Err != nil {
			continue
		}
		hdr, _, derr := types.DeserializeBlockHeader(buf)
		if derr != nil || hdr.Magic != types.BlockHeaderMagic {
			continue
		}
		if hdr.AnchorSeedID == anchor.SeedID && hdr.LogicalIndex == n {
			return lba, nil
		}
	}
	return types.InvalidAddr, herr.New(herr.ErrNotFound, "locateBlock", "", "no block found for this anchor/logical index")
}
