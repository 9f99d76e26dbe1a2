package volume

import (
	"github.com/hn4dev/hn4/internal/chronicle"
	"github.com/hn4dev/hn4/internal/parity"
)

// FsckResult summarizes what a Fsck pass found and repaired.
type FsckResult struct {
	Chronicle   *chronicle.RecoveryResult
	RowsScrubbed int
	ScrubErrors  []error
}

// Fsck runs the chronicle's tail-to-head recovery scan and, for a PARITY
// array, rebuilds parity on every row the scan flagged as possibly torn
// (§4.7 "write hole safety property": a crash mid-RMW can leave P/Q stale
// relative to data but never the reverse, so recompute-from-data always
// converges on a consistent row). Non-PARITY volumes have nothing to
// reconstruct; the chronicle scan result alone is the fsck outcome.
func (v *Volume) Fsck() (*FsckResult, error) {
	release := v.pin()
	defer release()

	scan, err := v.log.RecoveryScan()
	if err != nil {
		return nil, err
	}
	res := &FsckResult{Chronicle: scan}

	if v.array.Mode() != parity.ModeParity || len(scan.TornStripes) == 0 {
		return res, nil
	}

	seen := make(map[uint64]bool)
	for _, ts := range scan.TornStripes {
		// WriteStripe/DegradedWrite tag NewLBA as row*stripe_unit + phys and
		// PayloadTag as phys; with Mount's default 1-sector stripe unit,
		// row recovers by simple subtraction.
		row := uint64(ts.NewLBA) - ts.PayloadTag
		if seen[row] {
			continue
		}
		seen[row] = true
		if err := v.array.RebuildParity(v.h, row); err != nil {
			res.ScrubErrors = append(res.ScrubErrors, err)
			continue
		}
		res.RowsScrubbed++
	}
	return res, nil
}
