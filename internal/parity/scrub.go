package parity

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
)

// RebuildParity recomputes P and Q for row r directly from its data
// columns and rewrites them. A mount-time scrub calls this for every row a
// RecoveryScan flagged as possibly torn (a WORMHOLE entry near the tail
// with no way to tell whether the crash landed before or after P/Q were
// updated, §4.7 "write hole"): recomputing from data is always safe since
// RMW writes the data column before P and Q.
//
// Every data column must be readable. An offline or unreadable column
// cannot be reconstructed here — the torn-stripe scenario is exactly the
// one where P/Q are suspect, so there is no trustworthy equation left to
// solve for it — and folding it in as zeros would commit parity that
// disagrees with the column's real bytes, breaking every later
// reconstruction against it. In that case the rebuild refuses with
// PARITY_BROKEN and leaves the existing (possibly stale) parity in place:
// the data columns themselves are untouched either way, and stale parity
// plus intact data is recoverable by a rerun once the column returns,
// while wrong parity is not. The raw column bytes are folded without
// header verification: a torn row legitimately holds either the old or the
// new block (both header-valid), and a never-written column is all zeros,
// which XORs in as a no-op.
func (a *Array) RebuildParity(h *hal.Handle, row uint64) error {
	unlock := a.lockRow(row)
	defer unlock()

	layout := ComputeRowLayout(row, len(a.members))

	var size int
	data := make(map[int][]byte)
	for _, phys := range layout.DataCols {
		buf, err := a.readColumn(h, row, phys)
		if err != nil {
			return herr.New(herr.ErrParityBroken, "RebuildParity", "", "data column unreadable; rebuilding parity without its contents would corrupt the row")
		}
		data[phys] = buf
		size = len(buf)
	}
	if size == 0 {
		return herr.New(herr.ErrParityBroken, "RebuildParity", "", "no data columns in this row")
	}

	p := make([]byte, size)
	q := make([]byte, size)
	for _, phys := range layout.DataCols {
		buf := data[phys]
		XORBlock(p, buf)
		logical := layout.LogicalOfPhysical(phys)
		term := make([]byte, size)
		ScaleBlock(term, buf, Pow(logical))
		XORBlock(q, term)
	}

	if err := a.writeColumn(h, row, layout.PCol, p); err != nil {
		return err
	}
	return a.writeColumn(h, row, layout.QCol, q)
}
