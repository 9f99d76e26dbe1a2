package parity

import (
	"sort"

	"github.com/hn4dev/hn4/internal/chronicle"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// WriteRowPlan is one target data column's update within a PARITY-mode
// write that may span multiple rows (§4.7 "Boundary crossings").
type WriteRowPlan struct {
	Row  uint64
	Phys int // physical data column
	New  []byte
}

// WriteStripe performs the §4.7 RMW write sequence for a single row,
// updating exactly one data column (WriteRows below handles boundary
// crossings by issuing one call per affected row).
func (a *Array) WriteStripe(h *hal.Handle, log *chronicle.Log, row uint64, targetPhys int, newData []byte) error {
	unlock := a.lockRow(row)
	defer unlock()

	layout := ComputeRowLayout(row, len(a.members))

	old, err := a.readOrReconstruct(h, row, layout, targetPhys)
	if err != nil {
		return err
	}
	if len(old) != len(newData) {
		return herr.New(herr.ErrInvalidArgument, "WriteStripe", "", "new data length must equal stripe unit size")
	}

	delta := make([]byte, len(old))
	copy(delta, old)
	XORBlock(delta, newData) // delta = old ^ new

	var pNew, qNew []byte
	pOnline := a.isOnline(layout.PCol)
	qOnline := a.isOnline(layout.QCol)

	if pOnline {
		pOld, perr := a.readColumn(h, row, layout.PCol)
		if perr != nil {
			pOnline = false
		} else {
			pNew = make([]byte, len(pOld))
			copy(pNew, pOld)
			XORBlock(pNew, delta) // P_new = P_old ^ delta, only if P online
		}
	}

	if qOnline {
		qOld, qerr := a.readColumn(h, row, layout.QCol)
		if qerr != nil {
			qOnline = false
		} else {
			logical := layout.LogicalOfPhysical(targetPhys)
			coeff := Pow(logical)
			scaled := make([]byte, len(delta))
			ScaleBlock(scaled, delta, coeff) // delta (x) g^logical
			qNew = make([]byte, len(qOld))
			copy(qNew, qOld)
			XORBlock(qNew, scaled) // Q_new = Q_old ^ (delta * g^i), regardless of P status
		}
	}

	// Append + flush the WORMHOLE chronicle entry: the log is the commit
	// point (§4.7 step 5/6, §7 "Parity writes: log failure triggers
	// AUDIT_FAILURE and aborts before any data write").
	targetLBA := types.Addr(row*a.stripeUnit) + types.Addr(targetPhys)
	if _, aerr := log.Append(types.OpWormhole, types.InvalidAddr, targetLBA, uint64(targetPhys)); aerr != nil {
		return herr.New(herr.ErrAuditFailure, "WriteStripe", "", "chronicle append failed, no data written")
	}
	if ferr := log.Flush(); ferr != nil {
		return herr.New(herr.ErrAuditFailure, "WriteStripe", "", "chronicle flush failed, no data written")
	}

	onlineCount := 0
	if a.isOnline(targetPhys) {
		onlineCount++
	}
	if a.isOnline(layout.PCol) {
		onlineCount++
	}
	if a.isOnline(layout.QCol) {
		onlineCount++
	}
	if onlineCount < 3 {
		a.markDegraded()
	}

	if err := a.writeColumn(h, row, targetPhys, newData); err != nil {
		return err
	}
	if pNew != nil {
		if err := a.writeColumn(h, row, layout.PCol, pNew); err != nil {
			a.markDegraded()
		}
	}
	if qNew != nil {
		if err := a.writeColumn(h, row, layout.QCol, qNew); err != nil {
			a.markDegraded()
		}
	}

	return nil
}

// WriteRows writes a logically contiguous run split across multiple rows
// (§4.7 "Boundary crossings": "An I/O spanning two stripe units or two
// zones must be split and each piece executed independently, each under
// its own row lock"). Each plan entry is one row's share of the I/O.
func (a *Array) WriteRows(h *hal.Handle, log *chronicle.Log, plans []WriteRowPlan) error {
	for _, p := range plans {
		if err := a.WriteStripe(h, log, p.Row, p.Phys, p.New); err != nil {
			return err
		}
	}
	return nil
}

// readOrReconstruct reads the current contents of physical column phys at
// row r, reconstructing via Reconstruct if it is offline or fails
// verification (RMW step 1: "if that column is offline, reconstruct it
// from surviving P/Q/other-data using solver below").
func (a *Array) readOrReconstruct(h *hal.Handle, row uint64, layout RowLayout, phys int) ([]byte, error) {
	if a.isOnline(phys) {
		buf, err := a.readDataColumnVerified(h, row, phys)
		if err == nil {
			return buf, nil
		}
	}
	return a.Reconstruct(h, row, layout, phys)
}

// DegradedWrite applies updates (physical data column -> new stripe-unit
// contents) to row under §4.7's "Degraded write" rule. Each target column
// goes through the full RMW cycle: an offline target's old contents are
// reconstructed from the survivors (Case C when two data columns are down
// with P and Q alive), the delta is folded into every online parity
// column, and the data write itself is skipped for offline targets — the
// survivors carry the new contents until a rebuild. Three or more offline
// columns are unrecoverable (PARITY_BROKEN) and nothing is written.
func (a *Array) DegradedWrite(h *hal.Handle, log *chronicle.Log, row uint64, updates map[int][]byte) error {
	layout := ComputeRowLayout(row, len(a.members))
	offline := 0
	for _, phys := range layout.DataCols {
		if !a.isOnline(phys) {
			offline++
		}
	}
	if !a.isOnline(layout.PCol) {
		offline++
	}
	if !a.isOnline(layout.QCol) {
		offline++
	}
	if offline >= 3 {
		return herr.New(herr.ErrParityBroken, "DegradedWrite", "", "three or more columns offline")
	}
	if offline > 0 {
		a.markDegraded()
	}

	// Map iteration order is randomized; sort so a multi-column degraded
	// write lays down its chronicle entries and parity deltas in a
	// deterministic order.
	targets := make([]int, 0, len(updates))
	for phys := range updates {
		targets = append(targets, phys)
	}
	sort.Ints(targets)

	for _, phys := range targets {
		if layout.LogicalOfPhysical(phys) < 0 {
			return herr.New(herr.ErrInvalidArgument, "DegradedWrite", "", "update targets a parity column")
		}
		if err := a.WriteStripe(h, log, row, phys, updates[phys]); err != nil {
			return err
		}
	}
	return nil
}
