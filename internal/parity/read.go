package parity

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
)

// ReadResult is the outcome of ReadStripe.
type ReadResult struct {
	Data   []byte
	Healed bool // reconstruction was invoked and the read is invisibly healed
}

// ReadStripe implements §4.7's "Read with healing": read the requested
// data column; if the header CRC validates, return it; otherwise invoke
// reconstruction and, on success, opportunistically rewrite the healed
// sector (best-effort, per §4.7 "failure to rewrite is logged but not
// fatal").
func (a *Array) ReadStripe(h *hal.Handle, row uint64, targetPhys int) (ReadResult, error) {
	layout := ComputeRowLayout(row, len(a.members))

	buf, err := a.readDataColumnVerified(h, row, targetPhys)
	if err == nil {
		return ReadResult{Data: buf}, nil
	}

	recovered, rerr := a.Reconstruct(h, row, layout, targetPhys)
	if rerr != nil {
		return ReadResult{}, rerr
	}

	// Opportunistic rewrite of the healed sector; failure is non-fatal.
	_ = a.writeColumn(h, row, targetPhys, recovered)

	return ReadResult{Data: recovered, Healed: true}, nil
}

// ReadRows reads a logically contiguous run split across multiple rows
// (§4.7 "Boundary crossings"), returning each row's ReadResult in order.
func (a *Array) ReadRows(h *hal.Handle, rows []uint64, physCols []int) ([]ReadResult, error) {
	if len(rows) != len(physCols) {
		return nil, herr.New(herr.ErrInvalidArgument, "ReadRows", "", "rows/physCols length mismatch")
	}
	out := make([]ReadResult, len(rows))
	for i := range rows {
		r, err := a.ReadStripe(h, rows[i], physCols[i])
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
