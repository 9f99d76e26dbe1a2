package parity

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
)

// stripeState is the set of columns a reconstruction attempt actually read
// for one row, keyed by physical column index.
type stripeState struct {
	data map[int][]byte // physical col -> block bytes, online+verified
	p    []byte         // nil if P offline/failed
	q    []byte         // nil if Q offline/failed
}

// census counts failures among (data_targets ∪ {P, Q}) for row r, reading
// every column HN4 can reach (§4.7 "Reconstruction (census + solver)").
// missing lists the physical columns that failed to read cleanly.
func (a *Array) census(h *hal.Handle, row uint64, layout RowLayout) (st stripeState, missing []int) {
	st.data = make(map[int][]byte)

	for _, phys := range layout.DataCols {
		buf, err := a.readDataColumnVerified(h, row, phys)
		if err != nil {
			missing = append(missing, phys)
			continue
		}
		st.data[phys] = buf
	}

	if buf, err := a.readColumn(h, row, layout.PCol); err == nil {
		st.p = buf
	} else {
		missing = append(missing, layout.PCol)
	}
	if buf, err := a.readColumn(h, row, layout.QCol); err == nil {
		st.q = buf
	} else {
		missing = append(missing, layout.QCol)
	}

	return st, missing
}

// Reconstruct recovers the data at row r, physical column target, using
// whichever of Case A/B/C applies given the census (§4.7). target must be
// one of layout.DataCols.
func (a *Array) Reconstruct(h *hal.Handle, row uint64, layout RowLayout, target int) ([]byte, error) {
	st, missing := a.census(h, row, layout)
	if len(missing) > 2 {
		return nil, herr.New(herr.ErrParityBroken, "Reconstruct", "", "more than two columns failed in this row")
	}

	if _, ok := st.data[target]; ok {
		return st.data[target], nil // target actually read fine; nothing to reconstruct
	}

	missingData := []int{}
	for _, phys := range layout.DataCols {
		if _, ok := st.data[phys]; !ok {
			missingData = append(missingData, phys)
		}
	}

	switch {
	case len(missingData) <= 1 && st.p != nil:
		// Case A: 0 or 1 data failure, P alive. XOR P with all surviving
		// data columns, including P itself in the participation set.
		return a.reconstructCaseA(st, layout, target), nil

	case len(missingData) == 1 && st.p == nil && st.q != nil:
		// Case B: 1 data failure, P dead, Q alive.
		return a.reconstructCaseB(st, layout, target), nil

	case len(missingData) == 2 && st.p != nil && st.q != nil:
		// Case C: 2 data failures, P and Q alive, solve the 2x2 GF(2^8)
		// system.
		out := a.reconstructCaseC(st, layout, missingData)
		return out[target], nil

	default:
		return nil, herr.New(herr.ErrParityBroken, "Reconstruct", "", "no solvable reconstruction case for this failure pattern")
	}
}

// reconstructCaseA: D_missing = P XOR XOR{D_i : i != missing, alive}.
func (a *Array) reconstructCaseA(st stripeState, layout RowLayout, target int) []byte {
	size := len(st.p)
	out := make([]byte, size)
	copy(out, st.p)
	for _, phys := range layout.DataCols {
		if phys == target {
			continue
		}
		if buf, ok := st.data[phys]; ok {
			XORBlock(out, buf)
		}
	}
	return out
}

// reconstructCaseB: solve Q = sum(D_i * g^i) for the missing term, i.e.
// D_missing = (Q XOR sum{other terms}) * g^(-i_missing).
func (a *Array) reconstructCaseB(st stripeState, layout RowLayout, target int) []byte {
	size := len(st.q)
	acc := make([]byte, size)
	copy(acc, st.q)
	for _, phys := range layout.DataCols {
		if phys == target {
			continue
		}
		buf, ok := st.data[phys]
		if !ok {
			continue
		}
		logical := layout.LogicalOfPhysical(phys)
		coeff := Pow(logical)
		term := make([]byte, size)
		ScaleBlock(term, buf, coeff)
		XORBlock(acc, term)
	}
	targetLogical := layout.LogicalOfPhysical(target)
	invCoeff := Inv(Pow(targetLogical))
	out := make([]byte, size)
	ScaleBlock(out, acc, invCoeff)
	return out
}

// reconstructCaseC solves the 2x2 GF(2^8) linear system for two missing
// data columns i, j given both P and Q equations:
//
//	P = sum_k D_k  =>  D_i ^ D_j = P ^ sum_{k != i,j} D_k   =: Sp
//	Q = sum_k D_k * g^k  =>  D_i*g^i ^ D_j*g^j = Q ^ sum_{k!=i,j} D_k*g^k =: Sq
//
// Solving: D_j = (Sq ^ Sp*g^i) / (g^j ^ g^i); D_i = Sp ^ D_j.
func (a *Array) reconstructCaseC(st stripeState, layout RowLayout, missingData []int) map[int][]byte {
	size := len(st.p)
	sp := make([]byte, size)
	copy(sp, st.p)
	sq := make([]byte, size)
	copy(sq, st.q)

	for _, phys := range layout.DataCols {
		if phys == missingData[0] || phys == missingData[1] {
			continue
		}
		buf := st.data[phys]
		XORBlock(sp, buf)
		logical := layout.LogicalOfPhysical(phys)
		term := make([]byte, size)
		ScaleBlock(term, buf, Pow(logical))
		XORBlock(sq, term)
	}

	i, j := missingData[0], missingData[1]
	li, lj := layout.LogicalOfPhysical(i), layout.LogicalOfPhysical(j)
	gi, gj := Pow(li), Pow(lj)
	denom := gi ^ gj // GF(2^8) addition is XOR

	dj := make([]byte, size)
	di := make([]byte, size)
	for b := 0; b < size; b++ {
		num := sq[b] ^ Mul(sp[b], gi)
		dj[b] = Div(num, denom)
		di[b] = sp[b] ^ dj[b]
	}

	return map[int][]byte{i: di, j: dj}
}
