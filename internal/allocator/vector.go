package allocator

import "github.com/hn4dev/hn4/internal/hal"

// vectorRetryBudget bounds the successor-search before SanitizeVector falls
// back to randomization (§4.6 "Vector sanitation").
const vectorRetryBudget = 64

// SanitizeVector applies §4.6's vector sanitation rule to a candidate
// velocity V against flux length Φ: zero becomes 1, even is forced odd,
// and a V not coprime with Φ is walked forward through odd successors
// until coprime or the retry budget is spent, at which point it falls back
// to rejection-sampling a random odd, coprime V in [1, Φ).
func SanitizeVector(h *hal.Handle, v, phi uint64) uint64 {
	if v == 0 {
		v = 1
	}
	if v&1 == 0 {
		v |= 1
	}
	if phi == 0 {
		return v
	}
	v %= phi
	if v == 0 {
		v = 1
	}

	if Gcd(v, phi) == 1 {
		return v
	}

	candidate := v
	for i := 0; i < vectorRetryBudget; i++ {
		candidate += 2
		if candidate >= phi {
			candidate = candidate%phi | 1
			if candidate == 0 {
				candidate = 1
			}
		}
		if Gcd(candidate, phi) == 1 {
			return candidate
		}
	}

	// Retry budget exhausted: rejection-sample a random odd, coprime V.
	for i := 0; i < vectorRetryBudget; i++ {
		r := randOdd(h, phi)
		if Gcd(r, phi) == 1 {
			return r
		}
	}
	// Pathological Φ (e.g. a power of two with no odd factors to avoid):
	// 1 is always coprime with any Φ > 0.
	return 1
}

func randOdd(h *hal.Handle, phi uint64) uint64 {
	if phi <= 1 {
		return 1
	}
	r := h.NextUint64() % phi
	r |= 1
	if r >= phi {
		r -= 2
	}
	if r == 0 {
		r = 1
	}
	return r
}
