// Package allocator implements the Void/Ballistic Allocator (§4.6): a
// modular-arithmetic scatter placer that maps a logical (G, V, N, M, K)
// coordinate onto a physical LBA within a flux region, with Galois-like
// collision escape, quality-mask-driven toxic-block evasion, per-accelerator
// locality windows, and a linear horizon fallback log.
//
// Modeled on the teacher's space-manager chunk/offset arithmetic
// (apfs/pkg/spaceman, apfs/pkg/types chunk-info bitmaps) generalized from a
// static free-space bitmap walk into a deterministic, invertible placement
// function, per §4.6/§8.
package allocator

import (
	"math/bits"

	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// triangleNumbers is TriangleNumbers = {0,1,3,6,10,15,21,28,...}, indexed by
// orbit index K (§4.6 step 6). 16 entries comfortably cover K in [0,15]
// (12 normal + up to 15 as sentinel, §9 Open Question resolution).
var triangleNumbers = func() [16]uint64 {
	var t [16]uint64
	for k := 1; k < 16; k++ {
		t[k] = t[k-1] + uint64(k)
	}
	return t
}()

// gravityAssistMagic is the XOR constant applied to V when K >= 4 (§4.6
// step 7, "discontinuous escape from resonance"). Arbitrary odd constant;
// only its fixed, deterministic value matters for the property tests in §8.
const gravityAssistMagic = uint64(0x9E3779B97F4A7C15)

// ClusterShift is the internal N scaling: N is divided by 2^ClusterShift to
// get cluster_idx (§4.6: "N = logical cluster index, scaled internally by
// cluster size (16)").
const ClusterShift = 4

// Coord is the (G, V, N, M, K) trajectory input (§4.6).
type Coord struct {
	G uint64
	V uint64
	N uint64
	M uint8 // fractal scale, 0..63
	K uint8 // orbit index, 0..12 normally, up to 15 as sentinel
}

// Geometry carries the flux-region facts calc_trajectory_lba needs beyond
// the coordinate itself: the region's absolute start LBA, its length in
// blocks (Φ, after any accelerator-window restriction has already been
// applied by the caller), and whether theta must be suppressed for this
// device/profile (§4.6 step 6).
type Geometry struct {
	FluxStart      types.Addr
	Phi            uint64 // available flux blocks
	SuppressTheta  bool
}

// CalcTrajectoryLBA implements calc_trajectory_lba(G, V, N, M, K) (§4.6).
// Returns types.InvalidAddr if Φ == 0.
func CalcTrajectoryLBA(geo Geometry, c Coord) types.Addr {
	phi := geo.Phi
	if phi == 0 {
		return types.InvalidAddr
	}

	s := uint64(1) << c.M // physical unit size S = 2^M; caller must have rejected S >= Φ already

	entropy := c.G % s
	gAligned := c.G - entropy
	clusterIdx := (c.N >> ClusterShift) % phi

	v := c.V
	if c.K >= 4 {
		v = bits.RotateLeft64(v, 17) ^ gravityAssistMagic
	}
	strideOffset := (clusterIdx * (v % phi)) % phi

	base := (gAligned + entropy*s) % phi

	var theta uint64
	if !geo.SuppressTheta && int(c.K) < len(triangleNumbers) {
		theta = triangleNumbers[c.K]
	}

	physicalOffset := (base + strideOffset*s + theta + entropy) % phi
	return geo.FluxStart + types.Addr(physicalOffset)
}

// ReverseN recovers the logical coordinate N that would produce pos under
// vector V over a period of length Φ, via the modular inverse of V (§8
// "reversibility"). Valid only when gcd(V, Φ) = 1, G = 0, M = 0 and K = 0
// (no base offset, no theta, no gravity assist: pos is then exactly the
// stride offset). The returned N is cluster-aligned; the low ClusterShift
// bits the trajectory discards are not recovered.
func ReverseN(phi, v, pos uint64) (uint64, bool) {
	vInv, ok := ModInverse(v%phi, phi)
	if !ok {
		return 0, false
	}
	n := mulMod(pos%phi, vInv, phi)
	return n << ClusterShift, true
}

// Gcd returns the greatest common divisor of a and b.
func Gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ModInverse returns the modular multiplicative inverse of a mod m via the
// extended Euclidean algorithm, and whether one exists (requires
// gcd(a, m) = 1).
func ModInverse(a, m uint64) (uint64, bool) {
	if m == 0 {
		return 0, false
	}
	g, x, _ := extGCD(int64(a%m), int64(m))
	if g != 1 {
		return 0, false
	}
	res := x % int64(m)
	if res < 0 {
		res += int64(m)
	}
	return uint64(res), true
}

func extGCD(a, b int64) (g, x, y int64) {
	if b == 0 {
		return a, 1, 0
	}
	g, x1, y1 := extGCD(b, a%b)
	return g, y1, x1 - (a/b)*y1
}

func mulMod(a, b, m uint64) uint64 {
	// m is at most a 64-bit block count bounded well under 2^32 in every
	// realistic HN4 geometry; bits.Mul64/Div64 avoid overflow regardless.
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi, lo, m)
	return rem
}

// validateUnit checks the M/Φ relationship from §4.6 ("reject M if
// S >= Φ").
func validateUnit(phi uint64, m uint8) error {
	if m > 63 {
		return herr.New(herr.ErrInvalidArgument, "trajectory", "", "fractal scale M out of range")
	}
	s := uint64(1) << m
	if s >= phi {
		return herr.New(herr.ErrGeometry, "trajectory", "", "unit size S >= flux region Phi")
	}
	return nil
}
