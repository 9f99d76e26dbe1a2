package allocator

import (
	"testing"

	"github.com/hn4dev/hn4/internal/hal"
)

func TestSanitizeVectorZeroBecomesOne(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	if got := SanitizeVector(h, 0, 997); got != 1 {
		t.Fatalf("expected 0 -> 1, got %d", got)
	}
}

func TestSanitizeVectorForcesOdd(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	got := SanitizeVector(h, 4, 997)
	if got&1 == 0 {
		t.Fatalf("expected odd result, got %d", got)
	}
}

func TestSanitizeVectorCoprimeResult(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	phi := uint64(64) // power of two: many even/non-coprime candidates
	for _, v := range []uint64{0, 2, 4, 8, 16, 32, 64, 100} {
		got := SanitizeVector(h, v, phi)
		if Gcd(got, phi) != 1 {
			t.Fatalf("SanitizeVector(%d, %d) = %d, not coprime", v, phi, got)
		}
	}
}
