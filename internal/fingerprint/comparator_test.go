package fingerprint

import (
	"fmt"
	"testing"
)

// flipBits flips the lowest k bits of v.
func flipBits(v uint64, k int) uint64 {
	for i := 0; i < k; i++ {
		v ^= 1 << uint(i)
	}
	return v
}

func hex64(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

func TestCompareSelfSimilarity(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)

	for _, v := range []string{"123401027fff8000", "0000000000000001", "ffffffffffffffff"} {
		dup, sim := cmp.Compare(v, v)
		if !dup || sim != 1.0 {
			t.Errorf("Compare(%s, %s) = (%v, %v), want (true, 1)", v, v, dup, sim)
		}
	}
}

func TestCompareSymmetry(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)
	pairs := [][2]string{
		{"123401027fff8000", "123401027fff8001"},
		{"123401027fff8000", "edcbfefd80007fff"},
		{"not-hex", "0000000000000001"},
		{"00000000000000ff", "ff00000000000000"},
	}
	for _, p := range pairs {
		d1, s1 := cmp.Compare(p[0], p[1])
		d2, s2 := cmp.Compare(p[1], p[0])
		if d1 != d2 || s1 != s2 {
			t.Errorf("asymmetric result for %v: (%v,%v) vs (%v,%v)", p, d1, s1, d2, s2)
		}
	}
}

func TestCompareThresholdBoundary(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)
	base := uint64(0xa5a5a5a5a5a5a5a5)

	tests := []struct {
		flipped   int
		wantDup   bool
		wantScore float64
	}{
		{0, true, 1.0},
		{1, true, 0.9844},
		{9, true, 0.8594},
		{10, false, 0.8438},
		{32, false, 0.5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("flip_%d", tt.flipped), func(t *testing.T) {
			dup, sim := cmp.Compare(hex64(base), hex64(flipBits(base, tt.flipped)))
			if dup != tt.wantDup {
				t.Errorf("duplicate = %v, want %v", dup, tt.wantDup)
			}
			if sim != tt.wantScore {
				t.Errorf("similarity = %v, want %v", sim, tt.wantScore)
			}
		})
	}
}

func TestCompareMalformedInput(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)

	inputs := [][2]string{
		{"not-hex", "0000000000000000"},
		{"", "123401027fff8000"},
		{"123401027fff8000", "1234010207fff80000"}, // 72 bits
		{"0x", "123401027fff8000"},
		{"__", "123401027fff8000"},
		{"1234__12", "123401027fff8000"},
		{"0x0x1234", "0x1234"},
		{"-1234", "1234"},
	}
	for _, in := range inputs {
		dup, sim := cmp.Compare(in[0], in[1])
		if dup || sim != 0 {
			t.Errorf("Compare(%q, %q) = (%v, %v), want (false, 0)", in[0], in[1], dup, sim)
		}
	}
}

func TestCompareAcceptsPrefixAndSeparators(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)

	tests := []struct {
		a, b string
		dup  bool
		sim  float64
	}{
		{"0x1234123412341234", "1234123412341234", true, 1},
		{"0X1234123412341234", "1234_1234_1234_1234", true, 1},
		{" 1234123412341234\n", "0x1234_1234_1234_1234", true, 1},
		{"0x1234", "1234", true, 1},
		{"0x7f00_7f00_7f00_7f00", "1234123412341234", false, 0.5},
	}
	for _, tt := range tests {
		dup, sim := cmp.Compare(tt.a, tt.b)
		if dup != tt.dup || sim != tt.sim {
			t.Errorf("Compare(%q, %q) = (%v, %v), want (%v, %v)", tt.a, tt.b, dup, sim, tt.dup, tt.sim)
		}
	}
}

func TestCompareSentinelNeverMatches(t *testing.T) {
	cmp := NewComparator(Default(), DefaultThreshold)
	sentinel := Default().Sentinel()

	if dup, sim := cmp.Compare(sentinel, sentinel); dup || sim != 0 {
		t.Errorf("sentinel vs sentinel = (%v, %v), want (false, 0)", dup, sim)
	}
	if dup, _ := cmp.Compare(sentinel, "0000000000000001"); dup {
		t.Error("sentinel must not match a near-zero fingerprint")
	}
}

func TestComparatorThresholdFallback(t *testing.T) {
	if got := NewComparator(Default(), 0).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %v, want default", got)
	}
	if got := NewComparator(Default(), 1.5).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %v, want default", got)
	}

	strict := NewComparator(Default(), 0.99)
	base := uint64(0x0123456789abcdef)
	if dup, _ := strict.Compare(hex64(base), hex64(flipBits(base, 1))); dup {
		t.Error("one flipped bit should not pass a 0.99 threshold")
	}
}
