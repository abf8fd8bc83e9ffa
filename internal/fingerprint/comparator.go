package fingerprint

import (
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// DefaultThreshold is the minimum similarity for two fingerprints to count
// as the same recording. At 64 bits it allows up to 9 differing bits.
const DefaultThreshold = 0.85

// Comparator decides whether two fingerprints of one scheme are duplicates.
type Comparator struct {
	scheme    Scheme
	threshold float64
}

// NewComparator returns a comparator for the scheme. A threshold outside
// (0, 1] is replaced by DefaultThreshold.
func NewComparator(scheme Scheme, threshold float64) Comparator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Comparator{scheme: scheme.clone(), threshold: threshold}
}

// Threshold returns the similarity threshold.
func (c Comparator) Threshold() float64 {
	return c.threshold
}

// Compare returns whether a and b are duplicates and their similarity
// (1 - hamming/width, rounded to 4 places). Fingerprints are hex strings;
// surrounding space, a 0x prefix and Go-style digit separators ("1234_abcd")
// are accepted. Malformed input and the sentinel on either side yield
// (false, 0).
func (c Comparator) Compare(a, b string) (bool, float64) {
	width := c.scheme.Width()
	if width <= 0 || width > 64 {
		return false, 0
	}
	fa, err := parseHex(a, width)
	if err != nil {
		return false, 0
	}
	fb, err := parseHex(b, width)
	if err != nil {
		return false, 0
	}
	if fa == 0 || fb == 0 {
		return false, 0
	}

	diff := bits.OnesCount64(fa ^ fb)
	similarity := 1.0 - float64(diff)/float64(width)
	return similarity >= c.threshold, round4(similarity)
}

// parseHex parses a hex fingerprint of at most width bits.
func parseHex(s string, width int) (uint64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return strconv.ParseUint(s, 0, width)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
