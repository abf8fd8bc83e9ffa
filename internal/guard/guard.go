// Package guard holds the duplicate-upload decision. It performs no I/O:
// callers fetch the candidates and act on the returned Decision.
package guard

import (
	"sort"

	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/models"
)

// Decision is the outcome of checking one upload against stored beats.
type Decision struct {
	// Skipped is set when the upload has no usable fingerprint. Such an
	// upload is neither unique nor a duplicate; it is let through unchecked.
	Skipped bool
	// Matches holds every candidate above the threshold, most similar first.
	Matches []models.DuplicateMatch
	// Compared counts the candidates that were actually compared.
	Compared int
}

// Duplicate reports whether the upload must be rejected.
func (d Decision) Duplicate() bool {
	return len(d.Matches) > 0
}

// Decide compares query against every candidate. Candidates without a
// usable fingerprint are ignored.
func Decide(query fingerprint.Result, candidates []models.Candidate, cmp fingerprint.Comparator) Decision {
	if query.Degenerate() {
		return Decision{Skipped: true}
	}

	var d Decision
	value := query.Hex()
	for _, c := range candidates {
		if c.Fingerprint == "" || isZero(c.Fingerprint) {
			continue
		}
		d.Compared++
		dup, similarity := cmp.Compare(value, c.Fingerprint)
		if !dup {
			continue
		}
		d.Matches = append(d.Matches, models.DuplicateMatch{
			BeatID:     c.BeatID,
			BeatName:   c.BeatName,
			OwnerName:  c.OwnerName,
			Similarity: similarity,
		})
	}

	sort.SliceStable(d.Matches, func(i, j int) bool {
		if d.Matches[i].Similarity != d.Matches[j].Similarity {
			return d.Matches[i].Similarity > d.Matches[j].Similarity
		}
		return d.Matches[i].BeatID < d.Matches[j].BeatID
	})
	return d
}

func isZero(v string) bool {
	for _, r := range v {
		if r != '0' {
			return false
		}
	}
	return true
}
