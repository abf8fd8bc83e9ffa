package guard

import (
	"encoding/binary"
	"testing"

	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/models"
)

type quietLogger struct{}

func (quietLogger) Warnf(string, ...any) {}

// queryFor extracts a fingerprint whose value is exactly want.
func queryFor(t *testing.T, want [4]uint16) fingerprint.Result {
	t.Helper()
	s := fingerprint.Default()
	last := s.Offsets[len(s.Offsets)-1]
	data := make([]byte, s.HeaderSize+(int(last*float64(s.SampleRate))+1)*s.BytesPerFrame)
	for i, off := range s.Offsets {
		pos := s.HeaderSize + int(off*float64(s.SampleRate))*s.BytesPerFrame
		binary.LittleEndian.PutUint16(data[pos:], want[i])
	}
	res := fingerprint.NewExtractor(s, quietLogger{}).Extract(data)
	if !res.OK() {
		t.Fatalf("extract: %v", res.Err())
	}
	return res
}

func comparator() fingerprint.Comparator {
	return fingerprint.NewComparator(fingerprint.Default(), fingerprint.DefaultThreshold)
}

func TestDecideSkipsDegenerateQuery(t *testing.T) {
	ext := fingerprint.NewExtractor(fingerprint.Default(), quietLogger{})
	candidates := []models.Candidate{{BeatID: "a", Fingerprint: "0000000000000000"}}

	for name, q := range map[string]fingerprint.Result{
		"failed":   ext.Extract(make([]byte, 10)),
		"all-zero": ext.Extract(make([]byte, 44)),
	} {
		d := Decide(q, candidates, comparator())
		if !d.Skipped {
			t.Errorf("%s: expected skipped decision", name)
		}
		if d.Duplicate() || d.Compared != 0 {
			t.Errorf("%s: skipped decision should not compare, got %+v", name, d)
		}
	}
}

func TestDecideIgnoresSentinelCandidates(t *testing.T) {
	q := queryFor(t, [4]uint16{1, 2, 3, 4})
	candidates := []models.Candidate{
		{BeatID: "empty", Fingerprint: ""},
		{BeatID: "zero", Fingerprint: "0000000000000000"},
	}

	d := Decide(q, candidates, comparator())
	if d.Skipped || d.Duplicate() || d.Compared != 0 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestDecideSortsMatchesBySimilarity(t *testing.T) {
	q := queryFor(t, [4]uint16{0x1234, 0x5678, 0x9abc, 0xdef0})
	candidates := []models.Candidate{
		{BeatID: "near", BeatName: "Near", OwnerName: "bob", Fingerprint: "123456789abcdef7"},   // 3 bits off
		{BeatID: "far", BeatName: "Far", OwnerName: "eve", Fingerprint: "edcba9876543210f"},     // unrelated
		{BeatID: "exact", BeatName: "Exact", OwnerName: "ann", Fingerprint: "123456789abcdef0"}, // identical
		{BeatID: "bad", BeatName: "Bad", OwnerName: "mal", Fingerprint: "zzzz"},
	}

	d := Decide(q, candidates, comparator())

	if d.Skipped {
		t.Fatal("decision should not be skipped")
	}
	if d.Compared != 4 {
		t.Errorf("Compared = %d, want 4", d.Compared)
	}
	if len(d.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", d.Matches)
	}
	if d.Matches[0].BeatID != "exact" || d.Matches[0].Similarity != 1 {
		t.Errorf("first match = %+v, want exact with similarity 1", d.Matches[0])
	}
	if d.Matches[1].BeatID != "near" || d.Matches[1].OwnerName != "bob" || d.Matches[1].Similarity != 0.9531 {
		t.Errorf("second match = %+v", d.Matches[1])
	}
}

func TestDecideNoMatches(t *testing.T) {
	q := queryFor(t, [4]uint16{0xffff, 0, 0xffff, 0})
	candidates := []models.Candidate{
		{BeatID: "x", Fingerprint: "0000ffff0000ffff"},
	}
	d := Decide(q, candidates, comparator())
	if d.Duplicate() || d.Skipped || d.Compared != 1 {
		t.Errorf("unexpected decision %+v", d)
	}
}
