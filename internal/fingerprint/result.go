package fingerprint

import (
	"encoding/json"
	"fmt"
)

// Timing describes one sample point used to build a fingerprint.
// A failed extraction carries a single Timing holding only Error.
type Timing struct {
	Index        int     `json:"index"`
	TimeSec      float64 `json:"time_sec"`
	BytePosition int     `json:"byte_position"`
	Value        uint16  `json:"value"`
	ValueHex     string  `json:"value_hex"`
	Error        string  `json:"-"`
}

// MarshalJSON writes failure descriptors as {"error": "..."}.
func (t Timing) MarshalJSON() ([]byte, error) {
	if t.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{t.Error})
	}
	type plain Timing
	return json.Marshal(plain(t))
}

// UnmarshalJSON accepts both sample and failure descriptors.
func (t *Timing) UnmarshalJSON(data []byte) error {
	type plain Timing
	var raw struct {
		plain
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Timing(raw.plain)
	t.Error = raw.Error
	return nil
}

// Record is the diagnostic record persisted next to a fingerprint value.
// It is kept for audits only and never read back into comparisons.
type Record struct {
	Method      string   `json:"method"`
	Timings     []Timing `json:"timings"`
	Fingerprint string   `json:"fingerprint"`
}

// Result is the outcome of one extraction: either an extracted value or a
// failure with its reason. Use OK to tell them apart; Hex collapses both
// into the stored representation, where failures become the sentinel.
type Result struct {
	scheme  Scheme
	value   uint64
	timings []Timing
	err     error
}

func extracted(s Scheme, value uint64, timings []Timing) Result {
	return Result{scheme: s, value: value, timings: timings}
}

func failed(s Scheme, err error) Result {
	return Result{
		scheme:  s,
		timings: []Timing{{Error: err.Error()}},
		err:     err,
	}
}

// OK reports whether the extraction succeeded.
func (r Result) OK() bool {
	return r.err == nil && r.scheme.Name != ""
}

// Err returns the extraction failure, if any.
func (r Result) Err() error {
	return r.err
}

// Degenerate reports whether the result cannot take part in duplicate
// checks: a failed extraction, or one that produced the all-zero value.
func (r Result) Degenerate() bool {
	return !r.OK() || r.value == 0
}

// Value returns the packed fingerprint. Zero for failures.
func (r Result) Value() uint64 {
	return r.value
}

// Method returns the name of the scheme that produced the result.
func (r Result) Method() string {
	return r.scheme.Name
}

// Hex formats the value as a zero-padded hex string of the scheme width.
func (r Result) Hex() string {
	if !r.OK() {
		return r.scheme.Sentinel()
	}
	return fmt.Sprintf("%0*x", r.scheme.HexDigits(), r.value)
}

// Timings returns a copy of the sample descriptors.
func (r Result) Timings() []Timing {
	return append([]Timing(nil), r.timings...)
}

// Record builds the diagnostic record for persistence.
func (r Result) Record() Record {
	return Record{
		Method:      r.scheme.Name,
		Timings:     r.Timings(),
		Fingerprint: r.Hex(),
	}
}
