package fingerprint

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme describes where samples are taken from an uncompressed PCM stream
// and how they are packed into a fingerprint value.
//
// A scheme is identified by Name, which is persisted next to every stored
// fingerprint. Once fingerprints produced by a scheme exist in storage its
// fields must never change: register a new scheme under a new name instead.
type Scheme struct {
	Name          string
	Offsets       []float64 // sample points in seconds, in bit-packing order
	HeaderSize    int       // bytes preceding the PCM data
	SampleRate    int       // frames per second
	BytesPerFrame int       // 16-bit interleaved stereo = 4
	BitsPerSample int       // bits contributed by each offset
}

// Method64x16 names the reference scheme: 4 sample points x 16 bits.
const Method64x16 = "64bit_4x16"

// The reference scheme. Offsets, header size and sample rate are frozen:
// every fingerprint already in the database was produced with these values.
var scheme64x16 = Scheme{
	Name:          Method64x16,
	Offsets:       []float64{12.0, 23.0, 28.0, 35.0},
	HeaderSize:    44,
	SampleRate:    44100,
	BytesPerFrame: 4,
	BitsPerSample: 16,
}

var registry = map[string]Scheme{
	scheme64x16.Name: scheme64x16,
}

// Default returns the reference scheme.
func Default() Scheme {
	return scheme64x16.clone()
}

// Lookup returns the registered scheme with the given name.
func Lookup(name string) (Scheme, bool) {
	s, ok := registry[name]
	if !ok {
		return Scheme{}, false
	}
	return s.clone(), true
}

func (s Scheme) clone() Scheme {
	s.Offsets = append([]float64(nil), s.Offsets...)
	return s
}

// Width is the fingerprint width in bits.
func (s Scheme) Width() int {
	return len(s.Offsets) * s.BitsPerSample
}

// HexDigits is the length of the hex encoding of a fingerprint.
func (s Scheme) HexDigits() int {
	return s.Width() / 4
}

// Sentinel is the all-zero value that marks a failed extraction.
func (s Scheme) Sentinel() string {
	return strings.Repeat("0", s.HexDigits())
}

// IsSentinel reports whether v is the failure sentinel (or empty).
func (s Scheme) IsSentinel(v string) bool {
	return strings.Trim(v, "0") == ""
}

// Validate checks that the scheme can be packed into a uint64.
func (s Scheme) Validate() error {
	if s.Name == "" {
		return errors.New("scheme name is required")
	}
	if len(s.Offsets) == 0 {
		return fmt.Errorf("scheme %s: no sample offsets", s.Name)
	}
	if s.BitsPerSample != 16 {
		return fmt.Errorf("scheme %s: only 16-bit samples are supported, got %d", s.Name, s.BitsPerSample)
	}
	if s.Width() > 64 {
		return fmt.Errorf("scheme %s: width %d exceeds 64 bits", s.Name, s.Width())
	}
	if s.HeaderSize < 0 || s.SampleRate <= 0 || s.BytesPerFrame <= 0 {
		return fmt.Errorf("scheme %s: invalid stream layout", s.Name)
	}
	for i, off := range s.Offsets {
		if off < 0 {
			return fmt.Errorf("scheme %s: offset %d is negative", s.Name, i)
		}
	}
	return nil
}
