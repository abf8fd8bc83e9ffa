package beatok

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/models"
)

const (
	maxNameLen  = 100
	maxGenreLen = 50
	maxKeyLen   = 10
	maxTempo    = 400
)

// Upload is one audio file attached to a new beat.
type Upload struct {
	Filename string
	Data     []byte
}

func (u *Upload) present() bool {
	return u != nil && len(u.Data) > 0
}

// CreateBeatInput carries the fields of a beat upload.
type CreateBeatInput struct {
	Name      string
	Genre     string
	Tempo     int
	Key       string
	OwnerID   string
	OwnerName string
	MP3       *Upload
	WAV       *Upload
}

// Validate checks the upload before any state is touched. Errors wrap
// ErrInvalidInput.
func (in *CreateBeatInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Key = strings.TrimSpace(in.Key)
	in.OwnerName = strings.TrimSpace(in.OwnerName)

	switch {
	case in.Name == "":
		return invalidInput("name is required")
	case utf8.RuneCountInString(in.Name) > maxNameLen:
		return invalidInput("name must be at most %d characters", maxNameLen)
	case in.Genre == "":
		return invalidInput("genre is required")
	case utf8.RuneCountInString(in.Genre) > maxGenreLen:
		return invalidInput("genre must be at most %d characters", maxGenreLen)
	case in.Key == "":
		return invalidInput("key is required")
	case utf8.RuneCountInString(in.Key) > maxKeyLen:
		return invalidInput("key must be at most %d characters", maxKeyLen)
	case in.Tempo <= 0 || in.Tempo > maxTempo:
		return invalidInput("tempo must be between 1 and %d", maxTempo)
	case in.OwnerID == "" && in.OwnerName == "":
		return invalidInput("owner is required")
	case !in.MP3.present() && !in.WAV.present():
		return invalidInput("at least one of mp3 or wav file is required")
	}

	if in.MP3.present() && !hasExt(in.MP3.Filename, ".mp3") {
		return invalidInput("mp3 file must have the .mp3 extension")
	}
	if in.WAV.present() && !hasExt(in.WAV.Filename, ".wav") {
		return invalidInput("wav file must have the .wav extension")
	}
	return nil
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// ListOptions pages through beats, newest first.
type ListOptions struct {
	Status  models.Status
	OwnerID string
	Skip    int
	Limit   int
}

// FingerprintReport is the result of a standalone extraction.
type FingerprintReport struct {
	Record     fingerprint.Record `json:"record"`
	OK         bool               `json:"ok"`
	Degenerate bool               `json:"degenerate"`
	Error      string             `json:"error,omitempty"`
}

// CompareResult is the outcome of comparing two stored fingerprints.
type CompareResult struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Similarity  float64 `json:"similarity"`
	Threshold   float64 `json:"threshold"`
}

// RescanReport summarises a bulk re-fingerprint run.
type RescanReport struct {
	Scanned   int              `json:"scanned"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Conflicts []RescanConflict `json:"conflicts,omitempty"`
}

// RescanConflict is a rescanned beat whose audio matches the comparison
// pool. It is left without a fingerprint.
type RescanConflict struct {
	BeatID   string                  `json:"beat_id"`
	BeatName string                  `json:"beat_name"`
	Matches  []models.DuplicateMatch `json:"matches"`
}

type Stats struct {
	TotalBeats int64                   `json:"total_beats"`
	ByStatus   map[models.Status]int64 `json:"by_status"`
	Scheme     string                  `json:"scheme"`
	Threshold  float64                 `json:"threshold"`
}
