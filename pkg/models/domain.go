package models

import "time"

// Status is the moderation state of a beat.
type Status string

const (
	StatusModerated Status = "moderated" // uploaded, waiting for review
	StatusAvailable Status = "available" // published
	StatusDenied    Status = "denied"    // rejected by a moderator
	StatusSold      Status = "sold"      // exclusive licence sold
)

// ComparisonPool lists the statuses whose fingerprints can block a new
// upload. Denied beats are left out so a rejected upload cannot shadow a
// later legitimate one.
var ComparisonPool = []Status{StatusAvailable, StatusModerated}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusModerated, StatusAvailable, StatusDenied, StatusSold:
		return true
	}
	return false
}

// Beat represents a beat entry in the database.
type Beat struct {
	ID        string  // Database ID (UUID)
	Name      string  // Display name
	OwnerID   string  // Uploader ID
	OwnerName string  // Uploader display name
	Genre     string  // Genre label
	Tempo     int     // BPM
	Key       string  // Musical key
	MP3Path   string  // File store path of the MP3 rendition (if any)
	WAVPath   string  // File store path of the WAV master (if any)
	Size      int64   // Total bytes of stored audio
	Duration  float64 // Seconds, rounded to 2 places
	Status    Status

	// AudioFingerprint is empty when no usable fingerprint exists.
	AudioFingerprint string
	// AudioFingerprintTimings is the JSON diagnostic record of the extraction.
	AudioFingerprintTimings []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Candidate is a stored fingerprint considered during a duplicate check.
type Candidate struct {
	BeatID      string
	BeatName    string
	OwnerName   string
	Fingerprint string
}

// DuplicateMatch is a stored beat whose fingerprint matched a new upload.
type DuplicateMatch struct {
	BeatID     string  `json:"beat_id"`
	BeatName   string  `json:"beat_name"`
	OwnerName  string  `json:"owner_name"`
	Similarity float64 `json:"similarity"` // 0..1, rounded to 4 places
}
