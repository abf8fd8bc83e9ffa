package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/beatok/backend/pkg/beatok"
	"github.com/beatok/backend/pkg/models"
)

// Paging limits for GET /api/beats
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// BeatDTO represents a beat in API responses
type BeatDTO struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	OwnerID                 string          `json:"owner_id"`
	OwnerName               string          `json:"owner_name,omitempty"`
	Genre                   string          `json:"genre"`
	Tempo                   int             `json:"tempo"`
	Key                     string          `json:"key"`
	MP3Path                 string          `json:"mp3_file,omitempty"`
	WAVPath                 string          `json:"wav_file,omitempty"`
	Size                    int64           `json:"size"`
	SizeHuman               string          `json:"size_human"`
	Duration                float64         `json:"duration"`
	Status                  models.Status   `json:"status"`
	AudioFingerprint        string          `json:"audio_fingerprint,omitempty"`
	AudioFingerprintTimings json.RawMessage `json:"audio_fingerprint_timings,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func newBeatDTO(b *models.Beat) BeatDTO {
	dto := BeatDTO{
		ID:               b.ID,
		Name:             b.Name,
		OwnerID:          b.OwnerID,
		OwnerName:        b.OwnerName,
		Genre:            b.Genre,
		Tempo:            b.Tempo,
		Key:              b.Key,
		MP3Path:          b.MP3Path,
		WAVPath:          b.WAVPath,
		Size:             b.Size,
		SizeHuman:        humanize.Bytes(uint64(b.Size)),
		Duration:         b.Duration,
		Status:           b.Status,
		AudioFingerprint: b.AudioFingerprint,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if len(b.AudioFingerprintTimings) > 0 {
		dto.AudioFingerprintTimings = json.RawMessage(b.AudioFingerprintTimings)
	}
	return dto
}

// ListBeatsResponse is the response for GET /api/beats
type ListBeatsResponse struct {
	Beats []BeatDTO `json:"beats"`
	Count int       `json:"count"`
	Total int64     `json:"total"`
	Skip  int       `json:"skip"`
	Limit int       `json:"limit"`
}

// CreateBeatResponse is the response for a successful upload
type CreateBeatResponse struct {
	Message string  `json:"message"`
	Beat    BeatDTO `json:"beat"`
}

// DuplicateResponse is the 409 body for an upload rejected as a duplicate.
// Clients key on ErrorKind.
type DuplicateResponse struct {
	Error          string                  `json:"error"`
	ErrorKind      string                  `json:"error_kind"`
	Message        string                  `json:"message"`
	DuplicateCount int                     `json:"duplicate_count"`
	Matches        []models.DuplicateMatch `json:"matches"`
}

func newDuplicateResponse(dup *beatok.DuplicateError) DuplicateResponse {
	msg := "This audio matches an existing beat"
	if n := dup.Count(); n > 1 {
		msg = fmt.Sprintf("This audio matches %d existing beats", n)
	}
	return DuplicateResponse{
		Error:          "Conflict",
		ErrorKind:      dup.Kind(),
		Message:        msg,
		DuplicateCount: dup.Count(),
		Matches:        dup.Matches,
	}
}

// DeleteBeatResponse is the response for DELETE /api/beats/{id}
type DeleteBeatResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// CompareRequest is the request body for POST /api/fingerprint/compare
type CompareRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Validate checks if the request is valid
func (r *CompareRequest) Validate() error {
	if r.A == "" || r.B == "" {
		return fmt.Errorf("both fingerprints a and b are required")
	}
	return nil
}

// FingerprintResponse is the response for POST /api/fingerprint
type FingerprintResponse struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
	*beatok.FingerprintReport
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status        string                  `json:"status"`
	DatabasePath  string                  `json:"database_path"`
	StorageType   string                  `json:"storage_type"`
	BeatCount     int64                   `json:"beat_count"`
	ByStatus      map[models.Status]int64 `json:"by_status"`
	Scheme        string                  `json:"scheme"`
	Threshold     float64                 `json:"threshold"`
	MaxUploadSize string                  `json:"max_upload_size"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
