package beatok

import (
	"errors"
	"fmt"

	"github.com/beatok/backend/pkg/models"
)

// ErrorKindDuplicateAudio is the machine-readable kind reported to clients
// when an upload is rejected as a duplicate.
const ErrorKindDuplicateAudio = "duplicate_audio_found"

var (
	ErrDuplicateAudio    = errors.New("duplicate audio found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrBeatNotFound      = errors.New("beat not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DuplicateError rejects an upload whose audio matches stored beats.
// errors.Is(err, ErrDuplicateAudio) holds for it.
type DuplicateError struct {
	Matches []models.DuplicateMatch
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %d matching beat(s)", ErrDuplicateAudio, len(e.Matches))
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateAudio
}

func (e *DuplicateError) Kind() string {
	return ErrorKindDuplicateAudio
}

// Count returns the number of matching beats.
func (e *DuplicateError) Count() int {
	return len(e.Matches)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
