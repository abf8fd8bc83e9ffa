package beatok

import (
	"context"

	"github.com/beatok/backend/pkg/models"
)

type Service interface {
	CreateBeat(ctx context.Context, in CreateBeatInput) (*models.Beat, error)
	GetBeat(ctx context.Context, id string) (*models.Beat, error)
	ListBeats(ctx context.Context, opts ListOptions) ([]models.Beat, int64, error)
	DeleteBeat(ctx context.Context, id string) error
	ApproveBeat(ctx context.Context, id string) (*models.Beat, error)
	DenyBeat(ctx context.Context, id string) (*models.Beat, error)
	ExtractFingerprint(ctx context.Context, data []byte) (*FingerprintReport, error)
	CompareFingerprints(a, b string) CompareResult
	Rescan(ctx context.Context, limit int) (*RescanReport, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Storage is the beat repository used by the service.
type Storage interface {
	Begin(ctx context.Context) (Tx, error)
	GetBeat(ctx context.Context, id string) (*models.Beat, error)
	ListBeats(ctx context.Context, opts ListOptions) ([]models.Beat, error)
	CountBeats(ctx context.Context, opts ListOptions) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status) error
	DeleteBeat(ctx context.Context, id string) error
	BeatsMissingFingerprint(ctx context.Context, limit int) ([]models.Beat, error)
	Close() error
}

// Tx is one upload's transaction. Rollback after Commit is a no-op.
type Tx interface {
	// EnsureOwner resolves or creates the owner and returns its id and
	// stored name.
	EnsureOwner(id, name string) (ownerID, ownerName string, err error)
	InsertBeat(b *models.Beat) error
	UpdateFiles(id, mp3Path, wavPath string, size int64, duration float64) error
	SetFingerprint(id, value string, timings []byte) error
	Candidates(excludeID string, statuses []models.Status, sentinel string) ([]models.Candidate, error)
	Commit() error
	Rollback() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
