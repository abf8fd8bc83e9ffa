package beatok

import (
	"context"
	"errors"
	"fmt"

	"github.com/beatok/backend/internal/storage"
	"github.com/beatok/backend/pkg/models"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txAdapter{tx: tx}, nil
}

func (s *storageAdapter) GetBeat(ctx context.Context, id string) (*models.Beat, error) {
	rec, err := s.db.GetBeat(ctx, id)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	beat := toModel(rec.Beat, rec.OwnerName)
	return &beat, nil
}

func (s *storageAdapter) ListBeats(ctx context.Context, opts ListOptions) ([]models.Beat, error) {
	recs, err := s.db.ListBeats(ctx, storage.ListFilter{
		Status:  string(opts.Status),
		OwnerID: opts.OwnerID,
		Skip:    opts.Skip,
		Limit:   opts.Limit,
	})
	if err != nil {
		return nil, err
	}
	beats := make([]models.Beat, len(recs))
	for i, rec := range recs {
		beats[i] = toModel(rec.Beat, rec.OwnerName)
	}
	return beats, nil
}

func (s *storageAdapter) CountBeats(ctx context.Context, opts ListOptions) (int64, error) {
	return s.db.CountBeats(ctx, storage.ListFilter{Status: string(opts.Status), OwnerID: opts.OwnerID})
}

func (s *storageAdapter) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	counts, err := s.db.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[models.Status]int64, len(counts))
	for status, n := range counts {
		out[models.Status(status)] = n
	}
	return out, nil
}

func (s *storageAdapter) UpdateStatus(ctx context.Context, id string, from, to models.Status) error {
	return mapStorageErr(s.db.UpdateStatus(ctx, id, string(from), string(to)))
}

func (s *storageAdapter) DeleteBeat(ctx context.Context, id string) error {
	return mapStorageErr(s.db.DeleteBeat(ctx, id))
}

func (s *storageAdapter) BeatsMissingFingerprint(ctx context.Context, limit int) ([]models.Beat, error) {
	rows, err := s.db.BeatsMissingFingerprint(ctx, limit)
	if err != nil {
		return nil, err
	}
	beats := make([]models.Beat, len(rows))
	for i, row := range rows {
		beats[i] = toModel(row, "")
	}
	return beats, nil
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

// txAdapter adapts storage.Tx to the Tx interface.
type txAdapter struct {
	tx *storage.Tx
}

func (t *txAdapter) EnsureOwner(id, name string) (string, string, error) {
	owner, err := t.tx.EnsureOwner(id, name)
	if err != nil {
		return "", "", mapStorageErr(err)
	}
	return owner.ID, owner.Name(), nil
}

func (t *txAdapter) InsertBeat(b *models.Beat) error {
	row := fromModel(b)
	if err := t.tx.InsertBeat(&row); err != nil {
		return err
	}
	b.ID = row.ID
	b.CreatedAt = row.CreatedAt
	b.UpdatedAt = row.UpdatedAt
	return nil
}

func (t *txAdapter) UpdateFiles(id, mp3Path, wavPath string, size int64, duration float64) error {
	return mapStorageErr(t.tx.UpdateFiles(id, mp3Path, wavPath, size, duration))
}

func (t *txAdapter) SetFingerprint(id, value string, timings []byte) error {
	return mapStorageErr(t.tx.SetFingerprint(id, value, timings))
}

func (t *txAdapter) Candidates(excludeID string, statuses []models.Status, sentinel string) ([]models.Candidate, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return t.tx.Candidates(excludeID, names, sentinel)
}

func (t *txAdapter) Commit() error   { return t.tx.Commit() }
func (t *txAdapter) Rollback() error { return t.tx.Rollback() }

func mapStorageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrBeatNotFound
	case errors.Is(err, storage.ErrStatusMismatch):
		return ErrInvalidTransition
	case errors.Is(err, storage.ErrOwnerConflict):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}

func toModel(b storage.Beat, ownerName string) models.Beat {
	beat := models.Beat{
		ID:                      b.ID,
		Name:                    b.Name,
		OwnerID:                 b.OwnerID,
		OwnerName:               ownerName,
		Genre:                   b.Genre,
		Tempo:                   b.Tempo,
		Key:                     b.Key,
		MP3Path:                 b.MP3Path,
		WAVPath:                 b.WAVPath,
		Size:                    b.Size,
		Duration:                b.Duration,
		Status:                  models.Status(b.Status),
		AudioFingerprintTimings: []byte(b.AudioFingerprintTimings),
		CreatedAt:               b.CreatedAt,
		UpdatedAt:               b.UpdatedAt,
	}
	if b.AudioFingerprint != nil {
		beat.AudioFingerprint = *b.AudioFingerprint
	}
	return beat
}

func fromModel(b *models.Beat) storage.Beat {
	row := storage.Beat{
		ID:       b.ID,
		Name:     b.Name,
		OwnerID:  b.OwnerID,
		Genre:    b.Genre,
		Tempo:    b.Tempo,
		Key:      b.Key,
		MP3Path:  b.MP3Path,
		WAVPath:  b.WAVPath,
		Size:     b.Size,
		Duration: b.Duration,
		Status:   string(b.Status),
	}
	if b.AudioFingerprint != "" {
		fp := b.AudioFingerprint
		row.AudioFingerprint = &fp
		row.AudioFingerprintTimings = b.AudioFingerprintTimings
	}
	return row
}
