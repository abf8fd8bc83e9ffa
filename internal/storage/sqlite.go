//go:build !js && !wasm
// +build !js,!wasm

// Package storage persists beats and their owners in SQLite through gorm.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/beatok/backend/pkg/models"
)

const DefaultDBFile = "beatok.sqlite3"
const errDBClientNil = "db client is nil"

var (
	// ErrNotFound is returned when no beat has the requested id.
	ErrNotFound = errors.New("beat not found")
	// ErrStatusMismatch is returned by UpdateStatus when the beat exists but
	// is not in the expected status.
	ErrStatusMismatch = errors.New("beat status mismatch")
	// ErrOwnerConflict is returned by EnsureOwner when a new owner would take
	// a username that belongs to another owner id.
	ErrOwnerConflict = errors.New("username belongs to another owner")
)

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Owner is an uploader. Username is NULL for owners known only by id;
// the unique index ignores NULLs.
type Owner struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)"`
	Username  *string `gorm:"uniqueIndex:idx_owner_username"`
	CreatedAt time.Time
}

// Name returns the username, or "" when none was given.
func (o Owner) Name() string {
	if o.Username == nil {
		return ""
	}
	return *o.Username
}

type Beat struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Name     string `gorm:"index:idx_beat_name"`
	OwnerID  string `gorm:"type:varchar(36);index:idx_beat_owner"`
	Genre    string
	Tempo    int
	Key      string `gorm:"column:musical_key"`
	MP3Path  string `gorm:"column:mp3_path"`
	WAVPath  string `gorm:"column:wav_path"`
	Size     int64
	Duration float64
	Status   string `gorm:"index:idx_beat_status;default:moderated"`

	// NULL means the beat was never fingerprinted or extraction failed.
	AudioFingerprint        *string `gorm:"index:idx_beat_fingerprint"`
	AudioFingerprintTimings datatypes.JSON

	CreatedAt time.Time `gorm:"index:idx_beat_created"`
	UpdatedAt time.Time
}

// BeatRecord is a beat row joined with its owner's display name.
type BeatRecord struct {
	Beat
	OwnerName string
}

// ListFilter narrows ListBeats and CountBeats. Zero values match everything.
type ListFilter struct {
	Status  string
	OwnerID string
	Skip    int
	Limit   int
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("BEATOK_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// SQLite allows a single writer; one connection keeps upload
	// transactions from tripping over each other's locks.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Owner{}, &Beat{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Begin opens a transaction for one upload.
func (c *DBClient) Begin(ctx context.Context) (*Tx, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	tx := c.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &Tx{tx: tx}, nil
}

func (c *DBClient) GetBeat(ctx context.Context, id string) (*BeatRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var beat Beat
	err := c.DB.WithContext(ctx).Where("id = ?", id).First(&beat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying beat: %w", err)
	}
	records, err := c.withOwners(ctx, []Beat{beat})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// ListBeats returns beats newest first.
func (c *DBClient) ListBeats(ctx context.Context, f ListFilter) ([]BeatRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := applyFilter(c.DB.WithContext(ctx).Model(&Beat{}), f).Order("created_at DESC").Order("id")
	if f.Skip > 0 {
		q = q.Offset(f.Skip)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var beats []Beat
	if err := q.Find(&beats).Error; err != nil {
		return nil, fmt.Errorf("listing beats: %w", err)
	}
	return c.withOwners(ctx, beats)
}

func (c *DBClient) CountBeats(ctx context.Context, f ListFilter) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := applyFilter(c.DB.WithContext(ctx).Model(&Beat{}), f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting beats: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of beats per status.
func (c *DBClient) CountByStatus(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []struct {
		Status string
		N      int64
	}
	err := c.DB.WithContext(ctx).Model(&Beat{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting beats by status: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// UpdateStatus moves a beat from one status to another. It fails with
// ErrStatusMismatch when the beat is not currently in from.
func (c *DBClient) UpdateStatus(ctx context.Context, id, from, to string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.WithContext(ctx).Model(&Beat{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("updating status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := c.DB.WithContext(ctx).Model(&Beat{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("checking beat: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStatusMismatch
}

func (c *DBClient) DeleteBeat(ctx context.Context, id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.WithContext(ctx).Where("id = ?", id).Delete(&Beat{})
	if res.Error != nil {
		return fmt.Errorf("deleting beat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BeatsMissingFingerprint returns beats that have a WAV master but no
// stored fingerprint, oldest first.
func (c *DBClient) BeatsMissingFingerprint(ctx context.Context, limit int) ([]Beat, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.WithContext(ctx).
		Where("audio_fingerprint IS NULL AND wav_path <> ''").
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var beats []Beat
	if err := q.Find(&beats).Error; err != nil {
		return nil, fmt.Errorf("querying unfingerprinted beats: %w", err)
	}
	return beats, nil
}

func (c *DBClient) withOwners(ctx context.Context, beats []Beat) ([]BeatRecord, error) {
	ids := make([]string, 0, len(beats))
	seen := make(map[string]bool, len(beats))
	for _, b := range beats {
		if b.OwnerID != "" && !seen[b.OwnerID] {
			seen[b.OwnerID] = true
			ids = append(ids, b.OwnerID)
		}
	}

	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		var owners []Owner
		if err := c.DB.WithContext(ctx).Where("id IN ?", ids).Find(&owners).Error; err != nil {
			return nil, fmt.Errorf("querying owners: %w", err)
		}
		for _, o := range owners {
			names[o.ID] = o.Name()
		}
	}

	out := make([]BeatRecord, 0, len(beats))
	for _, b := range beats {
		out = append(out, BeatRecord{Beat: b, OwnerName: names[b.OwnerID]})
	}
	return out, nil
}

func applyFilter(q *gorm.DB, f ListFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	return q
}

func setFingerprint(db *gorm.DB, id, fingerprint string, timings []byte) error {
	res := db.Model(&Beat{}).Where("id = ?", id).Updates(map[string]any{
		"audio_fingerprint":         fingerprint,
		"audio_fingerprint_timings": datatypes.JSON(timings),
	})
	if res.Error != nil {
		return fmt.Errorf("saving fingerprint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Tx is an open upload transaction. Every method runs on the same
// connection; Commit or Rollback must be called exactly once, extra calls
// are no-ops.
type Tx struct {
	tx   *gorm.DB
	done bool
}

// EnsureOwner finds the owner by id (or by username when id is empty) and
// creates it when missing.
func (t *Tx) EnsureOwner(id, username string) (Owner, error) {
	var owner Owner

	q := t.tx.Where("username = ?", username)
	if id != "" {
		q = t.tx.Where("id = ?", id)
	}
	err := q.First(&owner).Error
	if err == nil {
		return owner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Owner{}, fmt.Errorf("querying owner: %w", err)
	}

	if id == "" {
		id = uuid.NewString()
	}
	owner = Owner{ID: id}
	if username != "" {
		owner.Username = &username
	}
	if err := t.tx.Create(&owner).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Owner{}, fmt.Errorf("%w: %q", ErrOwnerConflict, username)
		}
		return Owner{}, fmt.Errorf("creating owner: %w", err)
	}
	return owner, nil
}

func (t *Tx) InsertBeat(b *Beat) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if err := t.tx.Create(b).Error; err != nil {
		return fmt.Errorf("inserting beat: %w", err)
	}
	return nil
}

// UpdateFiles records where the staged audio landed and its measurements.
func (t *Tx) UpdateFiles(id, mp3Path, wavPath string, size int64, duration float64) error {
	res := t.tx.Model(&Beat{}).Where("id = ?", id).Updates(map[string]any{
		"mp3_path": mp3Path,
		"wav_path": wavPath,
		"size":     size,
		"duration": duration,
	})
	if res.Error != nil {
		return fmt.Errorf("updating beat files: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) SetFingerprint(id, fingerprint string, timings []byte) error {
	return setFingerprint(t.tx, id, fingerprint, timings)
}

// Candidates returns the stored fingerprints an upload is checked against:
// non-null, not equal to sentinel, not excludeID, status in statuses.
func (t *Tx) Candidates(excludeID string, statuses []string, sentinel string) ([]models.Candidate, error) {
	var rows []struct {
		BeatID      string
		BeatName    string
		OwnerName   string
		Fingerprint string
	}
	err := t.tx.Table("beats").
		Select("beats.id AS beat_id, beats.name AS beat_name, COALESCE(owners.username, '') AS owner_name, beats.audio_fingerprint AS fingerprint").
		Joins("LEFT JOIN owners ON owners.id = beats.owner_id").
		Where("beats.audio_fingerprint IS NOT NULL").
		Where("beats.audio_fingerprint <> ?", sentinel).
		Where("beats.id <> ?", excludeID).
		Where("beats.status IN ?", statuses).
		Order("beats.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}

	out := make([]models.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Candidate{
			BeatID:      r.BeatID,
			BeatName:    r.BeatName,
			OwnerName:   r.OwnerName,
			Fingerprint: r.Fingerprint,
		})
	}
	return out, nil
}

func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
