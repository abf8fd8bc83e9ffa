package beatok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"

	"github.com/beatok/backend/internal/audio"
	"github.com/beatok/backend/internal/filestore"
	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/internal/guard"
	"github.com/beatok/backend/pkg/logger"
	"github.com/beatok/backend/pkg/models"
)

// beatService is the default implementation of the Service interface.
type beatService struct {
	storage    Storage
	files      filestore.FileStore
	extractor  *fingerprint.Extractor
	comparator fingerprint.Comparator
	log        Logger
	config     *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Scheme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fingerprint scheme: %w", err)
	}
	if cfg.RescanWorkers <= 0 {
		cfg.RescanWorkers = 1
	}

	files := cfg.FileStore
	if files == nil {
		local, err := filestore.NewLocal(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create file store: %w", err)
		}
		files = local
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &beatService{
		storage:    stor,
		files:      files,
		extractor:  fingerprint.NewExtractor(cfg.Scheme, cfg.Logger),
		comparator: fingerprint.NewComparator(cfg.Scheme, cfg.Threshold),
		log:        cfg.Logger,
		config:     cfg,
	}, nil
}

// CreateBeat stores a new beat unless its audio duplicates a beat that is
// already published or awaiting moderation. Nothing is left behind when
// the upload is rejected or fails: the row is rolled back and staged files
// are deleted.
func (s *beatService) CreateBeat(ctx context.Context, in CreateBeatInput) (*models.Beat, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.log.Infof("Creating beat %q for owner %s", in.Name, ownerLabel(in))

	// 1. Open the upload transaction
	tx, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, s.unexpected("begin upload transaction", err)
	}

	var staged []string
	abort := func(err error) (*models.Beat, error) {
		s.removeFiles(context.WithoutCancel(ctx), staged)
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Errorf("Rollback failed: %v", rbErr)
		}
		return nil, err
	}

	// 2. Insert the beat row
	ownerID, ownerName, err := tx.EnsureOwner(in.OwnerID, in.OwnerName)
	if errors.Is(err, ErrInvalidInput) {
		return abort(err)
	}
	if err != nil {
		return abort(s.unexpected("resolve owner", err))
	}
	beat := &models.Beat{
		ID:        uuid.NewString(),
		Name:      in.Name,
		OwnerID:   ownerID,
		OwnerName: ownerName,
		Genre:     in.Genre,
		Tempo:     in.Tempo,
		Key:       in.Key,
		Status:    models.StatusModerated,
	}
	if err := tx.InsertBeat(beat); err != nil {
		return abort(s.unexpected("insert beat", err))
	}

	// 3. Stage the audio files
	var info *audio.Info
	for _, f := range []struct {
		upload *Upload
		dst    *string
		ext    string
	}{
		{in.MP3, &beat.MP3Path, ".mp3"},
		{in.WAV, &beat.WAVPath, ".wav"},
	} {
		if !f.upload.present() {
			continue
		}
		p := beatFilePath(beat.ID, f.ext)
		staged = append(staged, p)
		n, err := filestore.Put(ctx, s.files, p, bytes.NewReader(f.upload.Data))
		if err != nil {
			return abort(s.unexpected("store "+f.ext+" file", err))
		}
		*f.dst = p
		beat.Size += n

		// The WAV is probed last so its duration wins.
		probed, err := audio.Probe(ctx, f.upload.Filename, f.upload.Data)
		if err != nil {
			s.log.Warnf("Could not read duration of %s: %v", f.upload.Filename, err)
			continue
		}
		info = probed
	}
	if info != nil {
		beat.Duration = info.DurationSec
	}
	if err := tx.UpdateFiles(beat.ID, beat.MP3Path, beat.WAVPath, beat.Size, beat.Duration); err != nil {
		return abort(s.unexpected("record beat files", err))
	}

	// 4. Fingerprint the stored audio, WAV preferred
	source := beat.WAVPath
	if source == "" {
		source = beat.MP3Path
	}
	res, err := s.extractStored(ctx, source)
	if err != nil {
		return abort(fmt.Errorf("fingerprint extraction interrupted: %w", err))
	}

	// 5. Check against stored fingerprints
	var candidates []models.Candidate
	if !res.Degenerate() {
		candidates, err = tx.Candidates(beat.ID, models.ComparisonPool, s.extractor.Scheme().Sentinel())
		if err != nil {
			return abort(s.unexpected("query fingerprint candidates", err))
		}
	}
	decision := guard.Decide(res, candidates, s.comparator)

	if decision.Duplicate() {
		top := decision.Matches[0]
		s.log.Warnf("Rejected beat %q: audio matches %d beat(s), closest %q by %s (%.4f)",
			beat.Name, len(decision.Matches), top.BeatName, top.OwnerName, top.Similarity)
		return abort(&DuplicateError{Matches: decision.Matches})
	}

	// 6. Persist the fingerprint
	timings, err := json.Marshal(res.Record())
	if err != nil {
		return abort(s.unexpected("encode fingerprint timings", err))
	}
	if decision.Skipped {
		s.log.Warnf("Beat %s stored without fingerprint: no usable audio signature", beat.ID)
	} else {
		if err := tx.SetFingerprint(beat.ID, res.Hex(), timings); err != nil {
			return abort(s.unexpected("save fingerprint", err))
		}
		beat.AudioFingerprint = res.Hex()
		beat.AudioFingerprintTimings = timings
		s.log.Debugf("Beat %s fingerprint %s checked against %d beat(s)", beat.ID, res.Hex(), decision.Compared)
	}

	// 7. Commit
	if err := tx.Commit(); err != nil {
		return abort(s.unexpected("commit beat", err))
	}

	s.log.Infof("Successfully created beat ID=%s", beat.ID)
	return beat, nil
}

// extractStored reads path back from the file store and fingerprints it on
// a worker goroutine. Read failures become a failed result; only a done
// ctx is returned as an error.
func (s *beatService) extractStored(ctx context.Context, p string) (fingerprint.Result, error) {
	done := make(chan fingerprint.Result, 1)
	go func() {
		data, err := filestore.ReadAll(ctx, s.files, p)
		if err != nil {
			done <- s.extractor.Failed(err)
			return
		}
		done <- s.extractor.Extract(data)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return fingerprint.Result{}, ctx.Err()
	}
}

// ExtractFingerprint fingerprints data without storing anything.
func (s *beatService) ExtractFingerprint(ctx context.Context, data []byte) (*FingerprintReport, error) {
	done := make(chan fingerprint.Result, 1)
	go func() { done <- s.extractor.Extract(data) }()

	var res fingerprint.Result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	report := &FingerprintReport{
		Record:     res.Record(),
		OK:         res.OK(),
		Degenerate: res.Degenerate(),
	}
	if err := res.Err(); err != nil {
		report.Error = err.Error()
	}
	return report, nil
}

// CompareFingerprints compares two stored fingerprint strings.
func (s *beatService) CompareFingerprints(a, b string) CompareResult {
	dup, similarity := s.comparator.Compare(a, b)
	return CompareResult{
		IsDuplicate: dup,
		Similarity:  similarity,
		Threshold:   s.comparator.Threshold(),
	}
}

func (s *beatService) GetBeat(ctx context.Context, id string) (*models.Beat, error) {
	return s.storage.GetBeat(ctx, id)
}

// ListBeats returns one page of beats and the total matching count.
func (s *beatService) ListBeats(ctx context.Context, opts ListOptions) ([]models.Beat, int64, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, 0, invalidInput("unknown status %q", opts.Status)
	}
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, 0, invalidInput("skip and limit must not be negative")
	}
	beats, err := s.storage.ListBeats(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing beats: %w", err)
	}
	total, err := s.storage.CountBeats(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("counting beats: %w", err)
	}
	return beats, total, nil
}

// DeleteBeat removes the beat row and its audio files.
func (s *beatService) DeleteBeat(ctx context.Context, id string) error {
	beat, err := s.storage.GetBeat(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteBeat(ctx, id); err != nil {
		return err
	}

	var files []string
	for _, p := range []string{beat.MP3Path, beat.WAVPath} {
		if p != "" {
			files = append(files, p)
		}
	}
	s.removeFiles(ctx, files)
	s.log.Infof("Deleted beat ID=%s", id)
	return nil
}

// ApproveBeat publishes a beat awaiting moderation.
func (s *beatService) ApproveBeat(ctx context.Context, id string) (*models.Beat, error) {
	return s.transition(ctx, id, models.StatusModerated, models.StatusAvailable)
}

// DenyBeat rejects a beat awaiting moderation. Denied beats no longer
// block uploads of the same audio.
func (s *beatService) DenyBeat(ctx context.Context, id string) (*models.Beat, error) {
	return s.transition(ctx, id, models.StatusModerated, models.StatusDenied)
}

func (s *beatService) transition(ctx context.Context, id string, from, to models.Status) (*models.Beat, error) {
	if err := s.storage.UpdateStatus(ctx, id, from, to); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: beat %s is not %s", ErrInvalidTransition, id, from)
		}
		return nil, err
	}
	s.log.Infof("Beat %s moved from %s to %s", id, from, to)
	return s.storage.GetBeat(ctx, id)
}

// Rescan fingerprints beats that were stored without one, at most limit
// beats when limit > 0. Each new fingerprint goes through the same duplicate
// check as an upload; a beat that matches the comparison pool keeps no
// fingerprint and is reported in Conflicts. Per-beat failures are counted,
// not returned.
func (s *beatService) Rescan(ctx context.Context, limit int) (*RescanReport, error) {
	beats, err := s.storage.BeatsMissingFingerprint(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("finding unfingerprinted beats: %w", err)
	}
	s.log.Infof("Rescanning %d beat(s) with %d worker(s)", len(beats), s.config.RescanWorkers)

	var (
		updated, skipped, failed atomic.Int64
		mu                       sync.Mutex
		conflicts                []RescanConflict
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.RescanWorkers)

	for _, beat := range beats {
		g.Go(func() error {
			res, err := s.extractStored(gctx, beat.WAVPath)
			if err != nil {
				return err
			}
			if res.Degenerate() {
				skipped.Add(1)
				return nil
			}
			matches, err := s.saveRescanned(gctx, beat.ID, res)
			if err != nil {
				s.log.Errorf("Failed to save fingerprint for beat %s: %v", beat.ID, err)
				failed.Add(1)
				return nil
			}
			if len(matches) > 0 {
				s.log.Warnf("Beat %s not fingerprinted: audio matches %d beat(s), closest %q",
					beat.ID, len(matches), matches[0].BeatName)
				mu.Lock()
				conflicts = append(conflicts, RescanConflict{BeatID: beat.ID, BeatName: beat.Name, Matches: matches})
				mu.Unlock()
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rescan interrupted: %w", err)
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].BeatID < conflicts[j].BeatID })
	report := &RescanReport{
		Scanned:   len(beats),
		Updated:   int(updated.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Conflicts: conflicts,
	}
	s.log.Infof("Rescan done: %d updated, %d skipped, %d conflicting, %d failed",
		report.Updated, report.Skipped, len(report.Conflicts), report.Failed)
	return report, nil
}

// saveRescanned checks res against the comparison pool and stores it when
// no beat matches. The matches are returned otherwise.
func (s *beatService) saveRescanned(ctx context.Context, id string, res fingerprint.Result) ([]models.DuplicateMatch, error) {
	tx, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	candidates, err := tx.Candidates(id, models.ComparisonPool, s.extractor.Scheme().Sentinel())
	if err != nil {
		return nil, err
	}
	if decision := guard.Decide(res, candidates, s.comparator); decision.Duplicate() {
		return decision.Matches, nil
	}

	timings, err := json.Marshal(res.Record())
	if err != nil {
		return nil, err
	}
	if err := tx.SetFingerprint(id, res.Hex(), timings); err != nil {
		return nil, err
	}
	return nil, tx.Commit()
}

func (s *beatService) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.storage.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting beats: %w", err)
	}
	stats := &Stats{
		ByStatus:  byStatus,
		Scheme:    s.extractor.Scheme().Name,
		Threshold: s.comparator.Threshold(),
	}
	for _, n := range byStatus {
		stats.TotalBeats += n
	}
	return stats, nil
}

// Close releases all resources held by the service.
func (s *beatService) Close() error {
	return s.storage.Close()
}

func (s *beatService) removeFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			s.log.Errorf("Failed to delete %s: %v", p, err)
		}
	}
}

// unexpected logs err with its stack trace and wraps it for the caller.
func (s *beatService) unexpected(op string, err error) error {
	s.log.Errorf("%s: %s", op, xerrors.Sprint(xerrors.New(err)))
	return fmt.Errorf("%s: %w", op, err)
}

func beatFilePath(id, ext string) string {
	return path.Join("beats", id, "audio"+ext)
}

func ownerLabel(in CreateBeatInput) string {
	if in.OwnerName != "" {
		return in.OwnerName
	}
	return in.OwnerID
}
