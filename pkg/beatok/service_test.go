package beatok

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/beatok/backend/internal/filestore"
	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/models"
)

// recordingLogger keeps warnings so tests can assert on them.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Errorf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, format)
}

type testEnv struct {
	svc      Service
	root     string
	log      *recordingLogger
	uploads  string
	fileRoot filestore.FileStore
}

func setupTestService(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	files, err := filestore.NewLocal(uploads)
	if err != nil {
		t.Fatal(err)
	}
	log := &recordingLogger{}

	opts = append([]Option{
		WithDBPath(filepath.Join(dir, "test_beatok.sqlite3")),
		WithFileStore(files),
		WithLogger(log),
	}, opts...)

	svc, err := NewService(opts...)
	if err != nil {
		t.Fatalf("Failed to create test service: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})
	return &testEnv{svc: svc, root: dir, log: log, uploads: uploads, fileRoot: files}
}

// makeWAV builds a 16-bit stereo 44.1 kHz WAV whose first sample is first.
// Clips this short read every fingerprint offset from the first sample,
// so the fingerprint is first repeated four times.
func makeWAV(first uint16, frames int) []byte {
	dataLen := frames * 4
	buf := make([]byte, 44+dataLen)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 2)
	binary.LittleEndian.PutUint32(buf[24:], 44100)
	binary.LittleEndian.PutUint32(buf[28:], 44100*4)
	binary.LittleEndian.PutUint16(buf[32:], 4)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))
	binary.LittleEndian.PutUint16(buf[44:], first)
	return buf
}

func input(name, owner string, wav []byte) CreateBeatInput {
	return CreateBeatInput{
		Name:      name,
		Genre:     "trap",
		Tempo:     140,
		Key:       "Am",
		OwnerName: owner,
		WAV:       &Upload{Filename: strings.ToLower(name) + ".wav", Data: wav},
	}
}

func (e *testEnv) beatDirs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.uploads, "beats"))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestCreateBeatStoresFingerprint(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	beat, err := env.svc.CreateBeat(ctx, input("Night Drive", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatalf("CreateBeat: %v", err)
	}
	if beat.AudioFingerprint != "1234123412341234" {
		t.Errorf("fingerprint = %q", beat.AudioFingerprint)
	}
	if beat.Status != models.StatusModerated {
		t.Errorf("status = %s, want moderated", beat.Status)
	}
	if beat.Duration != 0.1 {
		t.Errorf("duration = %v, want 0.1", beat.Duration)
	}
	if beat.WAVPath != "beats/"+beat.ID+"/audio.wav" || beat.MP3Path != "" {
		t.Errorf("unexpected paths mp3=%q wav=%q", beat.MP3Path, beat.WAVPath)
	}

	stored, err := env.svc.GetBeat(ctx, beat.ID)
	if err != nil {
		t.Fatalf("GetBeat: %v", err)
	}
	if stored.AudioFingerprint != beat.AudioFingerprint || stored.OwnerName != "alice" {
		t.Errorf("stored beat differs: %+v", stored)
	}
	if stored.Size != int64(44+4410*4) {
		t.Errorf("size = %d", stored.Size)
	}

	var rec fingerprint.Record
	if err := json.Unmarshal(stored.AudioFingerprintTimings, &rec); err != nil {
		t.Fatalf("timings are not valid JSON: %v", err)
	}
	if rec.Method != fingerprint.Method64x16 || len(rec.Timings) != 4 || rec.Fingerprint != beat.AudioFingerprint {
		t.Errorf("unexpected record %+v", rec)
	}

	ok, err := env.fileRoot.Exists(ctx, beat.WAVPath)
	if err != nil || !ok {
		t.Errorf("audio file missing: %v", err)
	}
}

func TestCreateBeatRejectsDuplicate(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	original, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}

	_, err = env.svc.CreateBeat(ctx, input("B", "bob", makeWAV(0x1234, 4410)))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateAudio) || dup.Kind() != ErrorKindDuplicateAudio {
		t.Errorf("duplicate error does not identify itself: %v", err)
	}
	if dup.Count() != 1 {
		t.Fatalf("expected 1 match, got %+v", dup.Matches)
	}
	m := dup.Matches[0]
	if m.BeatID != original.ID || m.BeatName != "A" || m.OwnerName != "alice" || m.Similarity != 1 {
		t.Errorf("unexpected match %+v", m)
	}

	_, total, err := env.svc.ListBeats(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("rejected upload left a row: %d beats", total)
	}
	if n := env.beatDirs(t); n != 1 {
		t.Errorf("rejected upload left files: %d beat directories", n)
	}
}

func TestCreateBeatRejectsNearDuplicate(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	if _, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410))); err != nil {
		t.Fatal(err)
	}
	// One flipped bit per sample: 4 of 64 bits differ.
	_, err := env.svc.CreateBeat(ctx, input("A remix", "bob", makeWAV(0x1235, 4410)))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Matches[0].Similarity != 0.9375 {
		t.Errorf("similarity = %v, want 0.9375", dup.Matches[0].Similarity)
	}
}

func TestCreateBeatAcceptsDifferentAudio(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	first, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.CreateBeat(ctx, input("C", "carol", makeWAV(0x7f00, 4410)))
	if err != nil {
		t.Fatalf("distinct audio rejected: %v", err)
	}
	if res := env.svc.CompareFingerprints(first.AudioFingerprint, second.AudioFingerprint); res.IsDuplicate || res.Similarity != 0.5 {
		t.Errorf("unexpected comparison %+v", res)
	}
}

func TestDeniedBeatsDoNotBlockUploads(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	a, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.DenyBeat(ctx, a.ID); err != nil {
		t.Fatalf("DenyBeat: %v", err)
	}
	if _, err := env.svc.CreateBeat(ctx, input("B", "bob", makeWAV(0x1234, 4410))); err != nil {
		t.Fatalf("upload matching a denied beat was rejected: %v", err)
	}
}

func TestApprovedBeatsBlockUploads(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	a, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	approved, err := env.svc.ApproveBeat(ctx, a.ID)
	if err != nil {
		t.Fatalf("ApproveBeat: %v", err)
	}
	if approved.Status != models.StatusAvailable {
		t.Errorf("status = %s, want available", approved.Status)
	}
	if _, err := env.svc.CreateBeat(ctx, input("B", "bob", makeWAV(0x1234, 4410))); !errors.Is(err, ErrDuplicateAudio) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestCreateBeatWithoutUsableFingerprint(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	silent := makeWAV(0, 4410)
	first, err := env.svc.CreateBeat(ctx, input("Silence", "alice", silent))
	if err != nil {
		t.Fatalf("CreateBeat: %v", err)
	}
	if first.AudioFingerprint != "" {
		t.Errorf("all-zero fingerprint must not be stored, got %q", first.AudioFingerprint)
	}
	// Sentinels are never compared, so the same silence goes through again.
	if _, err := env.svc.CreateBeat(ctx, input("Silence 2", "bob", silent)); err != nil {
		t.Fatalf("second silent upload rejected: %v", err)
	}
}

func TestCreateBeatTooShortAudio(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	in := input("Tiny", "alice", []byte("RIFF1234WAVE"))
	beat, err := env.svc.CreateBeat(ctx, in)
	if err != nil {
		t.Fatalf("CreateBeat: %v", err)
	}
	if beat.AudioFingerprint != "" || beat.Duration != 0 {
		t.Errorf("unexpected beat %+v", beat)
	}
	if len(env.log.warns) == 0 {
		t.Error("expected the extraction failure to be logged")
	}
}

func TestCreateBeatMP3Only(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	data := makeWAV(0x0abc, 100)
	in := input("Demo", "alice", nil)
	in.WAV = nil
	in.MP3 = &Upload{Filename: "demo.mp3", Data: data}

	beat, err := env.svc.CreateBeat(ctx, in)
	if err != nil {
		t.Fatalf("CreateBeat: %v", err)
	}
	if beat.MP3Path == "" || beat.WAVPath != "" {
		t.Errorf("unexpected paths mp3=%q wav=%q", beat.MP3Path, beat.WAVPath)
	}
	if beat.AudioFingerprint != "0abc0abc0abc0abc" {
		t.Errorf("fingerprint = %q", beat.AudioFingerprint)
	}
}

func TestCreateBeatValidation(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	wav := makeWAV(0x1234, 10)

	tests := []struct {
		name   string
		mutate func(*CreateBeatInput)
	}{
		{"no name", func(in *CreateBeatInput) { in.Name = "  " }},
		{"long name", func(in *CreateBeatInput) { in.Name = strings.Repeat("x", 101) }},
		{"no genre", func(in *CreateBeatInput) { in.Genre = "" }},
		{"no key", func(in *CreateBeatInput) { in.Key = "" }},
		{"zero tempo", func(in *CreateBeatInput) { in.Tempo = 0 }},
		{"no owner", func(in *CreateBeatInput) { in.OwnerName = "" }},
		{"no files", func(in *CreateBeatInput) { in.WAV = nil }},
		{"wav with mp3 name", func(in *CreateBeatInput) { in.WAV.Filename = "beat.mp3" }},
		{"mp3 with wav name", func(in *CreateBeatInput) { in.MP3 = &Upload{Filename: "beat.wav", Data: []byte("ID3")} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input("Valid", "alice", wav)
			tt.mutate(&in)
			if _, err := env.svc.CreateBeat(ctx, in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, total, _ := env.svc.ListBeats(ctx, ListOptions{}); total != 0 {
		t.Errorf("invalid uploads created %d beats", total)
	}
}

// failingStorage wraps a real store and fails every SetFingerprint.
type failingStorage struct {
	Storage
}

func (f failingStorage) Begin(ctx context.Context) (Tx, error) {
	tx, err := f.Storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{Tx: tx}, nil
}

type failingTx struct {
	Tx
}

func (failingTx) SetFingerprint(string, string, []byte) error {
	return errors.New("disk I/O error")
}

func TestCreateBeatPersistenceFailureCleansUp(t *testing.T) {
	base, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "failing.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	env := setupTestService(t, WithStorage(failingStorage{Storage: base}))
	ctx := context.Background()

	_, err = env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err == nil {
		t.Fatal("expected persistence failure")
	}
	if errors.Is(err, ErrDuplicateAudio) || errors.Is(err, ErrInvalidInput) {
		t.Errorf("persistence failure misclassified: %v", err)
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Errorf("cause lost: %v", err)
	}

	if n := env.beatDirs(t); n != 0 {
		t.Errorf("failed upload left %d beat directories", n)
	}
	if _, total, _ := env.svc.ListBeats(ctx, ListOptions{}); total != 0 {
		t.Errorf("failed upload left %d rows", total)
	}
}

func TestCreateBeatCancelledContext(t *testing.T) {
	env := setupTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410))); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if n := env.beatDirs(t); n != 0 {
		t.Errorf("cancelled upload left %d beat directories", n)
	}
}

func TestModerationTransitions(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	a, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.ApproveBeat(ctx, a.ID); err != nil {
		t.Fatalf("ApproveBeat: %v", err)
	}
	if _, err := env.svc.ApproveBeat(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second approve: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := env.svc.DenyBeat(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("deny after approve: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := env.svc.DenyBeat(ctx, "missing"); !errors.Is(err, ErrBeatNotFound) {
		t.Errorf("deny missing: expected ErrBeatNotFound, got %v", err)
	}
}

func TestListBeatsFilters(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	a, _ := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	env.svc.CreateBeat(ctx, input("B", "bob", makeWAV(0x7f00, 4410)))
	env.svc.ApproveBeat(ctx, a.ID)

	beats, total, err := env.svc.ListBeats(ctx, ListOptions{Status: models.StatusAvailable})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(beats) != 1 || beats[0].ID != a.ID {
		t.Errorf("unexpected available beats %+v (total %d)", beats, total)
	}

	if _, _, err := env.svc.ListBeats(ctx, ListOptions{Status: "lost"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown status, got %v", err)
	}

	stats, err := env.svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalBeats != 2 || stats.ByStatus[models.StatusModerated] != 1 || stats.Threshold != 0.85 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDeleteBeatRemovesFiles(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	a, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteBeat(ctx, a.ID); err != nil {
		t.Fatalf("DeleteBeat: %v", err)
	}
	if _, err := env.svc.GetBeat(ctx, a.ID); !errors.Is(err, ErrBeatNotFound) {
		t.Errorf("expected ErrBeatNotFound, got %v", err)
	}
	if n := env.beatDirs(t); n != 0 {
		t.Errorf("delete left %d beat directories", n)
	}
	if err := env.svc.DeleteBeat(ctx, a.ID); !errors.Is(err, ErrBeatNotFound) {
		t.Errorf("second delete: expected ErrBeatNotFound, got %v", err)
	}
}

func TestRescanFillsMissingFingerprints(t *testing.T) {
	env := setupTestService(t, WithRescanWorkers(2))
	ctx := context.Background()

	silent, err := env.svc.CreateBeat(ctx, input("Later", "alice", makeWAV(0, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.CreateBeat(ctx, input("Quiet", "bob", makeWAV(0, 4410))); err != nil {
		t.Fatal(err)
	}

	// Replace one master with audible content.
	if _, err := filestore.Put(ctx, env.fileRoot, silent.WAVPath, strings.NewReader(string(makeWAV(0x4321, 4410)))); err != nil {
		t.Fatal(err)
	}

	report, err := env.svc.Rescan(ctx, 0)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if report.Scanned != 2 || report.Updated != 1 || report.Skipped != 1 || report.Failed != 0 || len(report.Conflicts) != 0 {
		t.Errorf("unexpected report %+v", report)
	}

	got, err := env.svc.GetBeat(ctx, silent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AudioFingerprint != "4321432143214321" {
		t.Errorf("fingerprint after rescan = %q", got.AudioFingerprint)
	}
}

func TestRescanReportsDuplicateAudio(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	silent, err := env.svc.CreateBeat(ctx, input("Blank", "alice", makeWAV(0, 4410)))
	if err != nil {
		t.Fatal(err)
	}
	printed, err := env.svc.CreateBeat(ctx, input("Printed", "bob", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}

	// The silent beat's master now carries the printed beat's audio.
	if _, err := filestore.Put(ctx, env.fileRoot, silent.WAVPath, strings.NewReader(string(makeWAV(0x1234, 4410)))); err != nil {
		t.Fatal(err)
	}

	report, err := env.svc.Rescan(ctx, 0)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if report.Scanned != 1 || report.Updated != 0 || report.Failed != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", report.Conflicts)
	}
	c := report.Conflicts[0]
	if c.BeatID != silent.ID || c.BeatName != "Blank" {
		t.Errorf("conflict names the wrong beat: %+v", c)
	}
	if len(c.Matches) != 1 || c.Matches[0].BeatID != printed.ID || c.Matches[0].Similarity != 1 {
		t.Errorf("unexpected matches %+v", c.Matches)
	}

	got, err := env.svc.GetBeat(ctx, silent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AudioFingerprint != "" {
		t.Errorf("conflicting beat was fingerprinted: %q", got.AudioFingerprint)
	}
}

func TestCreateBeatOwnersWithoutUsername(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	first := input("First", "", makeWAV(0x1234, 4410))
	first.OwnerID = "owner-1"
	second := input("Second", "", makeWAV(0x7f00, 4410))
	second.OwnerID = "owner-2"

	for _, in := range []CreateBeatInput{first, second} {
		beat, err := env.svc.CreateBeat(ctx, in)
		if err != nil {
			t.Fatalf("CreateBeat(%s): %v", in.OwnerID, err)
		}
		if beat.OwnerID != in.OwnerID || beat.OwnerName != "" {
			t.Errorf("unexpected owner %q/%q", beat.OwnerID, beat.OwnerName)
		}
	}

	_, total, err := env.svc.ListBeats(ctx, ListOptions{OwnerID: "owner-2"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("owner-2 has %d beats, want 1", total)
	}
}

func TestCreateBeatUsernameTakenByAnotherOwner(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	if _, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410))); err != nil {
		t.Fatal(err)
	}

	in := input("B", "alice", makeWAV(0x7f00, 4410))
	in.OwnerID = "someone-else"
	_, err := env.svc.CreateBeat(ctx, in)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if n := env.beatDirs(t); n != 1 {
		t.Errorf("rejected upload left files: %d beat directories", n)
	}
}

func TestCreateBeatUsesStoredOwnerName(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	first, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410)))
	if err != nil {
		t.Fatal(err)
	}

	in := input("B", "mallory", makeWAV(0x7f00, 4410))
	in.OwnerID = first.OwnerID
	beat, err := env.svc.CreateBeat(ctx, in)
	if err != nil {
		t.Fatalf("CreateBeat: %v", err)
	}
	if beat.OwnerID != first.OwnerID || beat.OwnerName != "alice" {
		t.Errorf("returned owner %q/%q, want %q/alice", beat.OwnerID, beat.OwnerName, first.OwnerID)
	}

	stored, err := env.svc.GetBeat(ctx, beat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.OwnerName != beat.OwnerName {
		t.Errorf("stored owner %q differs from returned %q", stored.OwnerName, beat.OwnerName)
	}
}

func TestExtractFingerprint(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	report, err := env.svc.ExtractFingerprint(ctx, makeWAV(0x00ff, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK || report.Degenerate || report.Record.Fingerprint != "00ff00ff00ff00ff" {
		t.Errorf("unexpected report %+v", report)
	}

	short, err := env.svc.ExtractFingerprint(ctx, []byte("tiny"))
	if err != nil {
		t.Fatal(err)
	}
	if short.OK || !short.Degenerate || short.Error == "" || short.Record.Fingerprint != "0000000000000000" {
		t.Errorf("unexpected report for short input %+v", short)
	}
}

func TestCustomThreshold(t *testing.T) {
	env := setupTestService(t, WithThreshold(0.99))
	ctx := context.Background()

	if _, err := env.svc.CreateBeat(ctx, input("A", "alice", makeWAV(0x1234, 4410))); err != nil {
		t.Fatal(err)
	}
	// 0.9375 similar: a duplicate at 0.85, not at 0.99.
	if _, err := env.svc.CreateBeat(ctx, input("B", "bob", makeWAV(0x1235, 4410))); err != nil {
		t.Fatalf("near match should pass a 0.99 threshold: %v", err)
	}
}
