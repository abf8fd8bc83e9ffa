package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveEmptyDir(t *testing.T) {
	root := t.TempDir()
	full := filepath.Join(root, "beats", "abc")
	if err := MakeDir(full); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(full, "audio.wav"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	removed, err := RemoveEmptyDir(full)
	if err != nil || removed {
		t.Fatalf("non-empty dir: removed=%v err=%v", removed, err)
	}

	if err := DeleteFile(filepath.Join(full, "audio.wav")); err != nil {
		t.Fatal(err)
	}
	removed, err = RemoveEmptyDir(full)
	if err != nil || !removed {
		t.Fatalf("empty dir: removed=%v err=%v", removed, err)
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Errorf("directory still present: %v", err)
	}
}

func TestMoveFileReplaces(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	os.WriteFile(src, []byte("new"), 0644)
	os.WriteFile(dst, []byte("old"), 0644)

	if err := MoveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "new" {
		t.Errorf("dst = %q, %v", got, err)
	}
	if err := MoveFile(src, dst); err == nil {
		t.Error("expected an error moving a missing file")
	}
}
