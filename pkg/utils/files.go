package utils

import (
	"fmt"
	"os"
)

// MakeDir creates a directory with all parent directories
func MakeDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DeleteFile removes a file. The error wraps fs.ErrNotExist when the file
// is already gone.
func DeleteFile(path string) error {
	return os.Remove(path)
}

// RemoveEmptyDir removes dir only if it has no entries.
func RemoveEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, fmt.Errorf("failed to remove directory %s: %w", dir, err)
	}
	return true, nil
}

// MoveFile moves or renames a file, replacing dst
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move file from %s to %s: %w", src, dst, err)
	}
	return nil
}
