package os

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"
)

// EnsureDir creates dir and any missing parents with the given mode.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("could not create directory %q: %w", dir, err)
	}
	return nil
}

// FileExists reports whether a file exists at filePath.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

// WriteFileAtomic replaces the contents of path with data. Readers never
// observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if _, err := atomicfile.WriteAll(path, bytes.NewReader(data), perm); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}
