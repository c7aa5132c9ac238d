// Package fsutil holds small filesystem helpers shared by the store and tools.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// TempPrefix marks in-flight temporary files so listings can skip them.
const TempPrefix = ".airproject-tmp-"

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a truncated file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(name, perm); err != nil {
		_ = os.Remove(name)
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

// IsTemp reports whether a base name belongs to an in-flight atomic write.
func IsTemp(base string) bool {
	return strings.HasPrefix(base, TempPrefix)
}
