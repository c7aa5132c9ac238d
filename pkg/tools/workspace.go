package tools

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/minhyannv/airproject/pkg/fsutil"
	"github.com/pkg/errors"
)

// DefaultMaxReadBytes caps read_file output.
const DefaultMaxReadBytes int64 = 1024 * 1024

// Workspace performs file operations confined to the conversation store root.
type Workspace struct {
	root         string
	maxReadBytes int64
}

// NewWorkspace returns a workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root, maxReadBytes: DefaultMaxReadBytes}
}

// Read returns the content of a file. Content beyond the read cap is dropped
// and truncated reports whether that happened.
func (w *Workspace) Read(name string) (content string, truncated bool, err error) {
	path, err := resolveInRoot(w.root, name)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, apperr.New(apperr.NotFound, "file not found: %s", name)
		}
		return "", false, errors.Wrapf(err, "stat %s", name)
	}
	if info.IsDir() {
		return "", false, apperr.New(apperr.NotFound, "file not found: %s is a directory", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", name)
	}
	if w.maxReadBytes > 0 && int64(len(data)) > w.maxReadBytes {
		return string(data[:w.maxReadBytes]), true, nil
	}
	return string(data), false, nil
}

// Write replaces the content of a file, creating parent directories.
func (w *Workspace) Write(name, content string) error {
	path, err := resolveInRoot(w.root, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", name)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}

// Append adds content to the end of a file, creating it when absent.
func (w *Workspace) Append(name, content string) error {
	path, err := resolveInRoot(w.root, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", name)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "append %s", name)
	}
	return errors.Wrapf(f.Close(), "close %s", name)
}

// Delete removes a file.
func (w *Workspace) Delete(name string) error {
	path, err := resolveInRoot(w.root, name)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.NotFound, "file not found: %s", name)
		}
		return errors.Wrapf(err, "stat %s", name)
	}
	if info.IsDir() {
		return apperr.New(apperr.InvalidArguments, "%s is a directory", name)
	}
	return errors.Wrapf(os.Remove(path), "delete %s", name)
}

// List returns every regular file under the root as slash-separated
// relative paths, sorted.
func (w *Workspace) List() ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == w.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || fsutil.IsTemp(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	slices.Sort(files)
	return files, nil
}
