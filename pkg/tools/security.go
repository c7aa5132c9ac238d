package tools

import (
	"path/filepath"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
)

// resolveInRoot validates a model-supplied file name and returns its absolute
// path under root. It never touches the filesystem.
func resolveInRoot(root, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.New(apperr.InvalidArguments, "filename cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return "", apperr.New(apperr.InvalidArguments, "filename contains a NUL byte")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.VolumeName(name) != "" {
		return "", apperr.New(apperr.InvalidArguments, "absolute paths are not allowed: %s", name)
	}
	if hasParentTraversal(name) {
		return "", apperr.New(apperr.InvalidArguments, "path traversal not allowed: %s", name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidArguments, err, "invalid store root")
	}
	absPath := filepath.Join(absRoot, filepath.Clean(filepath.FromSlash(name)))

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.InvalidArguments, "path outside conversation store: %s", name)
	}
	return absPath, nil
}

// hasParentTraversal reports whether a path contains a parent directory
// segment, with either separator.
func hasParentTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
