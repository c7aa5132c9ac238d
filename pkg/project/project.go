// Package project manages the project marker file and the location of the
// conversation store.
package project

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/minhyannv/airproject/pkg/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// MarkerFile marks a directory as an initialized project.
	MarkerFile = ".airproject.yaml"
	// StoreDirName is the conversation store directory inside the project.
	StoreDirName = "conversations"
)

// Project mirrors the marker file.
type Project struct {
	Name      string         `yaml:"name"`
	CreatedAt time.Time      `yaml:"created_at"`
	Settings  map[string]any `yaml:"settings,omitempty"`

	root string
}

// Root returns the project directory.
func (p *Project) Root() string { return p.root }

// StoreDir returns the conversation store directory.
func (p *Project) StoreDir() string { return filepath.Join(p.root, StoreDirName) }

// MarkerPath returns the marker file location for root.
func MarkerPath(root string) string { return filepath.Join(root, MarkerFile) }

// IsInitialized reports whether root holds a marker file.
func IsInitialized(root string) (bool, error) {
	info, err := os.Stat(MarkerPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "stat project marker")
	}
	return !info.IsDir(), nil
}

// Init creates the marker file and the conversation store under root.
// An empty name defaults to the directory name.
func Init(root, name string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	ok, err := IsInitialized(abs)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, apperr.New(apperr.AlreadyExists, "project already initialized in %s", abs)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(abs)
	}
	p := &Project{Name: name, CreatedAt: time.Now().UTC().Truncate(time.Second), root: abs}

	if err := os.MkdirAll(p.StoreDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, "create conversation store")
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode project marker")
	}
	if err := fsutil.WriteFileAtomic(MarkerPath(abs), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "write project marker")
	}
	return p, nil
}

// Load reads the marker file under root. A missing marker is NotInitialized.
func Load(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	data, err := os.ReadFile(MarkerPath(abs))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotInitialized, "project not initialized in %s; run 'airproject init' first", abs)
		}
		return nil, errors.Wrap(err, "read project marker")
	}
	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "parse %s", MarkerFile)
	}
	p.root = abs
	if p.Name == "" {
		p.Name = filepath.Base(abs)
	}
	return p, nil
}
