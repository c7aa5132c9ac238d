package conversation

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/minhyannv/airproject/pkg/fsutil"
	"github.com/pkg/errors"
)

// Store keeps one file per conversation under a root directory.
type Store struct {
	root  string
	codec Codec
}

// NewStore returns a store rooted at dir using codec for encoding.
func NewStore(dir string, codec Codec) *Store {
	if codec == nil {
		codec = TextCodec{}
	}
	return &Store{root: dir, codec: codec}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Path returns the file path backing a conversation.
func (s *Store) Path(name string) (string, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name+s.codec.Ext()), nil
}

func (s *Store) cleanName(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), s.codec.Ext())
	switch {
	case name == "":
		return "", apperr.New(apperr.InvalidArguments, "conversation name is required")
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`):
		return "", apperr.New(apperr.InvalidArguments, "invalid conversation name %q", name)
	case fsutil.IsTemp(name):
		return "", apperr.New(apperr.InvalidArguments, "reserved conversation name %q", name)
	}
	return name, nil
}

// Exists reports whether the named conversation has a file.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", path)
	}
	return true, nil
}

// Create writes a new conversation from the template. It fails with
// AlreadyExists when the conversation is present.
func (s *Store) Create(name string) (*Conversation, error) {
	clean, err := s.cleanName(name)
	if err != nil {
		return nil, err
	}
	exists, err := s.Exists(clean)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.AlreadyExists, "conversation %q already exists", clean)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store %s", s.root)
	}
	conv := &Conversation{Name: clean, CreatedAt: Now(), Messages: []Message{}}
	if err := s.Save(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Load reads the full history of a conversation.
func (s *Store) Load(name string) (*Conversation, error) {
	clean, err := s.cleanName(name)
	if err != nil {
		return nil, err
	}
	path, _ := s.Path(clean)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "conversation %q not found", clean)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return s.codec.Decode(clean, data)
}

// Save atomically replaces the conversation file with the encoded history.
func (s *Store) Save(conv *Conversation) error {
	path, err := s.Path(conv.Name)
	if err != nil {
		return err
	}
	data, err := s.codec.Encode(conv)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "save conversation %s", conv.Name)
	}
	return nil
}

// Append loads a conversation, appends msgs and saves it.
func (s *Store) Append(name string, msgs ...Message) (*Conversation, error) {
	conv, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	conv.Append(msgs...)
	if err := s.Save(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns the names of all conversations in the store, sorted.
// A missing store directory yields an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "list %s", s.root)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || fsutil.IsTemp(entry.Name()) {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), s.codec.Ext()); ok && name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
