package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is the backing key/value contract behind the cache: one namespace
// per identity, one blob per attribute file. The cache dispatches on
// declared kinds but never inspects blob contents.
type Store interface {
	Write(namespace, name string, blob []byte) error
	Read(namespace, name string) ([]byte, error)
	Exists(namespace, name string) (bool, error)

	// Namespaces lists every stored identity, for tooling.
	Namespaces() ([]string, error)

	// Delete removes one identity and all its blobs.
	Delete(namespace string) error
}

// FSStore keeps blobs on the local filesystem as {root}/{identity}/{attr}.{kind}.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create store root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) path(namespace, name string) string {
	return filepath.Join(s.root, namespace, name)
}

// Write persists one blob. The write lands in a uniquely-named temp file
// first and is renamed into place, so a crashed writer never leaves a
// truncated blob where Exists would find it. Two same-identity writers race
// benignly: last rename wins.
func (s *FSStore) Write(namespace, name string, blob []byte) error {
	dir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: create namespace %s: %w", namespace, err)
	}

	tmp := filepath.Join(dir, name+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path(namespace, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: rename into %s: %w", s.path(namespace, name), err)
	}
	return nil
}

func (s *FSStore) Read(namespace, name string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(namespace, name))
	if err != nil {
		return nil, fmt.Errorf("cache: read %s/%s: %w", namespace, name, err)
	}
	return blob, nil
}

func (s *FSStore) Exists(namespace, name string) (bool, error) {
	_, err := os.Stat(s.path(namespace, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: stat %s/%s: %w", namespace, name, err)
	}
	return true, nil
}

func (s *FSStore) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", s.root, err)
	}
	var namespaces []string
	for _, entry := range entries {
		if entry.IsDir() {
			namespaces = append(namespaces, entry.Name())
		}
	}
	return namespaces, nil
}

func (s *FSStore) Delete(namespace string) error {
	if err := os.RemoveAll(filepath.Join(s.root, namespace)); err != nil {
		return fmt.Errorf("cache: delete %s: %w", namespace, err)
	}
	return nil
}
