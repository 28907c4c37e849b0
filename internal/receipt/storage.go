package receipt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for owner or file names that would escape the
// storage directory.
var ErrInvalidName = errors.New("invalid storage name")

// Storage keeps the original receipt images. References returned by Save
// are opaque to callers and are what records store in Filename.
type Storage interface {
	// Save stores data for owner and returns its reference
	Save(owner, name string, data []byte) (string, error)

	Get(ref string) ([]byte, error)

	Delete(ref string) error

	// Path returns the local filesystem path the OCR backends read from
	Path(ref string) string
}

// LocalStorage stores images under basePath/<owner>/<name>.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes through a temporary file so a partially written image is
// never visible under its final name.
func (l *LocalStorage) Save(owner, name string, data []byte) (string, error) {
	if !validName(owner) || !validName(name) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidName, owner, name)
	}

	dir := filepath.Join(l.basePath, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating owner directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing file: %w", err)
	}
	return owner + "/" + name, nil
}

func (l *LocalStorage) Path(ref string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(ref))
}

func (l *LocalStorage) Get(ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, ref)
	}
	data, err := os.ReadFile(l.Path(ref))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

func (l *LocalStorage) Delete(ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidName, ref)
	}
	if err := os.Remove(l.Path(ref)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func validRef(ref string) bool {
	owner, name, ok := strings.Cut(ref, "/")
	return ok && validName(owner) && validName(name)
}
