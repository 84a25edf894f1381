package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"subject-choices/pkg/errors"
)

// LocalStorage keeps files in one directory on disk.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// path rejects keys that would escape the storage directory.
func (s *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") || strings.ContainsRune(clean, filepath.Separator) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, errors.ErrFileNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError("local download", err)
	}
	return f, nil
}

// Upload writes to a temporary file first so readers never see a partial file.
func (s *LocalStorage) Upload(ctx context.Context, key string, data io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return errors.NewStorageError("local upload", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return errors.NewStorageError("local upload", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStorageError("local upload", err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		return errors.NewStorageError("local upload", err)
	}
	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError("local delete", err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStorageError("local stat", err)
	}
	return true, nil
}
