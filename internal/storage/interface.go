package storage

import (
	"context"
	"fmt"
	"io"

	"subject-choices/internal/config"
)

// Storage keeps uploaded files under opaque keys.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewStorage builds the backend named by storage.driver.
func NewStorage(cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		s, err := NewS3Storage(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "local":
		s, err := NewLocalStorage(cfg.Storage.Local.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
