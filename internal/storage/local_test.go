package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"subject-choices/internal/config"
	"subject-choices/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageLifecycle(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "file.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, "file.csv", strings.NewReader("Forename,Surname\n")))

	exists, err = store.Exists(ctx, "file.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, "file.csv")
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "Forename,Surname\n", string(content))

	require.NoError(t, store.Delete(ctx, "file.csv"))
	require.NoError(t, store.Delete(ctx, "file.csv"))

	_, err = store.Download(ctx, "file.csv")
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../secret", "/etc/passwd", "nested/file.csv"} {
		assert.Error(t, store.Upload(context.Background(), key, strings.NewReader("x")), key)
	}
}

func TestNewStorageByDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = "local"
	cfg.Storage.Local.Dir = t.TempDir()

	store, err := NewStorage(cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, store)

	cfg.Storage.Driver = "ftp"
	_, err = NewStorage(cfg)
	assert.Error(t, err)
}
