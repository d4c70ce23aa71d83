package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postraft-facade/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	token, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.Save(ctx, "first"))
	require.NoError(t, s.Save(ctx, "second"))
	token, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "clear is idempotent")
	token, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	s := NewFile(path)

	exerciseStore(t, s)

	require.NoError(t, s.Save(context.Background(), "secret"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, NewFile(path).Save(context.Background(), "persisted"))

	token, err := NewFile(path).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "persisted"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	token, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestOpen_SelectsImplementation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		kind string
		want any
	}{
		{config.TokenStoreMemory, &Memory{}},
		{config.TokenStoreFile, &File{}},
		{config.TokenStoreSQLite, &SQLite{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := &config.Config{TokenStore: tt.kind, TokenPath: filepath.Join(dir, tt.kind)}

			s, closeFn, err := Open(cfg)
			require.NoError(t, err)
			defer closeFn()

			assert.IsType(t, tt.want, s)
		})
	}

	_, _, err := Open(&config.Config{TokenStore: "redis"})
	assert.Error(t, err)
}

func TestMemory_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewMemory().Save(ctx, "x"), context.Canceled)
}
