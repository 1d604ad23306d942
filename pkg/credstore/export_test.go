package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportTokens(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	src := NewPool(NewMemoryStore(), WithClock(clock.Now))
	require.NoError(t, src.AddToken(ctx, TokenRecord{Token: "alpha-token", TenantURL: "https://a.example/", CreatedAt: 1}))
	require.NoError(t, src.AddToken(ctx, TokenRecord{Token: "beta-token", TenantURL: "https://b.example/", CreatedAt: 2}))

	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	n, err := src.ExportTokens(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dst := NewPool(NewMemoryStore())
	n, err = dst.ImportTokens(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	tokens, err := dst.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "alpha-token", tokens[0].Token)
	assert.Equal(t, int64(2), tokens[1].CreatedAt)
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":9,"tokens":[]}`), 0o600))
	_, err := NewPool(NewMemoryStore()).ImportTokens(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupportedExport)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = NewPool(NewMemoryStore()).ImportTokens(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupportedExport)
}

func TestImportMissingFile(t *testing.T) {
	_, err := NewPool(NewMemoryStore()).ImportTokens(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
