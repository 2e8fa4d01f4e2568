package filestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	staging := t.TempDir()

	fs, err := NewLocalStorage(filepath.Join(t.TempDir(), "uploads"), "http://localhost:8080/uploads/")
	require.NoError(t, err)

	url, err := fs.GetPublicURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads", url)

	src := filepath.Join(staging, "cover_1-aaaaaaaa.webp")
	require.NoError(t, os.WriteFile(src, []byte("RIFF....WEBP"), 0o644))

	require.NoError(t, fs.Publish(ctx, src, "cover_1-aaaaaaaa.webp"))
	assert.NoFileExists(t, src)

	ok, err := fs.Exists(ctx, "cover_1-aaaaaaaa.webp")
	require.NoError(t, err)
	assert.True(t, ok)

	assets, err := fs.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "cover_1-aaaaaaaa.webp", assets[0].Name)
	assert.False(t, assets[0].ModifiedAt.IsZero())

	require.NoError(t, fs.Remove(ctx, "cover_1-aaaaaaaa.webp"))
	ok, err = fs.Exists(ctx, "cover_1-aaaaaaaa.webp")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, fs.Remove(ctx, "cover_1-aaaaaaaa.webp"), "removing a missing asset succeeds")
}

func TestLocalStorage_RejectsPathNames(t *testing.T) {
	ctx := context.Background()
	fs, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape.webp", "a/b.webp"} {
		assert.Error(t, fs.Remove(ctx, name), "name %q", name)
		_, err := fs.Exists(ctx, name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestLocalStorage_ListSkipsInFlight(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewLocalStorage(dir, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".convert-123.tmp"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1-aaaaaaaa.webp"), nil, 0o644))

	assets, err := fs.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "a_1-aaaaaaaa.webp", assets[0].Name)
}
