package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyCacheDir_SkipsMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "cache")
	files, bytes, err := copyCacheDir(filepath.Join(t.TempDir(), "does-not-exist"), dst)
	require.NoError(t, err)
	assert.Equal(t, 0, files)
	assert.Equal(t, int64(0), bytes)
}

func TestCopyCacheDir_CopiesRegularFiles(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "GB.fcp"), []byte("etag-data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "FR.fcp"), []byte("etag-data-2"), 0o644))

	dst := filepath.Join(t.TempDir(), "cache")
	files, bytes, err := copyCacheDir(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, files)
	assert.Equal(t, int64(len("etag-data")+len("etag-data-2")), bytes)

	got, err := os.ReadFile(filepath.Join(dst, "GB.fcp"))
	require.NoError(t, err)
	assert.Equal(t, "etag-data", string(got))
}

func TestWriteTarGzAndExtract_RoundTrips(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "store.sqlite"), []byte("fake-db"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "cache", "GB.fcp"), []byte("cached"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "out.tar.gz")
	require.NoError(t, writeTarGz(src, archivePath))

	dest := filepath.Join(t.TempDir(), "extracted")
	require.NoError(t, extractTarGz(archivePath, dest))

	db, err := os.ReadFile(filepath.Join(dest, "store.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "fake-db", string(db))

	cached, err := os.ReadFile(filepath.Join(dest, "cache", "GB.fcp"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(cached))
}

func TestFilepathHasPrefix(t *testing.T) {
	assert.True(t, filepathHasPrefix("/tmp/dest/file.txt", "/tmp/dest"))
	assert.False(t, filepathHasPrefix("/tmp/other/file.txt", "/tmp/dest"))
	assert.False(t, filepathHasPrefix("/tmp/dest-evil/file.txt", "/tmp/dest"))
}
