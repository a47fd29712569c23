package index

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/pkg/countryfile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, code, etag string, entries []domain.CountryIndexEntry) {
	t.Helper()
	require.NoError(t, countryfile.WriteFCP(filepath.Join(dir, code+".fcp"), etag, time.Now(), entries))
}

func TestSearch_SubstringMatchAcrossCountries(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "GB", "etag-1", []domain.CountryIndexEntry{
		{Name: "London", CountryCode: "GB"},
		{Name: "Londonderry", CountryCode: "GB"},
	})
	writeFixture(t, dir, "FR", "etag-1", []domain.CountryIndexEntry{
		{Name: "Paris", CountryCode: "FR"},
	})

	idx := New(dir, zerolog.New(io.Discard))
	got, err := idx.Search(context.Background(), []string{"GB", "FR"}, "lond", false, false)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearch_StartsWithWholeWord_ExactOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "GB", "etag-1", []domain.CountryIndexEntry{
		{Name: "York", CountryCode: "GB"},
		{Name: "New York", CountryCode: "GB"},
	})

	idx := New(dir, zerolog.New(io.Discard))
	got, err := idx.Search(context.Background(), []string{"GB"}, "york", true, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "York", got[0].Name)
}

func TestSearch_UnknownCountrySkippedNotErrored(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, zerolog.New(io.Discard))
	got, err := idx.Search(context.Background(), []string{"ZZ"}, "abc", false, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_CacheReusedUntilEtagChanges(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "GB", "etag-1", []domain.CountryIndexEntry{{Name: "London", CountryCode: "GB"}})

	idx := New(dir, zerolog.New(io.Discard))
	got1, err := idx.Search(context.Background(), []string{"GB"}, "london", false, false)
	require.NoError(t, err)
	require.Len(t, got1, 1)

	writeFixture(t, dir, "GB", "etag-2", []domain.CountryIndexEntry{
		{Name: "London", CountryCode: "GB"},
		{Name: "Londonderry", CountryCode: "GB"},
	})

	got2, err := idx.Search(context.Background(), []string{"GB"}, "london", false, false)
	require.NoError(t, err)
	assert.Len(t, got2, 2)
}
