package countryfile

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = "2635167\tLondon\tLondon\t\t51.50853\t-0.12574\tP\tPPLC\tGB\t\tENG\tGLA\t\t\t8961989\t11\t11\tEurope/London\t2023-01-01\n" +
	"2653941\tEngland\tEngland\t\t52.5\t-1.5\tA\tADM1\tGB\t\tENG\t\t\t\t56286961\t0\t0\tEurope/London\t2023-01-01\n" +
	"6690599\tGreater London\t\t\t51.5\t-0.1\tA\tADM2\tGB\t\tENG\tGLA\t\t\t8961989\t0\t0\tEurope/London\t2023-01-01\n" +
	"2636790\tLittle Hamlet\tLittle Hamlet\t\t51.1\t-0.2\tP\tPPL\tGB\t\tENG\tGLA\t\t\t12\t0\t0\tEurope/London\t2023-01-01\n"

func TestParseRecords_FiltersAndJoins(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sampleDump))
	require.NoError(t, err)
	require.Len(t, records, 4)

	populated, admin := Filter(records, 500)
	require.Len(t, populated, 1, "only London clears the population threshold")
	require.Len(t, admin, 2)

	entries := Join(populated, admin)
	require.Len(t, entries, 1)
	assert.Equal(t, "London", entries[0].Name)
	assert.Equal(t, "England", entries[0].Admin1)
	assert.Equal(t, "Greater London", entries[0].Admin2)
}

func TestParseRecords_MalformedLineErrors(t *testing.T) {
	_, err := ParseRecords(strings.NewReader("too\tfew\tfields"))
	assert.Error(t, err)
}

func TestFCPRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gb.fcp")

	records, err := ParseRecords(strings.NewReader(sampleDump))
	require.NoError(t, err)
	populated, admin := Filter(records, 500)
	entries := Join(populated, admin)

	recordedAt := time.Now().Truncate(time.Second)
	require.NoError(t, WriteFCP(path, "abc123", recordedAt, entries))

	etag, got, readBack, err := ReadFCP(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", etag)
	assert.Equal(t, recordedAt.Unix(), got.Unix())
	assert.Equal(t, entries, readBack)
}

func TestReadFCPHeader_MatchesReadFCP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gb.fcp")

	records, err := ParseRecords(strings.NewReader(sampleDump))
	require.NoError(t, err)
	populated, admin := Filter(records, 500)
	entries := Join(populated, admin)

	recordedAt := time.Now().Truncate(time.Second)
	require.NoError(t, WriteFCP(path, "abc123", recordedAt, entries))

	etag, got, err := ReadFCPHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", etag)
	assert.Equal(t, recordedAt.Unix(), got.Unix())
}

func TestIsFresh(t *testing.T) {
	now := time.Now()
	assert.True(t, IsFresh(now.Add(-time.Hour), 24*time.Hour, now))
	assert.False(t, IsFresh(now.Add(-25*time.Hour), 24*time.Hour, now))
}
