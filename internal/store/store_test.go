package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "store.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordCommand_RoundTrips(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.RecordCommand(ctx, AuditEntry{
		Cmd:         "start",
		CountryCode: "GB",
		Payload:     map[string]any{"requested_by": "operator"},
	}))
	require.NoError(t, s.RecordCommand(ctx, AuditEntry{
		Cmd:         "shutdown_all",
		CountryCode: "",
		Payload:     nil,
	}))

	entries, err := s.RecentCommands(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// most recent first
	assert.Equal(t, "shutdown_all", entries[0].Cmd)
	assert.Equal(t, "start", entries[1].Cmd)
	assert.Equal(t, "GB", entries[1].CountryCode)
	assert.Equal(t, "operator", entries[1].Payload["requested_by"])
}

func TestRecentCommands_RespectsLimit(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordCommand(ctx, AuditEntry{Cmd: "trace", CountryCode: "FR"}))
	}

	entries, err := s.RecentCommands(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSortPreference_AbsentThenRoundTrips(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()

	_, ok, err := s.LoadSortPreference(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	pref := SortPreference{Direction: domain.Descending, Column: domain.SortCityCount}
	require.NoError(t, s.SaveSortPreference(ctx, pref))

	got, ok, err := s.LoadSortPreference(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pref, got)

	// overwrite
	pref2 := SortPreference{Direction: domain.Ascending, Column: domain.SortCountry}
	require.NoError(t, s.SaveSortPreference(ctx, pref2))
	got2, ok, err := s.LoadSortPreference(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pref2, got2)
}
