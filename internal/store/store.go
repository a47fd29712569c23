package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is the document-store facade: a command audit trail (enrichment
// beyond spec.md, kept distinct from the plain-text FCP cache file) plus
// the last remembered admin sort preference.
type Store struct {
	db *DB
}

// New wraps an open DB.
func New(db *DB) *Store { return &Store{db: db} }

// AuditEntry is one recorded admin command.
type AuditEntry struct {
	RecordedAt  time.Time
	Cmd         string
	CountryCode string
	Payload     map[string]any
}

// RecordCommand appends an entry to the audit trail. Payload is packed with
// msgpack, compact binary serialization distinct from the FCP cache file's
// plain-text format.
func (s *Store) RecordCommand(ctx context.Context, entry AuditEntry) error {
	packed, err := msgpack.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to pack audit payload: %w", err)
	}
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO command_audit (recorded_at, cmd, country_code, payload) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), entry.Cmd, entry.CountryCode, packed,
	)
	if err != nil {
		return fmt.Errorf("failed to record command audit entry: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit audit entries, most recent first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT recorded_at, cmd, country_code, payload FROM command_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var recordedAt, cmd, code string
		var packed []byte
		if err := rows.Scan(&recordedAt, &cmd, &code, &packed); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		var payload map[string]any
		if len(packed) > 0 {
			if err := msgpack.Unmarshal(packed, &payload); err != nil {
				return nil, fmt.Errorf("failed to unpack audit payload: %w", err)
			}
		}
		out = append(out, AuditEntry{RecordedAt: ts, Cmd: cmd, CountryCode: code, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return out, nil
}

// SortPreference is the last admin-chosen sort order, remembered across
// restarts so the status page opens the way the operator left it.
type SortPreference struct {
	Direction domain.SortDirection
	Column    domain.SortColumn
}

const sortPreferenceKey = "sort"

// SaveSortPreference persists the given preference, replacing any prior
// value.
func (s *Store) SaveSortPreference(ctx context.Context, pref SortPreference) error {
	packed, err := msgpack.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to pack sort preference: %w", err)
	}
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		sortPreferenceKey, packed,
	)
	if err != nil {
		return fmt.Errorf("failed to save sort preference: %w", err)
	}
	return nil
}

// LoadSortPreference returns the remembered sort preference, if any.
func (s *Store) LoadSortPreference(ctx context.Context) (SortPreference, bool, error) {
	var packed []byte
	err := s.db.Conn().QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, sortPreferenceKey).Scan(&packed)
	if errors.Is(err, sql.ErrNoRows) {
		return SortPreference{}, false, nil
	}
	if err != nil {
		return SortPreference{}, false, fmt.Errorf("failed to load sort preference: %w", err)
	}
	var pref SortPreference
	if err := msgpack.Unmarshal(packed, &pref); err != nil {
		return SortPreference{}, false, fmt.Errorf("failed to unpack sort preference: %w", err)
	}
	return pref, true, nil
}
