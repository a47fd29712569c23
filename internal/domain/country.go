// Package domain holds the pure data model of the geosearch control plane:
// the catalog entry, the per-country runtime status record, the populated
// place index entry, and the state-machine and ordering rules that govern
// them. Nothing in this package performs I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a country's data server.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusStarted  Status = "started"
	StatusCrashed  Status = "crashed"
)

// CatalogEntry is one row of the boot-time country catalog, supplied by the
// external Country Catalog collaborator.
type CatalogEntry struct {
	CountryCode string // ISO-2, uppercase
	CountryName string
	Continent   string
}

// ServerName is the canonical name used to address a country's data server.
func ServerName(countryCode string) string {
	return "country_server_" + toLower(countryCode)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Handle is the manager's reference to a live data server: the channel used
// to send it async commands, plus a cancellation function used by reset to
// forcibly kill a lingering server.
type Handle struct {
	Commands chan<- any
	Cancel   func()
}

// CountryStatus is the single record the Country Manager owns per catalog
// entry. It lives for the entire process lifetime; identity never mutates.
type CountryStatus struct {
	// Identity
	CountryCode string
	ServerName  string

	// Descriptive
	CountryName string
	Continent   string

	// Runtime
	Handle     *Handle
	Status     Status
	Substatus  string
	Progress   int
	Children   []uuid.UUID
	StartedAt  time.Time
	StartupDur time.Duration
	CityCount  int
	MemUsage   uint64
	Trace      bool
}

// NewCountryStatus builds the initial stopped record for a catalog entry.
func NewCountryStatus(e CatalogEntry) *CountryStatus {
	return &CountryStatus{
		CountryCode: e.CountryCode,
		ServerName:  ServerName(e.CountryCode),
		CountryName: e.CountryName,
		Continent:   e.Continent,
		Status:      StatusStopped,
		Progress:    0,
	}
}

// Clone returns a deep-enough copy suitable for handing out in a snapshot
// reply — callers must never be able to mutate the manager's live record
// through the returned value.
func (s *CountryStatus) Clone() *CountryStatus {
	cp := *s
	if len(s.Children) > 0 {
		cp.Children = append([]uuid.UUID(nil), s.Children...)
	}
	return &cp
}

// resetToInitial rebuilds the record from catalog identity, used by reset
// and by a from-scratch stop. Identity fields (code, name, continent,
// server name) are retained; everything else reverts to the stopped state.
func (s *CountryStatus) resetToInitial() {
	s.Handle = nil
	s.Status = StatusStopped
	s.Substatus = ""
	s.Progress = 0
	s.Children = nil
	s.StartedAt = time.Time{}
	s.StartupDur = 0
	s.CityCount = 0
	s.MemUsage = 0
	s.Trace = false
}

// ResetToInitial is the exported form used by the manager's reset command.
func (s *CountryStatus) ResetToInitial() { s.resetToInitial() }

// CountryIndexEntry is an immutable populated-place record retained after
// filtering and admin-region join. Built once during a data server's
// startup; never mutated after.
type CountryIndexEntry struct {
	Name         string
	Lat          float64
	Lng          float64
	FeatureClass string
	FeatureCode  string
	CountryCode  string
	Admin1       string
	Admin2       string
	Admin3       string
	Admin4       string
	Timezone     string
}
