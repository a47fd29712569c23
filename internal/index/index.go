// Package index implements the narrow search-matching boundary against
// already-loaded country indexes. The matching algorithm itself is an
// external collaborator by spec; this package only resolves which
// CountryIndexEntry records to hand it, by reading the FCP cache file each
// running data server maintains.
package index

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/pkg/countryfile"
	"github.com/rs/zerolog"
)

// Index resolves search queries against the FCP cache files of currently
// loaded (started) countries. Entries are cached in memory per country code
// after the first read and invalidated whenever the recorded etag changes,
// so a country that rebuilds its cache picks up fresh entries without a
// process restart.
type Index struct {
	cacheDir string
	log      zerolog.Logger

	mu    sync.RWMutex
	cache map[string]countryCache
}

type countryCache struct {
	etag    string
	entries []domain.CountryIndexEntry
}

// New builds an Index rooted at the FCP cache directory.
func New(cacheDir string, log zerolog.Logger) *Index {
	return &Index{
		cacheDir: cacheDir,
		log:      log.With().Str("component", "index").Logger(),
		cache:    make(map[string]countryCache),
	}
}

// Search returns the union of matching CountryIndexEntry records across the
// given country codes. term must already have been validated by the caller
// (spec requires at least 3 characters). startsWith+wholeWord together mean
// an exact word match; startsWith alone means a prefix match; neither means
// a substring match.
func (idx *Index) Search(ctx context.Context, countryCodes []string, term string, startsWith, wholeWord bool) ([]domain.CountryIndexEntry, error) {
	needle := strings.ToLower(term)
	var out []domain.CountryIndexEntry
	for _, code := range countryCodes {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		entries, err := idx.entriesFor(code)
		if err != nil {
			idx.log.Warn().Err(err).Str("country_code", code).Msg("failed to load cached index for search")
			continue
		}
		for _, e := range entries {
			if matches(e.Name, needle, startsWith, wholeWord) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// entriesFor returns the entries for code. Only the cheap FCP header is
// read to check the etag; the full entry body is re-parsed and cached only
// when the etag has actually changed since the last load.
func (idx *Index) entriesFor(code string) ([]domain.CountryIndexEntry, error) {
	path := filepath.Join(idx.cacheDir, code+".fcp")
	etag, _, err := countryfile.ReadFCPHeader(path)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	cached, ok := idx.cache[code]
	idx.mu.RUnlock()
	if ok && cached.etag == etag {
		return cached.entries, nil
	}

	_, _, entries, err := countryfile.ReadFCP(path)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.cache[code] = countryCache{etag: etag, entries: entries}
	idx.mu.Unlock()
	return entries, nil
}

func matches(name, needle string, startsWith, wholeWord bool) bool {
	lower := strings.ToLower(name)
	switch {
	case startsWith && wholeWord:
		return lower == needle
	case startsWith:
		return strings.HasPrefix(lower, needle)
	default:
		return strings.Contains(lower, needle)
	}
}
