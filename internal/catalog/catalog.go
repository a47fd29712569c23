// Package catalog loads the static, boot-time list of recognized countries
// — the external Country Catalog collaborator. It is read-only input: the
// manager copies it into CountryStatus records once at startup and never
// consults it again.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/aristath/geosearch/internal/domain"
)

// entry mirrors one row of the catalog fixture on disk.
type entry struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Continent   string `json:"continent"`
}

// Load reads the catalog fixture at path and returns it as an ordered list
// of domain.CatalogEntry, sorted by country code for deterministic boot
// order (the manager applies its own presentation ordering afterward).
func Load(path string) ([]domain.CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	out := make([]domain.CatalogEntry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.CountryCode == "" {
			return nil, fmt.Errorf("catalog file %s has an entry with no country_code", path)
		}
		if seen[e.CountryCode] {
			return nil, fmt.Errorf("catalog file %s has a duplicate country_code %q", path, e.CountryCode)
		}
		seen[e.CountryCode] = true
		out = append(out, domain.CatalogEntry{
			CountryCode: e.CountryCode,
			CountryName: e.CountryName,
			Continent:   e.Continent,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CountryCode < out[j].CountryCode })
	return out, nil
}
