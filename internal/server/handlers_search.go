package server

import (
	"net/http"
	"strconv"

	"github.com/aristath/geosearch/internal/domain"
)

// cityObject is the JSON shape of one search hit, field names matching the
// spec's CityObject exactly (camelCase admin fields, unlike the snake_case
// used elsewhere on this surface).
type cityObject struct {
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	FeatureClass string  `json:"featureClass"`
	FeatureCode  string  `json:"featureCode"`
	CountryCode  string  `json:"countryCode"`
	Admin1Txt    string  `json:"admin1Txt"`
	Admin2Txt    string  `json:"admin2Txt"`
	Admin3Txt    string  `json:"admin3Txt"`
	Admin4Txt    string  `json:"admin4Txt"`
	Timezone     string  `json:"timezone"`
}

func toCityObject(e domain.CountryIndexEntry) cityObject {
	return cityObject{
		Name:         e.Name,
		Lat:          e.Lat,
		Lng:          e.Lng,
		FeatureClass: e.FeatureClass,
		FeatureCode:  e.FeatureCode,
		CountryCode:  e.CountryCode,
		Admin1Txt:    e.Admin1,
		Admin2Txt:    e.Admin2,
		Admin3Txt:    e.Admin3,
		Admin4Txt:    e.Admin4,
		Timezone:     e.Timezone,
	}
}

// handleSearch serves GET /search?search_term=<str>&starts_with=<bool>&whole_word=<bool>.
// Matching is scoped to countries currently loaded (status == started).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("search_term")
	if len(term) < 3 {
		http.Error(w, "search_term must be at least 3 characters", http.StatusBadRequest)
		return
	}
	startsWith, _ := strconv.ParseBool(r.URL.Query().Get("starts_with"))
	wholeWord, _ := strconv.ParseBool(r.URL.Query().Get("whole_word"))

	started, err := s.mgr.StatusStarted(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	codes := make([]string, len(started))
	for i, rec := range started {
		codes[i] = rec.CountryCode
	}

	entries, err := s.idx.Search(r.Context(), codes, term, startsWith, wholeWord)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results := make([]cityObject, len(entries))
	for i, e := range entries {
		results[i] = toCityObject(e)
	}
	s.writeJSON(w, http.StatusOK, results)
}
