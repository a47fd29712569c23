package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func started(code, name, continent string, cityCount int, mem uint64) *CountryStatus {
	s := NewCountryStatus(CatalogEntry{CountryCode: code, CountryName: name, Continent: continent})
	s.Status = StatusStarted
	s.Progress = 100
	s.CityCount = cityCount
	s.MemUsage = mem
	return s
}

func TestDefaultOrder_ContinentDescThenNameAsc(t *testing.T) {
	gb := started("GB", "United Kingdom", "Europe", 1, 1)
	fr := started("FR", "France", "Europe", 1, 1)
	de := started("DE", "Deutschland", "Europe", 1, 1)
	entries := []*CountryStatus{gb, fr, de}

	DefaultOrder(entries)

	assert.Equal(t, []string{"DE", "FR", "GB"}, codes(entries))
}

func TestSort_CountryNameAscendingAndDescending(t *testing.T) {
	gb := started("GB", "United Kingdom", "Europe", 1, 1)
	fr := started("FR", "France", "Europe", 1, 1)
	de := started("DE", "Deutschland", "Europe", 1, 1)
	entries := []*CountryStatus{gb, fr, de}

	Sort(entries, Ascending, SortCountry)
	assert.Equal(t, []string{"DE", "FR", "GB"}, codes(entries))

	Sort(entries, Descending, SortCountry)
	assert.Equal(t, []string{"GB", "FR", "DE"}, codes(entries))
}

func TestSort_MemUsageUndefinedSortsLast(t *testing.T) {
	defined := started("GB", "United Kingdom", "Europe", 1, 500)
	undefined := NewCountryStatus(CatalogEntry{CountryCode: "FR", CountryName: "France", Continent: "Europe"})
	entries := []*CountryStatus{undefined, defined}

	Sort(entries, Ascending, SortMemUsage)
	assert.Equal(t, []string{"GB", "FR"}, codes(entries))

	Sort(entries, Descending, SortMemUsage)
	assert.Equal(t, []string{"FR", "GB"}, codes(entries))
}

func TestCountryStatus_ResetToInitial_RetainsIdentity(t *testing.T) {
	s := started("GB", "United Kingdom", "Europe", 42, 1024)
	s.Trace = true
	s.Children = nil

	s.ResetToInitial()

	assert.Equal(t, "GB", s.CountryCode)
	assert.Equal(t, "United Kingdom", s.CountryName)
	assert.Equal(t, "Europe", s.Continent)
	assert.Equal(t, StatusStopped, s.Status)
	assert.Equal(t, 0, s.Progress)
	assert.Equal(t, 0, s.CityCount)
	assert.Equal(t, uint64(0), s.MemUsage)
	assert.Nil(t, s.Handle)
	assert.False(t, s.Trace)
}

func codes(entries []*CountryStatus) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CountryCode
	}
	return out
}
