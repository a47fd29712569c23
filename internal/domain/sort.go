package domain

import "sort"

// SortColumn is one of the columns the manager can order its presentation
// view by.
type SortColumn string

const (
	SortContinent  SortColumn = "continent"
	SortCountry    SortColumn = "country_name"
	SortCode       SortColumn = "country_code"
	SortCityCount  SortColumn = "city_count"
	SortMemUsage   SortColumn = "mem_usage"
	SortStartupDur SortColumn = "startup_time"
)

// SortDirection is either ascending or descending. Any value other than
// "ascending" is treated as descending, per spec.
type SortDirection string

const (
	Ascending  SortDirection = "ascending"
	Descending SortDirection = "descending"
)

// DefaultOrder sorts by continent descending then country name ascending —
// the manager's initial presentation order.
func DefaultOrder(entries []*CountryStatus) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Continent != entries[j].Continent {
			return entries[i].Continent > entries[j].Continent
		}
		return entries[i].CountryName < entries[j].CountryName
	})
}

// Sort reorders entries in place by the given column and direction.
//
// continent falls through to country_name as a tie-break, matching the
// default presentation order. Every other column is a total order where an
// absent/undefined value (zero city_count/mem_usage/startup_time on a
// server that has never reached `started`) sorts greater than any present
// value — undefined goes to the end under ascending, to the front under
// descending. Direction "ascending" applies the comparator as-is; anything
// else swaps the comparator arguments and so is treated as descending.
func Sort(entries []*CountryStatus, direction SortDirection, column SortColumn) {
	less := lessFunc(entries, column)
	if direction == Ascending {
		sort.SliceStable(entries, func(i, j int) bool { return less(i, j) })
	} else {
		sort.SliceStable(entries, func(i, j int) bool { return less(j, i) })
	}
}

func lessFunc(entries []*CountryStatus, column SortColumn) func(i, j int) bool {
	switch column {
	case SortContinent:
		return func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.Continent != b.Continent {
				return a.Continent < b.Continent
			}
			return a.CountryName < b.CountryName
		}
	case SortCountry:
		return func(i, j int) bool { return entries[i].CountryName < entries[j].CountryName }
	case SortCode:
		return func(i, j int) bool { return entries[i].CountryCode < entries[j].CountryCode }
	case SortCityCount:
		return func(i, j int) bool {
			a, b := entries[i], entries[j]
			av, adef := cityCountValue(a)
			bv, bdef := cityCountValue(b)
			return compareUndefinedLast(av, bv, adef, bdef)
		}
	case SortMemUsage:
		return func(i, j int) bool {
			a, b := entries[i], entries[j]
			av, adef := memUsageValue(a)
			bv, bdef := memUsageValue(b)
			return compareUndefinedLast(av, bv, adef, bdef)
		}
	case SortStartupDur:
		return func(i, j int) bool {
			a, b := entries[i], entries[j]
			av, adef := startupDurValue(a)
			bv, bdef := startupDurValue(b)
			return compareUndefinedLast(av, bv, adef, bdef)
		}
	default:
		return func(i, j int) bool { return false }
	}
}

// cityCountValue/memUsageValue/startupDurValue return the column value and
// whether it is defined. These fields are meaningful only when status ==
// started, per the CountryStatus invariants.
func cityCountValue(s *CountryStatus) (int64, bool) {
	if s.Status != StatusStarted {
		return 0, false
	}
	return int64(s.CityCount), true
}

func memUsageValue(s *CountryStatus) (int64, bool) {
	if s.Status != StatusStarted {
		return 0, false
	}
	return int64(s.MemUsage), true
}

func startupDurValue(s *CountryStatus) (int64, bool) {
	if s.Status != StatusStarted {
		return 0, false
	}
	return int64(s.StartupDur), true
}

// compareUndefinedLast implements the "undefined sorts greater than any
// present value" rule in ascending terms: true means a < b.
func compareUndefinedLast(a, b int64, aDefined, bDefined bool) bool {
	if aDefined && bDefined {
		return a < b
	}
	if !aDefined && !bDefined {
		return false
	}
	// exactly one is undefined: the undefined one is "greater" (sorts last).
	return aDefined
}
