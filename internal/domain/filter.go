package domain

import (
	"strings"
)

// CarFilter narrows a car listing. Zero values mean "no constraint".
type CarFilter struct {
	Make         string   `json:"make,omitempty"`
	BodyType     string   `json:"body_type,omitempty"`
	FuelType     string   `json:"fuel_type,omitempty"`
	Transmission string   `json:"transmission,omitempty"`
	Statuses     []string `json:"statuses,omitempty"`
	MinPrice     *int64   `json:"min_price,omitempty"`
	MaxPrice     *int64   `json:"max_price,omitempty"`
	MinYear      *int     `json:"min_year,omitempty"`
	MaxYear      *int     `json:"max_year,omitempty"`
	MaxMileage   *int     `json:"max_mileage,omitempty"`
	Query        string   `json:"q,omitempty"`
	FeaturedOnly bool     `json:"featured,omitempty"`
}

// Normalize trims and lowercases the text constraints and swaps inverted ranges
func (f *CarFilter) Normalize() {
	f.Make = strings.ToLower(strings.TrimSpace(f.Make))
	f.BodyType = strings.ToLower(strings.TrimSpace(f.BodyType))
	f.FuelType = strings.ToLower(strings.TrimSpace(f.FuelType))
	f.Transmission = strings.ToLower(strings.TrimSpace(f.Transmission))
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))

	statuses := f.Statuses[:0:0]
	for _, s := range f.Statuses {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			statuses = append(statuses, s)
		}
	}
	f.Statuses = statuses

	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}
	if f.MinYear != nil && f.MaxYear != nil && *f.MinYear > *f.MaxYear {
		f.MinYear, f.MaxYear = f.MaxYear, f.MinYear
	}
}

// IsZero reports whether the filter has no constraints besides statuses
func (f *CarFilter) IsZero() bool {
	return f.Make == "" && f.BodyType == "" && f.FuelType == "" && f.Transmission == "" &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinYear == nil && f.MaxYear == nil &&
		f.MaxMileage == nil && f.Query == "" && !f.FeaturedOnly
}

// Match is the in-memory form of the filter. It must agree with the SQL
// translation used by the store.
func (f *CarFilter) Match(car *Car) bool {
	if f.Make != "" && strings.ToLower(car.Make) != f.Make {
		return false
	}
	if f.BodyType != "" && car.BodyType != f.BodyType {
		return false
	}
	if f.FuelType != "" && car.FuelType != f.FuelType {
		return false
	}
	if f.Transmission != "" && car.Transmission != f.Transmission {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, string(car.Status)) {
		return false
	}
	if f.MinPrice != nil && car.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && car.Price > *f.MaxPrice {
		return false
	}
	if f.MinYear != nil && car.Year < *f.MinYear {
		return false
	}
	if f.MaxYear != nil && car.Year > *f.MaxYear {
		return false
	}
	if f.MaxMileage != nil && car.Mileage > *f.MaxMileage {
		return false
	}
	if f.FeaturedOnly && !car.Featured {
		return false
	}
	if f.Query != "" {
		haystack := strings.ToLower(strings.Join([]string{car.Make, car.Model, car.Color, car.Description}, " "))
		if !strings.Contains(haystack, f.Query) {
			return false
		}
	}
	return true
}

// Sort is a listing order
type Sort string

const (
	SortNewest     Sort = "newest"
	SortPriceAsc   Sort = "price_asc"
	SortPriceDesc  Sort = "price_desc"
	SortYearDesc   Sort = "year_desc"
	SortMileageAsc Sort = "mileage_asc"
)

// Sorts lists every supported order, in the order shown to users
var Sorts = []Sort{SortNewest, SortPriceAsc, SortPriceDesc, SortYearDesc, SortMileageAsc}

// ParseSort returns the named sort, falling back to SortNewest
func ParseSort(s string) Sort {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sort := range Sorts {
		if string(sort) == s {
			return sort
		}
	}
	return SortNewest
}

// Label is the human-readable name of the sort
func (s Sort) Label() string {
	switch s {
	case SortPriceAsc:
		return "Price: low to high"
	case SortPriceDesc:
		return "Price: high to low"
	case SortYearDesc:
		return "Year: newest first"
	case SortMileageAsc:
		return "Mileage: lowest first"
	default:
		return "Recently added"
	}
}
