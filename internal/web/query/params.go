// Package query turns listing query strings into car filters, sort orders,
// cursors and page sizes, and back into links.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/showroom-auto/showroom/internal/domain"
)

// Query parameter names shared by the explorer, the admin list and the API
const (
	ParamMake         = "make"
	ParamBodyType     = "body_type"
	ParamFuelType     = "fuel_type"
	ParamTransmission = "transmission"
	ParamStatus       = "status"
	ParamMinPrice     = "min_price"
	ParamMaxPrice     = "max_price"
	ParamMinYear      = "min_year"
	ParamMaxYear      = "max_year"
	ParamMaxMileage   = "max_mileage"
	ParamQuery        = "q"
	ParamFeatured     = "featured"
	ParamSort         = "sort"
	ParamCursor       = "cursor"
	ParamLimit        = "limit"
)

// Config bounds the page size
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns the explorer's page sizes
func DefaultConfig() Config {
	return Config{DefaultLimit: 12, MaxLimit: 48}
}

// Listing is a parsed listing request
type Listing struct {
	Filter domain.CarFilter
	Sort   domain.Sort
	Cursor *domain.Cursor
	Limit  int

	// Token is the raw cursor token, kept for cache keys and links
	Token string
}

// ParseListing reads a listing from values. Malformed numbers and cursors are
// reported per field; the remaining fields are still parsed.
func ParseListing(values url.Values, config Config) (Listing, *domain.ValidationErrors) {
	errs := domain.NewValidationErrors()
	l := Listing{
		Filter: domain.CarFilter{
			Make:         values.Get(ParamMake),
			BodyType:     values.Get(ParamBodyType),
			FuelType:     values.Get(ParamFuelType),
			Transmission: values.Get(ParamTransmission),
			Statuses:     splitList(values[ParamStatus]),
			Query:        values.Get(ParamQuery),
			FeaturedOnly: parseBool(values.Get(ParamFeatured)),
		},
		Sort:  domain.ParseSort(values.Get(ParamSort)),
		Limit: config.DefaultLimit,
		Token: strings.TrimSpace(values.Get(ParamCursor)),
	}

	l.Filter.MinPrice = int64Param(values, ParamMinPrice, errs)
	l.Filter.MaxPrice = int64Param(values, ParamMaxPrice, errs)
	l.Filter.MinYear = intParam(values, ParamMinYear, errs)
	l.Filter.MaxYear = intParam(values, ParamMaxYear, errs)
	l.Filter.MaxMileage = intParam(values, ParamMaxMileage, errs)
	l.Filter.Normalize()

	if limit := intParam(values, ParamLimit, errs); limit != nil {
		switch {
		case *limit < 1:
			errs.Add(ParamLimit, "must be at least 1")
		case *limit > config.MaxLimit:
			l.Limit = config.MaxLimit
		default:
			l.Limit = *limit
		}
	}

	cursor, err := domain.DecodeCursor(l.Token, l.Sort)
	if err != nil {
		errs.Add(ParamCursor, "is invalid or belongs to another sort order")
		l.Token = ""
	}
	l.Cursor = cursor

	return l, errs
}

// Values encodes the listing's filter and sort, omitting defaults. The cursor
// and limit are left out; use NextValues for the following page.
func (l Listing) Values() url.Values {
	v := url.Values{}
	f := l.Filter
	setString(v, ParamMake, f.Make)
	setString(v, ParamBodyType, f.BodyType)
	setString(v, ParamFuelType, f.FuelType)
	setString(v, ParamTransmission, f.Transmission)
	for _, s := range f.Statuses {
		v.Add(ParamStatus, s)
	}
	if f.MinPrice != nil {
		v.Set(ParamMinPrice, strconv.FormatInt(*f.MinPrice, 10))
	}
	if f.MaxPrice != nil {
		v.Set(ParamMaxPrice, strconv.FormatInt(*f.MaxPrice, 10))
	}
	setInt(v, ParamMinYear, f.MinYear)
	setInt(v, ParamMaxYear, f.MaxYear)
	setInt(v, ParamMaxMileage, f.MaxMileage)
	setString(v, ParamQuery, f.Query)
	if f.FeaturedOnly {
		v.Set(ParamFeatured, "1")
	}
	if l.Sort != "" && l.Sort != domain.SortNewest {
		v.Set(ParamSort, string(l.Sort))
	}
	return v
}

// NextValues returns the query for the page after this one
func (l Listing) NextValues(nextCursor string, config Config) url.Values {
	v := l.Values()
	v.Set(ParamCursor, nextCursor)
	if l.Limit != config.DefaultLimit {
		v.Set(ParamLimit, strconv.Itoa(l.Limit))
	}
	return v
}

func splitList(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func intParam(values url.Values, name string, errs *domain.ValidationErrors) *int {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs.Add(name, "must be a whole number")
		return nil
	}
	return &n
}

func int64Param(values url.Values, name string, errs *domain.ValidationErrors) *int64 {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		errs.Add(name, "must be a whole number")
		return nil
	}
	return &n
}

func setString(v url.Values, name, value string) {
	if value != "" {
		v.Set(name, value)
	}
}

func setInt(v url.Values, name string, value *int) {
	if value != nil {
		v.Set(name, strconv.Itoa(*value))
	}
}
