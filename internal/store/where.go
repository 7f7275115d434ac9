package store

import (
	"strings"

	"github.com/showroom-auto/showroom/internal/domain"
)

// where accumulates parameterized conditions joined with AND. Column names
// come from code, never from user input; values are always bound.
type where struct {
	conditions []string
	args       []any
}

func (w *where) add(condition string, args ...any) {
	w.conditions = append(w.conditions, condition)
	w.args = append(w.args, args...)
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+placeholders(len(values))+")", args...)
}

// clause returns "WHERE a AND b" or an empty string
func (w *where) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// carWhere translates a filter into SQL. It must agree with CarFilter.Match.
func carWhere(f domain.CarFilter) *where {
	w := &where{}
	if f.Make != "" {
		w.add("LOWER(make) = ?", f.Make)
	}
	if f.BodyType != "" {
		w.add("body_type = ?", f.BodyType)
	}
	if f.FuelType != "" {
		w.add("fuel_type = ?", f.FuelType)
	}
	if f.Transmission != "" {
		w.add("transmission = ?", f.Transmission)
	}
	w.in("status", f.Statuses)
	if f.MinPrice != nil {
		w.add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		w.add("price <= ?", *f.MaxPrice)
	}
	if f.MinYear != nil {
		w.add("year >= ?", *f.MinYear)
	}
	if f.MaxYear != nil {
		w.add("year <= ?", *f.MaxYear)
	}
	if f.MaxMileage != nil {
		w.add("mileage <= ?", *f.MaxMileage)
	}
	if f.FeaturedOnly {
		w.add("featured = ?", true)
	}
	if f.Query != "" {
		w.add(`LOWER(make || ' ' || model || ' ' || color || ' ' || description) LIKE ? ESCAPE '\'`,
			"%"+escapeLike(f.Query)+"%")
	}
	return w
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// keyset describes the ORDER BY of one sort and the matching "after cursor" predicate
type keyset struct {
	column string
	desc   bool
}

var carKeysets = map[domain.Sort]keyset{
	domain.SortNewest:     {column: "created_at", desc: true},
	domain.SortPriceAsc:   {column: "price"},
	domain.SortPriceDesc:  {column: "price", desc: true},
	domain.SortYearDesc:   {column: "year", desc: true},
	domain.SortMileageAsc: {column: "mileage"},
}

func (k keyset) orderBy() string {
	dir := "ASC"
	if k.desc {
		dir = "DESC"
	}
	return "ORDER BY " + k.column + " " + dir + ", id " + dir
}

// after restricts w to rows strictly after the cursor in this order
func (k keyset) after(w *where, c *domain.Cursor) {
	op := ">"
	if k.desc {
		op = "<"
	}
	key := c.Key()
	w.add("("+k.column+" "+op+" ? OR ("+k.column+" = ? AND id "+op+" ?))", key, key, c.ID)
}
