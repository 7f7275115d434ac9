package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCursor is returned for tokens that cannot be decoded or belong to another sort
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last row of a page. Value is the sort key of that row in
// its canonical string form; ID breaks ties between equal sort keys.
type Cursor struct {
	Sort  Sort      `json:"s"`
	Value string    `json:"v"`
	ID    uuid.UUID `json:"id"`
}

// Page is one slice of a cursor-paginated listing
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// EncodeCursor returns the opaque token for c
func EncodeCursor(c Cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses token and checks that it was issued for sort.
// An empty token yields a nil cursor.
func DecodeCursor(token string, sort Sort) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.Sort != sort || c.ID == uuid.Nil {
		return nil, ErrInvalidCursor
	}
	if _, err := c.key(); err != nil {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// CarCursor builds the cursor pointing after car in the given sort
func CarCursor(car *Car, sort Sort) Cursor {
	c := Cursor{Sort: sort, ID: car.ID}
	switch sort {
	case SortPriceAsc, SortPriceDesc:
		c.Value = strconv.FormatInt(car.Price, 10)
	case SortYearDesc:
		c.Value = strconv.Itoa(car.Year)
	case SortMileageAsc:
		c.Value = strconv.Itoa(car.Mileage)
	default:
		c.Value = car.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return c
}

// ActivityCursor builds the cursor pointing after a in the activity log
func ActivityCursor(a *Activity) Cursor {
	return Cursor{Sort: SortNewest, Value: a.CreatedAt.UTC().Format(time.RFC3339Nano), ID: a.ID}
}

// Key returns the typed sort key: time.Time for SortNewest, int64 otherwise
func (c *Cursor) Key() any {
	k, _ := c.key()
	return k
}

func (c *Cursor) key() (any, error) {
	switch c.Sort {
	case SortPriceAsc, SortPriceDesc, SortYearDesc, SortMileageAsc:
		return strconv.ParseInt(c.Value, 10, 64)
	default:
		return time.Parse(time.RFC3339Nano, c.Value)
	}
}
