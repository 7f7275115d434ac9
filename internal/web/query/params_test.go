package query

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showroom-auto/showroom/internal/domain"
)

func parse(t *testing.T, raw string) (Listing, *domain.ValidationErrors) {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return ParseListing(values, DefaultConfig())
}

func TestParseListingDefaults(t *testing.T) {
	l, errs := parse(t, "")
	assert.False(t, errs.HasErrors())
	assert.Equal(t, domain.SortNewest, l.Sort)
	assert.Equal(t, 12, l.Limit)
	assert.Nil(t, l.Cursor)
	assert.True(t, l.Filter.IsZero())
	assert.Empty(t, l.Values())
}

func TestParseListingFilters(t *testing.T) {
	l, errs := parse(t, "make=+Toyota+&body_type=SUV&status=available,reserved&min_price=30000&max_price=10000&min_year=2018&q=Hybrid&featured=on&sort=price_desc&limit=24")
	require.False(t, errs.HasErrors())

	assert.Equal(t, "toyota", l.Filter.Make)
	assert.Equal(t, "suv", l.Filter.BodyType)
	assert.Equal(t, []string{"available", "reserved"}, l.Filter.Statuses)
	require.NotNil(t, l.Filter.MinPrice)
	assert.Equal(t, int64(10000), *l.Filter.MinPrice, "inverted price range is swapped")
	assert.Equal(t, int64(30000), *l.Filter.MaxPrice)
	assert.Equal(t, 2018, *l.Filter.MinYear)
	assert.Equal(t, "hybrid", l.Filter.Query)
	assert.True(t, l.Filter.FeaturedOnly)
	assert.Equal(t, domain.SortPriceDesc, l.Sort)
	assert.Equal(t, 24, l.Limit)
}

func TestParseListingLimitBounds(t *testing.T) {
	l, errs := parse(t, "limit=500")
	assert.False(t, errs.HasErrors())
	assert.Equal(t, 48, l.Limit)

	l, errs = parse(t, "limit=0")
	assert.Equal(t, "must be at least 1", errs.First(ParamLimit))
	assert.Equal(t, 12, l.Limit)
}

func TestParseListingReportsBadNumbers(t *testing.T) {
	l, errs := parse(t, "min_price=cheap&max_year=soon&make=audi")
	assert.Equal(t, "must be a whole number", errs.First(ParamMinPrice))
	assert.Equal(t, "must be a whole number", errs.First(ParamMaxYear))
	assert.Nil(t, l.Filter.MinPrice)
	assert.Equal(t, "audi", l.Filter.Make)
}

func TestParseListingCursor(t *testing.T) {
	token := domain.EncodeCursor(domain.Cursor{Sort: domain.SortPriceAsc, Value: "15000", ID: uuid.New()})

	l, errs := parse(t, "sort=price_asc&cursor="+token)
	require.False(t, errs.HasErrors())
	require.NotNil(t, l.Cursor)
	assert.Equal(t, "15000", l.Cursor.Value)
	assert.Equal(t, token, l.Token)

	l, errs = parse(t, "sort=newest&cursor="+token)
	assert.NotEmpty(t, errs.First(ParamCursor))
	assert.Nil(t, l.Cursor)
	assert.Empty(t, l.Token)

	_, errs = parse(t, "cursor=!!!")
	assert.NotEmpty(t, errs.First(ParamCursor))
}

func TestListingValuesRoundTrip(t *testing.T) {
	l, _ := parse(t, "make=bmw&status=sold&max_mileage=50000&sort=year_desc&featured=1")
	v := l.Values()
	assert.Equal(t, "bmw", v.Get(ParamMake))
	assert.Equal(t, "sold", v.Get(ParamStatus))
	assert.Equal(t, "50000", v.Get(ParamMaxMileage))
	assert.Equal(t, "year_desc", v.Get(ParamSort))
	assert.Equal(t, "1", v.Get(ParamFeatured))

	again, _ := ParseListing(v, DefaultConfig())
	assert.Equal(t, l.Filter, again.Filter)

	next := l.NextValues("tok", DefaultConfig())
	assert.Equal(t, "tok", next.Get(ParamCursor))
	assert.Empty(t, next.Get(ParamLimit))
}
