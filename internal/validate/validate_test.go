package validate

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nycBox = Box{MinLat: 40.4, MaxLat: 41.0, MinLon: -74.3, MaxLon: -73.6}

func requests() *dataset.Dataset {
	return dataset.MustNew(
		[]dataset.ColumnSpec{
			{Name: "zip", Kind: dataset.KindText},
			{Name: "lat", Kind: dataset.KindNumeric},
			{Name: "lon", Kind: dataset.KindNumeric},
		},
		[]dataset.Row{
			{"10001", 40.75, -73.99},
			{"99999", 45.0, -73.99},
		},
	)
}

func TestFilterByGeoBoundingBox(t *testing.T) {
	out, dropped, err := FilterByGeoBoundingBox(requests(), "lat", "lon", nycBox)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "10001", out.Row(0)[0])
	assert.Equal(t, 0, out.RowID(0))
}

func TestFilterByGeoBoundingBoxDropsNulls(t *testing.T) {
	ds := dataset.MustNew(
		[]dataset.ColumnSpec{{Name: "lat", Kind: dataset.KindNumeric}, {Name: "lon", Kind: dataset.KindNumeric}},
		[]dataset.Row{{nil, -73.9}, {40.7, -73.9}, {40.4, -74.3}},
	)
	out, dropped, err := FilterByGeoBoundingBox(ds, "lat", "lon", nycBox)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 2, out.Len(), "bounds are inclusive")
}

func populations() *dataset.Dataset {
	return dataset.MustNew(
		[]dataset.ColumnSpec{{Name: "borough", Kind: dataset.KindText}, {Name: "population_2020", Kind: dataset.KindNumeric}},
		[]dataset.Row{
			{"Bronx", int64(1472654)},
			{"Typo", int64(14726)},
			{"Brooklyn", int64(2736074)},
			{"Unknown", nil},
			{"Edge", 500000.0},
		},
	)
}

func TestFilterByNumericRange(t *testing.T) {
	out, dropped, err := FilterByNumericRange(populations(), "population_2020", 500000, 10000000)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 3, out.Len())
}

func TestFilterByNumericRangeIdempotent(t *testing.T) {
	once, _, err := FilterByNumericRange(populations(), "population_2020", 500000, 10000000)
	require.NoError(t, err)
	twice, dropped, err := FilterByNumericRange(once, "population_2020", 500000, 10000000)
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, once.Len(), twice.Len())
	for i := 0; i < once.Len(); i++ {
		assert.Equal(t, once.RowID(i), twice.RowID(i))
	}
}

func TestFilterStructuralErrors(t *testing.T) {
	_, _, err := FilterByNumericRange(populations(), "population_2050", 0, 1)
	assert.True(t, errors.Is(err, dataset.ErrColumnNotFound))

	_, _, err = FilterByNumericRange(populations(), "borough", 0, 1)
	assert.True(t, errors.Is(err, dataset.ErrUnsupportedColumnType))

	_, _, err = FilterByDateRange(populations(), "borough", time.Time{}, time.Now())
	assert.True(t, errors.Is(err, dataset.ErrUnsupportedColumnType))
}

func violations() *dataset.Dataset {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	return dataset.MustNew(
		[]dataset.ColumnSpec{{Name: "inspection_date", Kind: dataset.KindDate}},
		[]dataset.Row{{d(2009, 12, 31)}, {d(2010, 1, 1)}, {d(2018, 5, 4)}, {nil}, {d(2025, 12, 31)}, {d(2030, 1, 1)}},
	)
}

func TestFilterByDateRange(t *testing.T) {
	lo := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	out, dropped, err := FilterByDateRange(violations(), "inspection_date", lo, hi)
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 3, out.Len())
}

func TestFilterByPatternAndAllowed(t *testing.T) {
	ds := dataset.MustNew(
		[]dataset.ColumnSpec{{Name: "zip", Kind: dataset.KindText}, {Name: "sex", Kind: dataset.KindNumeric}},
		[]dataset.Row{{"10001", int64(0)}, {"1000", int64(1)}, {"N/A", int64(2)}, {nil, nil}},
	)
	out, dropped, err := FilterByPattern(ds, "zip", regexp.MustCompile(`^\d{5}$`))
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 1, out.Len())

	out, dropped, err = FilterByAllowed(ds, "sex", []string{"0", "1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 2, out.Len())
}

func TestApplyRules(t *testing.T) {
	rules := []Rule{
		{Type: RuleGeoBox, LatColumn: "lat", LonColumn: "lon", Box: &nycBox},
		{Name: "zip5", Type: RulePattern, Column: "zip", Pattern: `^\d{5}$`},
	}
	out, rep, err := Apply(requests(), rules)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 2, rep.RowsBefore)
	assert.Equal(t, 1, rep.RowsAfter)
	assert.Equal(t, 1, rep.Dropped())
	require.Len(t, rep.Rules, 2)
	assert.Equal(t, "geo_box(lat,lon)", rep.Rules[0].Name)
	assert.Equal(t, 1, rep.Rules[0].Dropped)
	assert.Equal(t, "zip5", rep.Rules[1].Name)
	assert.Equal(t, 0, rep.Rules[1].Dropped)
}

func TestApplyOneSidedRange(t *testing.T) {
	out, _, err := Apply(populations(), []Rule{{Type: RuleNumericRange, Column: "population_2020", Min: Float(1000000)}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestApplyDateRule(t *testing.T) {
	out, rep, err := Apply(violations(), []Rule{{Type: RuleDateRange, Column: "inspection_date", MinDate: "2010-01-01", MaxDate: "2025-12-31"}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, 3, rep.Rules[0].Dropped)
}

func TestRuleCheck(t *testing.T) {
	bad := []Rule{
		{Type: "between", Column: "a"},
		{Type: RuleNumericRange},
		{Type: RuleNumericRange, Column: "a", Min: Float(2), Max: Float(1)},
		{Type: RuleDateRange, Column: "a", MinDate: "yesterday"},
		{Type: RuleDateRange, Column: "a", MinDate: "2020-01-01", MaxDate: "2019-01-01"},
		{Type: RuleGeoBox, LatColumn: "lat"},
		{Type: RuleGeoBox, LatColumn: "lat", LonColumn: "lon"},
		{Type: RuleGeoBox, LatColumn: "lat", LonColumn: "lon", Box: &Box{MinLat: 2, MaxLat: 1}},
		{Type: RulePattern, Column: "a", Pattern: "("},
		{Type: RuleAllowed, Column: "a"},
	}
	for _, r := range bad {
		assert.Error(t, r.Check(), "%+v", r)
	}
}
