// Package validate drops rows whose values fall outside declared valid domains.
// Out-of-range data is the expected subject of the stage and is only counted; the filters fail
// only when a column is missing or has the wrong kind.
package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// Box is a rectangular latitude/longitude window, bounds inclusive.
type Box struct {
	MinLat float64 `mapstructure:"min_lat" yaml:"min_lat" json:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat" yaml:"max_lat" json:"max_lat"`
	MinLon float64 `mapstructure:"min_lon" yaml:"min_lon" json:"min_lon"`
	MaxLon float64 `mapstructure:"max_lon" yaml:"max_lon" json:"max_lon"`
}

// FilterByDateRange drops rows whose column is null or outside [min, max].
func FilterByDateRange(ds *dataset.Dataset, column string, min, max time.Time) (*dataset.Dataset, int, error) {
	j, err := columnOfKind(ds, "date range", column, dataset.KindDate)
	if err != nil {
		return nil, 0, err
	}
	out := ds.Filter(func(_ int, r dataset.Row) bool {
		t, ok := r[j].(time.Time)
		return ok && !t.Before(min) && !t.After(max)
	})
	return out, ds.Len() - out.Len(), nil
}

// FilterByNumericRange drops rows whose column is null or outside [min, max].
func FilterByNumericRange(ds *dataset.Dataset, column string, min, max float64) (*dataset.Dataset, int, error) {
	j, err := columnOfKind(ds, "numeric range", column, dataset.KindNumeric)
	if err != nil {
		return nil, 0, err
	}
	out := ds.Filter(func(_ int, r dataset.Row) bool {
		return inRange(r[j], min, max)
	})
	return out, ds.Len() - out.Len(), nil
}

// FilterByGeoBoundingBox drops rows whose (lat, lon) falls outside box.
func FilterByGeoBoundingBox(ds *dataset.Dataset, latColumn, lonColumn string, box Box) (*dataset.Dataset, int, error) {
	lat, err := columnOfKind(ds, "geo box", latColumn, dataset.KindNumeric)
	if err != nil {
		return nil, 0, err
	}
	lon, err := columnOfKind(ds, "geo box", lonColumn, dataset.KindNumeric)
	if err != nil {
		return nil, 0, err
	}
	out := ds.Filter(func(_ int, r dataset.Row) bool {
		return inRange(r[lat], box.MinLat, box.MaxLat) && inRange(r[lon], box.MinLon, box.MaxLon)
	})
	return out, ds.Len() - out.Len(), nil
}

// FilterByPattern keeps rows whose rendered value matches re.
func FilterByPattern(ds *dataset.Dataset, column string, re *regexp.Regexp) (*dataset.Dataset, int, error) {
	j, err := ds.Index(column)
	if err != nil {
		return nil, 0, fmt.Errorf("pattern: %w", err)
	}
	out := ds.Filter(func(_ int, r dataset.Row) bool {
		return !dataset.IsNull(r[j]) && re.MatchString(dataset.Format(r[j]))
	})
	return out, ds.Len() - out.Len(), nil
}

// FilterByAllowed keeps rows whose rendered value is one of allowed.
func FilterByAllowed(ds *dataset.Dataset, column string, allowed []string) (*dataset.Dataset, int, error) {
	j, err := ds.Index(column)
	if err != nil {
		return nil, 0, fmt.Errorf("allowed set: %w", err)
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	out := ds.Filter(func(_ int, r dataset.Row) bool {
		if dataset.IsNull(r[j]) {
			return false
		}
		_, ok := set[dataset.Format(r[j])]
		return ok
	})
	return out, ds.Len() - out.Len(), nil
}

func inRange(v any, min, max float64) bool {
	f, ok := dataset.ToFloat(v)
	return ok && f >= min && f <= max
}

func columnOfKind(ds *dataset.Dataset, op, column string, kind dataset.Kind) (int, error) {
	j, err := ds.Index(column)
	if err != nil {
		return -1, fmt.Errorf("%s: %w", op, err)
	}
	if spec := ds.Columns()[j]; spec.Kind != kind {
		return -1, dataset.Unsupported(op, column, spec.Kind)
	}
	return j, nil
}
