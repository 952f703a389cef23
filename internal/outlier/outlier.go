// Package outlier flags unusual values in numeric columns with two independent methods.
//
// The z-score method measures distance from the column mean in population standard deviations
// and assumes the column is roughly normal. The IQR method uses Tukey fences around the first and
// third quartiles and makes no distributional assumption. Running both gives complementary
// signals; the package reports them side by side and never reconciles disagreements between
// them.
//
// Small samples bound the z-score: with n non-null values no |z| can exceed sqrt(n-1), so a
// threshold of 3.0 cannot flag anything in a column of ten or fewer values.
//
// Both methods are read-only analyses. Row identifiers in results are dataset row ids.
package outlier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// ErrInvalidParameter indicates a negative threshold or multiplier.
var ErrInvalidParameter = errors.New("invalid outlier parameter")

const (
	DefaultZThreshold    = 3.0
	DefaultIQRMultiplier = 1.5
)

// ZScoreResult is the z-score outcome for one column.
type ZScoreResult struct {
	Column    string  `json:"column" yaml:"column"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Std       float64 `json:"std" yaml:"std"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	NonNull   int     `json:"non_null" yaml:"non_null"`
	MaxAbsZ   float64 `json:"max_abs_z" yaml:"max_abs_z"`
	Rows      []int   `json:"rows" yaml:"rows"`
	Empty     bool    `json:"empty" yaml:"empty"`
}

// Count returns the number of flagged rows.
func (r ZScoreResult) Count() int { return len(r.Rows) }

// IQRResult is the interquartile-range outcome for one column.
type IQRResult struct {
	Column     string  `json:"column" yaml:"column"`
	Q1         float64 `json:"q1" yaml:"q1"`
	Median     float64 `json:"median" yaml:"median"`
	Q3         float64 `json:"q3" yaml:"q3"`
	IQR        float64 `json:"iqr" yaml:"iqr"`
	Lower      float64 `json:"lower" yaml:"lower"`
	Upper      float64 `json:"upper" yaml:"upper"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	NonNull    int     `json:"non_null" yaml:"non_null"`
	Percent    float64 `json:"percent" yaml:"percent"`
	Rows       []int   `json:"rows" yaml:"rows"`
	Empty      bool    `json:"empty" yaml:"empty"`
}

// Count returns the number of flagged rows.
func (r IQRResult) Count() int { return len(r.Rows) }

// ZScore flags values whose absolute z-score exceeds threshold. A constant column flags nothing.
func ZScore(ds *dataset.Dataset, columns []string, threshold float64) (map[string]ZScoreResult, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: z-score threshold %v", ErrInvalidParameter, threshold)
	}
	cols, err := numericColumns(ds, "z-score", columns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ZScoreResult, len(cols))
	for _, c := range cols {
		vals, ids := c.values(ds)
		res := ZScoreResult{Column: c.name, Threshold: threshold, NonNull: len(vals), Rows: []int{}}
		if len(vals) == 0 {
			res.Mean, res.Std, res.Empty = math.NaN(), math.NaN(), true
			out[c.name] = res
			continue
		}
		res.Mean, _ = stats.Mean(vals)
		res.Std, _ = stats.StandardDeviationPopulation(vals)
		lo, _ := stats.Min(vals)
		hi, _ := stats.Max(vals)
		if lo == hi || res.Std == 0 {
			res.Std = 0
			out[c.name] = res
			continue
		}
		for k, v := range vals {
			z := math.Abs(v-res.Mean) / res.Std
			if z > res.MaxAbsZ {
				res.MaxAbsZ = z
			}
			if z > threshold {
				res.Rows = append(res.Rows, ids[k])
			}
		}
		out[c.name] = res
	}
	return out, nil
}

// IQR flags values strictly outside [Q1 - multiplier*IQR, Q3 + multiplier*IQR]. Quartiles use
// linear interpolation between order statistics.
func IQR(ds *dataset.Dataset, columns []string, multiplier float64) (map[string]IQRResult, error) {
	if multiplier < 0 || math.IsNaN(multiplier) {
		return nil, fmt.Errorf("%w: IQR multiplier %v", ErrInvalidParameter, multiplier)
	}
	cols, err := numericColumns(ds, "iqr", columns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]IQRResult, len(cols))
	for _, c := range cols {
		vals, ids := c.values(ds)
		res := IQRResult{Column: c.name, Multiplier: multiplier, NonNull: len(vals), Rows: []int{}}
		if len(vals) == 0 {
			nan := math.NaN()
			res.Q1, res.Median, res.Q3, res.IQR, res.Lower, res.Upper, res.Percent = nan, nan, nan, nan, nan, nan, nan
			res.Empty = true
			out[c.name] = res
			continue
		}
		sorted := make([]float64, len(vals))
		copy(sorted, vals)
		sort.Float64s(sorted)
		res.Q1 = quantile(sorted, 0.25)
		res.Median = quantile(sorted, 0.5)
		res.Q3 = quantile(sorted, 0.75)
		res.IQR = res.Q3 - res.Q1
		res.Lower = res.Q1 - multiplier*res.IQR
		res.Upper = res.Q3 + multiplier*res.IQR
		for k, v := range vals {
			if v < res.Lower || v > res.Upper {
				res.Rows = append(res.Rows, ids[k])
			}
		}
		res.Percent = float64(len(res.Rows)) / float64(len(vals)) * 100
		out[c.name] = res
	}
	return out, nil
}

type numericColumn struct {
	name string
	idx  int
}

// values returns the non-null numeric values of the column with their row ids.
func (c numericColumn) values(ds *dataset.Dataset) (stats.Float64Data, []int) {
	vals := make(stats.Float64Data, 0, ds.Len())
	ids := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if f, ok := dataset.ToFloat(ds.Row(i)[c.idx]); ok {
			vals = append(vals, f)
			ids = append(ids, ds.RowID(i))
		}
	}
	return vals, ids
}

// numericColumns resolves the requested columns, defaulting to every numeric column.
func numericColumns(ds *dataset.Dataset, op string, names []string) ([]numericColumn, error) {
	specs := ds.Columns()
	if len(names) == 0 {
		var out []numericColumn
		for i, s := range specs {
			if s.Kind == dataset.KindNumeric {
				out = append(out, numericColumn{name: s.Name, idx: i})
			}
		}
		return out, nil
	}
	out := make([]numericColumn, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		i, err := ds.Index(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if specs[i].Kind != dataset.KindNumeric {
			return nil, dataset.Unsupported(op, n, specs[i].Kind)
		}
		out = append(out, numericColumn{name: n, idx: i})
	}
	return out, nil
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	v := sorted[lo] + w*(sorted[hi]-sorted[lo])
	// keep rounding from crossing neighbouring order statistics
	return math.Min(math.Max(v, sorted[lo]), sorted[hi])
}
