package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// Options controls descriptive profiling.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopValues limits the category counts kept per text column.
	TopValues int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Robust outlier hint via median absolute deviation. If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		TopValues:        8,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Profile is a markdown-friendly description of a dataset, the equivalent of a shape/info/describe pass.
type Profile struct {
	Name     string          `json:"name" yaml:"name"`
	Rows     int             `json:"rows" yaml:"rows"`
	Cols     []ColumnSummary `json:"columns" yaml:"columns"`
	Samples  [][]string      `json:"samples,omitempty" yaml:"samples,omitempty"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Corr     *CorrMatrix     `json:"correlations,omitempty" yaml:"correlations,omitempty"`
}

// ColumnSummary captures declared kind and statistics per column.
type ColumnSummary struct {
	Name    string       `json:"name" yaml:"name"`
	Kind    dataset.Kind `json:"kind" yaml:"kind"`
	NonNull int          `json:"non_null" yaml:"non_null"`
	Missing int          `json:"missing" yaml:"missing"`
	Unique  int          `json:"unique" yaml:"unique"`
	// Numeric stats
	Min    float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Q25    float64 `json:"q25,omitempty" yaml:"q25,omitempty"`
	Median float64 `json:"median,omitempty" yaml:"median,omitempty"`
	Q75    float64 `json:"q75,omitempty" yaml:"q75,omitempty"`
	Max    float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean   float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std    float64 `json:"std,omitempty" yaml:"std,omitempty"`
	// Robust outliers (MAD)
	OutliersCount    int     `json:"robust_outliers,omitempty" yaml:"robust_outliers,omitempty"`
	OutliersMaxAbsZ  float64 `json:"robust_max_abs_z,omitempty" yaml:"robust_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"robust_threshold,omitempty" yaml:"robust_threshold,omitempty"`
	// Date range
	First time.Time `json:"first,omitempty" yaml:"first,omitempty"`
	Last  time.Time `json:"last,omitempty" yaml:"last,omitempty"`
	// Text top values
	TopValues []CategoryCount `json:"top_values,omitempty" yaml:"top_values,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns" yaml:"columns"`
	Values  [][]float64 `json:"values" yaml:"values"` // row-major, Values[i][j]
}

// Describe profiles every column of ds.
func Describe(name string, ds *dataset.Dataset, opt Options) *Profile {
	specs := ds.Columns()
	ncol := len(specs)
	rep := &Profile{Name: name, Rows: ds.Len()}

	type colAcc struct {
		nonNil int
		miss   int
		// numeric stats via Welford
		n    int
		mean float64
		m2   float64
		min  float64
		max  float64
		nums []float64
		// dates
		first, last time.Time
		// text
		cats map[string]int
	}
	cols := make([]*colAcc, ncol)
	for i := range cols {
		cols[i] = &colAcc{min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int)}
	}
	sampleRows := opt.SampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	topN := opt.TopValues
	if topN <= 0 {
		topN = 8
	}

	// Exact pairwise correlation accumulators with missingness handling.
	type pairAcc struct {
		n     float64
		sumX  float64
		sumY  float64
		sumXX float64
		sumYY float64
		sumXY float64
	}
	pair := make(map[int]*pairAcc) // key = i*ncol + j with i>j

	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		if len(rep.Samples) < sampleRows {
			s := make([]string, ncol)
			for j, v := range row {
				s[j] = dataset.Format(v)
			}
			rep.Samples = append(rep.Samples, s)
		}
		rowNums := make(map[int]float64)
		for j, v := range row {
			c := cols[j]
			if dataset.IsNull(v) {
				c.miss++
				continue
			}
			c.nonNil++
			c.cats[dataset.Format(v)]++
			switch specs[j].Kind {
			case dataset.KindNumeric:
				x, ok := dataset.ToFloat(v)
				if !ok {
					continue
				}
				// Welford update
				c.n++
				if x < c.min {
					c.min = x
				}
				if x > c.max {
					c.max = x
				}
				delta := x - c.mean
				c.mean += delta / float64(c.n)
				c.m2 += delta * (x - c.mean)
				c.nums = append(c.nums, x)
				if opt.Correlations {
					rowNums[j] = x
				}
			case dataset.KindDate:
				if t, ok := v.(time.Time); ok {
					if c.first.IsZero() || t.Before(c.first) {
						c.first = t
					}
					if t.After(c.last) {
						c.last = t
					}
				}
			}
		}
		if opt.Correlations && len(rowNums) >= 2 {
			idxs := make([]int, 0, len(rowNums))
			for j := range rowNums {
				idxs = append(idxs, j)
			}
			sort.Ints(idxs)
			for a := 1; a < len(idxs); a++ {
				j := idxs[a]
				x := rowNums[j]
				for b := 0; b < a; b++ {
					k := idxs[b]
					y := rowNums[k]
					key := j*ncol + k
					pa := pair[key]
					if pa == nil {
						pa = &pairAcc{}
						pair[key] = pa
					}
					pa.n += 1
					pa.sumX += x
					pa.sumY += y
					pa.sumXX += x * x
					pa.sumYY += y * y
					pa.sumXY += x * y
				}
			}
		}
	}

	numCols := []int{}
	rep.Cols = make([]ColumnSummary, 0, ncol)
	for idx, c := range cols {
		s := ColumnSummary{Name: specs[idx].Name, Kind: specs[idx].Kind, NonNull: c.nonNil, Missing: c.miss, Unique: len(c.cats)}
		switch s.Kind {
		case dataset.KindNumeric:
			if c.n == 0 {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %s has no numeric values", s.Name))
				break
			}
			numCols = append(numCols, idx)
			sorted := append([]float64(nil), c.nums...)
			sort.Float64s(sorted)
			s.Min, s.Max, s.Mean = c.min, c.max, c.mean
			s.Q25, s.Median, s.Q75 = quantile(sorted, 0.25), quantile(sorted, 0.5), quantile(sorted, 0.75)
			if c.n > 1 {
				s.Std = math.Sqrt(c.m2 / float64(c.n-1))
			}
			if opt.Outliers && len(sorted) >= 8 {
				median, mad := medianMAD(sorted)
				thr := opt.OutlierThreshold
				if thr <= 0 {
					thr = 3.5
				}
				var cnt int
				maxAbsZ := 0.0
				if mad > 0 {
					for _, v := range sorted {
						az := math.Abs(0.6745 * (v - median) / mad)
						if az > thr {
							cnt++
						}
						if az > maxAbsZ {
							maxAbsZ = az
						}
					}
				}
				s.OutliersCount = cnt
				s.OutliersMaxAbsZ = maxAbsZ
				s.OutlierThreshold = thr
			}
		case dataset.KindDate:
			s.First, s.Last = c.first, c.last
		default:
			tops := make([]CategoryCount, 0, len(c.cats))
			for k, v := range c.cats {
				tops = append(tops, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(tops, func(i, j int) bool {
				if tops[i].Count == tops[j].Count {
					return tops[i].Value < tops[j].Value
				}
				return tops[i].Count > tops[j].Count
			})
			if len(tops) > topN {
				tops = tops[:topN]
			}
			s.TopValues = tops
		}
		if c.nonNil == 0 && ds.Len() > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %s is entirely null", s.Name))
		}
		rep.Cols = append(rep.Cols, s)
	}

	// Build correlation matrix (global, across numeric columns only)
	if opt.Correlations && len(numCols) >= 2 {
		names := make([]string, len(numCols))
		for i, idx := range numCols {
			names[i] = specs[idx].Name
		}
		n := len(numCols)
		mat := make([][]float64, n)
		for i := range mat {
			mat[i] = make([]float64, n)
		}
		for a := 0; a < n; a++ {
			ia := numCols[a]
			for b := 0; b < n; b++ {
				if a == b {
					mat[a][b] = 1
					continue
				}
				ib := numCols[b]
				key := max(ia, ib)*ncol + min(ia, ib)
				pa := pair[key]
				if pa == nil || pa.n < 2 {
					continue
				}
				denom := math.Sqrt((pa.n*pa.sumXX - pa.sumX*pa.sumX) * (pa.n*pa.sumYY - pa.sumY*pa.sumY))
				var r float64
				if denom != 0 {
					r = (pa.n*pa.sumXY - pa.sumX*pa.sumY) / denom
				}
				if r > 1 {
					r = 1
				} else if r < -1 {
					r = -1
				}
				if math.IsNaN(r) || math.IsInf(r, 0) {
					r = 0
				}
				mat[a][b] = r
			}
		}
		rep.Corr = &CorrMatrix{Columns: names, Values: mat}
	}
	return rep
}

// Column returns the summary for name.
func (r *Profile) Column(name string) (ColumnSummary, bool) {
	for _, c := range r.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSummary{}, false
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Shape: %d rows x %d columns\n\n", r.Rows, len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %d / %.1f%%, unique %d)", safeName(c.Name), c.Kind, c.NonNull, c.Missing, missPct, c.Unique))
		switch c.Kind {
		case dataset.KindNumeric:
			if c.NonNull == 0 {
				break
			}
			b.WriteString(fmt.Sprintf(" — min %.4g, 25%% %.4g, 50%% %.4g, 75%% %.4g, max %.4g, mean %.4g, std %.4g",
				c.Min, c.Q25, c.Median, c.Q75, c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; robust outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				if c.OutliersMaxAbsZ > 0 {
					b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", c.OutliersMaxAbsZ))
				}
			}
		case dataset.KindDate:
			if !c.First.IsZero() {
				b.WriteString(fmt.Sprintf(" — from %s to %s", dataset.Format(c.First), dataset.Format(c.Last)))
			}
		default:
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
		}
		b.WriteString("\n")
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		// list top pairs by |r|
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai := math.Abs(pairs[i].R)
			aj := math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		maxp := 10
		if len(pairs) < maxp {
			maxp = len(pairs)
		}
		for i := 0; i < maxp; i++ {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", pairs[i].A, pairs[i].B, pairs[i].R))
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		b.WriteString(TableMarkdown(columnNames(r.Cols), r.Samples))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// TableMarkdown renders rows as a markdown table, truncating long cells.
func TableMarkdown(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| ")
	for i, h := range header {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(safeName(h))
	}
	b.WriteString(" |\n| ")
	for i := range header {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString("---")
	}
	b.WriteString(" |\n")
	for _, row := range rows {
		b.WriteString("| ")
		for i := range header {
			if i > 0 {
				b.WriteString(" | ")
			}
			val := ""
			if i < len(row) {
				val = row[i]
			}
			if len(val) > 80 {
				val = val[:77] + "..."
			}
			b.WriteString(safeVal(val))
		}
		b.WriteString(" |\n")
	}
	return b.String()
}

func columnNames(cols []ColumnSummary) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of sorted values.
func medianMAD(sorted []float64) (median, mad float64) {
	if len(sorted) == 0 {
		return 0, 0
	}
	median = quantile(sorted, 0.5)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
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
	return sorted[lo]*(1-w) + sorted[hi]*w
}
