package outlier

import (
	"sort"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// Options selects columns and parameters for Detect.
type Options struct {
	// Columns to analyze; empty means every numeric column.
	Columns       []string `mapstructure:"columns" yaml:"columns,omitempty" json:"columns,omitempty"`
	ZThreshold    float64  `mapstructure:"z_threshold" yaml:"z_threshold" json:"z_threshold"`
	IQRMultiplier float64  `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier" json:"iqr_multiplier"`
}

// DefaultOptions returns threshold 3.0 and multiplier 1.5 over all numeric columns.
func DefaultOptions() Options {
	return Options{ZThreshold: DefaultZThreshold, IQRMultiplier: DefaultIQRMultiplier}
}

// ColumnReport places both methods' results for one column side by side.
type ColumnReport struct {
	Column  string       `json:"column" yaml:"column"`
	ZScore  ZScoreResult `json:"zscore" yaml:"zscore"`
	IQR     IQRResult    `json:"iqr" yaml:"iqr"`
	// Rows is the sorted union of both methods' flagged rows. It is a listing, not a verdict.
	Rows []int `json:"rows" yaml:"rows"`
}

// ZScoreCount returns the number of rows flagged by the z-score method.
func (c ColumnReport) ZScoreCount() int { return c.ZScore.Count() }

// IQRCount returns the number of rows flagged by the IQR method.
func (c ColumnReport) IQRCount() int { return c.IQR.Count() }

// Agreed returns rows flagged by both methods.
func (c ColumnReport) Agreed() []int {
	in := make(map[int]struct{}, len(c.ZScore.Rows))
	for _, r := range c.ZScore.Rows {
		in[r] = struct{}{}
	}
	out := []int{}
	for _, r := range c.IQR.Rows {
		if _, ok := in[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Report is the outcome of running both detectors.
type Report struct {
	ZThreshold    float64        `json:"z_threshold" yaml:"z_threshold"`
	IQRMultiplier float64        `json:"iqr_multiplier" yaml:"iqr_multiplier"`
	Columns       []ColumnReport `json:"columns" yaml:"columns"`
}

// Column returns the report for name.
func (r *Report) Column(name string) (ColumnReport, bool) {
	for _, c := range r.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnReport{}, false
}

// Detect runs the z-score and IQR methods over the selected columns.
func Detect(ds *dataset.Dataset, opt Options) (*Report, error) {
	z, err := ZScore(ds, opt.Columns, opt.ZThreshold)
	if err != nil {
		return nil, err
	}
	q, err := IQR(ds, opt.Columns, opt.IQRMultiplier)
	if err != nil {
		return nil, err
	}
	cols, _ := numericColumns(ds, "detect", opt.Columns)
	rep := &Report{ZThreshold: opt.ZThreshold, IQRMultiplier: opt.IQRMultiplier}
	for _, c := range cols {
		cr := ColumnReport{Column: c.name, ZScore: z[c.name], IQR: q[c.name]}
		cr.Rows = union(cr.ZScore.Rows, cr.IQR.Rows)
		rep.Columns = append(rep.Columns, cr)
	}
	return rep, nil
}

func union(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	out := []int{}
	for _, s := range [][]int{a, b} {
		for _, v := range s {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}
