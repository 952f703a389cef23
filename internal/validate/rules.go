package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// RuleType names the predicate a Rule applies.
type RuleType string

const (
	RuleNumericRange RuleType = "numeric_range"
	RuleDateRange    RuleType = "date_range"
	RuleGeoBox       RuleType = "geo_box"
	RulePattern      RuleType = "pattern"
	RuleAllowed      RuleType = "allowed"
)

// Rule is a declarative validation rule. Rows violating it are dropped.
// Unset Min/Max (or MinDate/MaxDate) leave that side unbounded.
type Rule struct {
	Name      string   `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	Type      RuleType `mapstructure:"type" yaml:"type" json:"type"`
	Column    string   `mapstructure:"column" yaml:"column,omitempty" json:"column,omitempty"`
	LatColumn string   `mapstructure:"lat_column" yaml:"lat_column,omitempty" json:"lat_column,omitempty"`
	LonColumn string   `mapstructure:"lon_column" yaml:"lon_column,omitempty" json:"lon_column,omitempty"`
	Min       *float64 `mapstructure:"min" yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `mapstructure:"max" yaml:"max,omitempty" json:"max,omitempty"`
	MinDate   string   `mapstructure:"min_date" yaml:"min_date,omitempty" json:"min_date,omitempty"`
	MaxDate   string   `mapstructure:"max_date" yaml:"max_date,omitempty" json:"max_date,omitempty"`
	Box       *Box     `mapstructure:"box" yaml:"box,omitempty" json:"box,omitempty"`
	Pattern   string   `mapstructure:"pattern" yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Allowed   []string `mapstructure:"allowed" yaml:"allowed,omitempty" json:"allowed,omitempty"`
}

// RuleResult is the outcome of one rule.
type RuleResult struct {
	Name    string   `json:"name" yaml:"name"`
	Type    RuleType `json:"type" yaml:"type"`
	Dropped int      `json:"dropped" yaml:"dropped"`
}

// Report summarizes the validation stage.
type Report struct {
	Rules      []RuleResult `json:"rules" yaml:"rules"`
	RowsBefore int          `json:"rows_before" yaml:"rows_before"`
	RowsAfter  int          `json:"rows_after" yaml:"rows_after"`
}

// Dropped returns the total rows dropped across rules.
func (r *Report) Dropped() int { return r.RowsBefore - r.RowsAfter }

// Float is a convenience for building rules in code.
func Float(v float64) *float64 { return &v }

// Label returns Name, or a generated label when Name is empty.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Type == RuleGeoBox {
		return fmt.Sprintf("%s(%s,%s)", r.Type, r.LatColumn, r.LonColumn)
	}
	return fmt.Sprintf("%s(%s)", r.Type, r.Column)
}

// Check validates the rule definition.
func (r Rule) Check() error {
	switch r.Type {
	case RuleNumericRange:
		if r.Column == "" {
			return fmt.Errorf("rule %s: column is required", r.Label())
		}
		lo, hi := bounds(r.Min, r.Max)
		if lo > hi {
			return fmt.Errorf("rule %s: min %v greater than max %v", r.Label(), lo, hi)
		}
	case RuleDateRange:
		if r.Column == "" {
			return fmt.Errorf("rule %s: column is required", r.Label())
		}
		lo, hi, err := r.dates()
		if err != nil {
			return err
		}
		if lo.After(hi) {
			return fmt.Errorf("rule %s: min_date after max_date", r.Label())
		}
	case RuleGeoBox:
		if r.LatColumn == "" || r.LonColumn == "" {
			return fmt.Errorf("rule %s: lat_column and lon_column are required", r.Label())
		}
		if r.Box == nil {
			return fmt.Errorf("rule %s: box is required", r.Label())
		}
		if r.Box.MinLat > r.Box.MaxLat || r.Box.MinLon > r.Box.MaxLon {
			return fmt.Errorf("rule %s: box bounds are inverted", r.Label())
		}
	case RulePattern:
		if r.Column == "" {
			return fmt.Errorf("rule %s: column is required", r.Label())
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("rule %s: %w", r.Label(), err)
		}
	case RuleAllowed:
		if r.Column == "" {
			return fmt.Errorf("rule %s: column is required", r.Label())
		}
		if len(r.Allowed) == 0 {
			return fmt.Errorf("rule %s: allowed set is empty", r.Label())
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}

// Filter applies the rule to ds.
func (r Rule) Filter(ds *dataset.Dataset) (*dataset.Dataset, int, error) {
	if err := r.Check(); err != nil {
		return nil, 0, err
	}
	switch r.Type {
	case RuleNumericRange:
		lo, hi := bounds(r.Min, r.Max)
		return FilterByNumericRange(ds, r.Column, lo, hi)
	case RuleDateRange:
		lo, hi, _ := r.dates()
		return FilterByDateRange(ds, r.Column, lo, hi)
	case RuleGeoBox:
		return FilterByGeoBoundingBox(ds, r.LatColumn, r.LonColumn, *r.Box)
	case RulePattern:
		return FilterByPattern(ds, r.Column, regexp.MustCompile(r.Pattern))
	case RuleAllowed:
		return FilterByAllowed(ds, r.Column, r.Allowed)
	}
	return nil, 0, errors.New("unreachable")
}

// Apply runs rules in order, each on the output of the previous one.
func Apply(ds *dataset.Dataset, rules []Rule) (*dataset.Dataset, *Report, error) {
	rep := &Report{RowsBefore: ds.Len()}
	out := ds
	for _, r := range rules {
		next, dropped, err := r.Filter(out)
		if err != nil {
			return nil, nil, err
		}
		rep.Rules = append(rep.Rules, RuleResult{Name: r.Label(), Type: r.Type, Dropped: dropped})
		out = next
	}
	rep.RowsAfter = out.Len()
	return out, rep, nil
}

func bounds(min, max *float64) (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	}
	return lo, hi
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func (r Rule) dates() (time.Time, time.Time, error) {
	lo := time.Time{}
	hi := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	var err error
	if r.MinDate != "" {
		if lo, err = parseBound(r.MinDate); err != nil {
			return lo, hi, fmt.Errorf("rule %s: min_date: %w", r.Label(), err)
		}
	}
	if r.MaxDate != "" {
		if hi, err = parseBound(r.MaxDate); err != nil {
			return lo, hi, fmt.Errorf("rule %s: max_date: %w", r.Label(), err)
		}
	}
	return lo, hi, nil
}

func parseBound(s string) (time.Time, error) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}
