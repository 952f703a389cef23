// Package coerce converts columns to declared target types. Conversion is total: a cell that
// cannot be converted becomes null and is counted, the row itself always survives.
package coerce

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// Target is a coercion target type.
type Target string

const (
	TargetDate    Target = "date"
	TargetText    Target = "text"
	TargetInteger Target = "integer"
	TargetFloat   Target = "float"
)

// ErrUnsupportedTarget indicates an unknown coercion target.
var ErrUnsupportedTarget = errors.New("unsupported coercion target")

// Spec declares one column conversion.
type Spec struct {
	Column string `mapstructure:"column" yaml:"column" json:"column"`
	Target Target `mapstructure:"target" yaml:"target" json:"target"`
	// Format is a strftime pattern (or Go layout when it has no '%') for date targets.
	Format string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`
}

// Report records per-column coercion failures.
type Report struct {
	Failures  map[string]int    `json:"failures" yaml:"failures"`
	Converted map[string]Target `json:"converted" yaml:"converted"`
}

// Check validates a spec without touching data.
func (s Spec) Check() error {
	if strings.TrimSpace(s.Column) == "" {
		return errors.New("coercion spec: column is required")
	}
	switch s.Target {
	case TargetDate:
		if err := CheckFormat(s.Format); err != nil {
			return err
		}
	case TargetText, TargetInteger, TargetFloat:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedTarget, s.Target)
	}
	return nil
}

// CoerceColumn converts every value of column to target and returns the new dataset along with
// the number of non-null cells that failed to convert.
func CoerceColumn(ds *dataset.Dataset, column string, target Target, format string) (*dataset.Dataset, int, error) {
	vals, err := ds.Column(column)
	if err != nil {
		return nil, 0, fmt.Errorf("coerce: %w", err)
	}
	var (
		conv func(any) (any, bool)
		kind dataset.Kind
	)
	switch target {
	case TargetDate:
		if err := CheckFormat(format); err != nil {
			return nil, 0, fmt.Errorf("coerce %q: %w", column, err)
		}
		conv, kind = func(v any) (any, bool) { return toDate(v, format) }, dataset.KindDate
	case TargetInteger:
		conv, kind = toInteger, dataset.KindNumeric
	case TargetFloat:
		conv, kind = toFloat, dataset.KindNumeric
	case TargetText:
		conv, kind = toText, dataset.KindText
	default:
		return nil, 0, fmt.Errorf("coerce %q: %w: %q", column, ErrUnsupportedTarget, target)
	}

	failures := 0
	out := make([]any, len(vals))
	for i, v := range vals {
		if dataset.IsNull(v) || (target != TargetText && isBlank(v)) {
			continue
		}
		c, ok := conv(v)
		if !ok {
			failures++
			continue
		}
		out[i] = c
	}
	next, err := ds.WithColumn(column, kind, out)
	if err != nil {
		return nil, 0, fmt.Errorf("coerce %q: %w", column, err)
	}
	return next, failures, nil
}

// Apply runs specs in order.
func Apply(ds *dataset.Dataset, specs []Spec) (*dataset.Dataset, *Report, error) {
	rep := &Report{Failures: map[string]int{}, Converted: map[string]Target{}}
	out := ds
	for _, s := range specs {
		next, n, err := CoerceColumn(out, s.Column, s.Target, s.Format)
		if err != nil {
			return nil, nil, err
		}
		out = next
		rep.Failures[s.Column] += n
		rep.Converted[s.Column] = s.Target
	}
	return out, rep, nil
}

// isBlank treats whitespace-only text as absent rather than as a failed conversion.
func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toDate(v any, format string) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, ok := parseDate(strings.TrimSpace(x), format)
		if !ok {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func toInteger(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || !fitsInt64(f) {
			return nil, false
		}
		return int64(f), true
	case float64:
		if !fitsInt64(x) {
			return nil, false
		}
	case float32:
		if !fitsInt64(float64(x)) {
			return nil, false
		}
	case uint64:
		if x > math.MaxInt64 {
			return nil, false
		}
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, false
		}
	case time.Time:
		return nil, false
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, false
	}
	return n, true
}

// fitsInt64 reports whether f truncates to a representable int64. 1<<63 itself is out of range.
func fitsInt64(f float64) bool {
	return !math.IsNaN(f) && f >= -(1<<63) && f < 1<<63
}

func toFloat(v any) (any, bool) {
	if _, ok := v.(time.Time); ok {
		return nil, false
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return nil, false
	}
	return f, true
}

func toText(v any) (any, bool) {
	if t, ok := v.(time.Time); ok {
		return dataset.Format(t), true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return dataset.Format(v), true
	}
	return s, true
}
