// Package quality audits missing values and duplicate rows.
package quality

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// Options controls the audit stage.
type Options struct {
	// Required lists columns that must be non-null; rows missing any are dropped.
	Required []string
	// DuplicateColumns restricts the duplicate comparison; empty means all columns.
	DuplicateColumns []string
	// KeepDuplicates counts duplicates without dropping them.
	KeepDuplicates bool
}

// Report summarizes the audit stage.
type Report struct {
	MissingCounts    map[string]int `json:"missing_counts" yaml:"missing_counts"`
	MissingDropped   int            `json:"missing_dropped" yaml:"missing_dropped"`
	DuplicateCount   int            `json:"duplicate_count" yaml:"duplicate_count"`
	DuplicateDropped int            `json:"duplicate_dropped" yaml:"duplicate_dropped"`
	RowsBefore       int            `json:"rows_before" yaml:"rows_before"`
	RowsAfter        int            `json:"rows_after" yaml:"rows_after"`
}

// AuditMissing counts null values per column. With no columns named, every column is counted.
func AuditMissing(ds *dataset.Dataset, columns ...string) (map[string]int, error) {
	if len(columns) == 0 {
		columns = ds.ColumnNames()
	}
	idx, err := ds.Lookup(columns...)
	if err != nil {
		return nil, fmt.Errorf("audit missing: %w", err)
	}
	out := make(map[string]int, len(columns))
	for k, name := range columns {
		n := 0
		for i := 0; i < ds.Len(); i++ {
			if dataset.IsNull(ds.Row(i)[idx[k]]) {
				n++
			}
		}
		out[name] = n
	}
	return out, nil
}

// DropRowsMissing removes every row with a null in any required column.
func DropRowsMissing(ds *dataset.Dataset, required []string) (*dataset.Dataset, error) {
	idx, err := ds.Lookup(required...)
	if err != nil {
		return nil, fmt.Errorf("drop missing: %w", err)
	}
	return ds.Filter(func(_ int, r dataset.Row) bool {
		for _, j := range idx {
			if dataset.IsNull(r[j]) {
				return false
			}
		}
		return true
	}), nil
}

// CountDuplicates counts rows equal to an earlier row on subset (all columns when empty).
func CountDuplicates(ds *dataset.Dataset, subset ...string) (int, error) {
	dup, err := duplicateMask(ds, subset)
	if err != nil {
		return 0, fmt.Errorf("count duplicates: %w", err)
	}
	n := 0
	for _, d := range dup {
		if d {
			n++
		}
	}
	return n, nil
}

// Duplicates returns the rows that repeat an earlier row.
func Duplicates(ds *dataset.Dataset, subset ...string) (*dataset.Dataset, error) {
	dup, err := duplicateMask(ds, subset)
	if err != nil {
		return nil, fmt.Errorf("duplicates: %w", err)
	}
	return ds.Filter(func(i int, _ dataset.Row) bool { return dup[i] }), nil
}

// DropDuplicates keeps the first occurrence of each distinct row in original order.
func DropDuplicates(ds *dataset.Dataset, subset ...string) (*dataset.Dataset, error) {
	dup, err := duplicateMask(ds, subset)
	if err != nil {
		return nil, fmt.Errorf("drop duplicates: %w", err)
	}
	return ds.Filter(func(i int, _ dataset.Row) bool { return !dup[i] }), nil
}

// Audit counts missing values on the input, then drops rows missing required columns and
// duplicate rows.
func Audit(ds *dataset.Dataset, opt Options) (*dataset.Dataset, *Report, error) {
	rep := &Report{RowsBefore: ds.Len()}
	missing, err := AuditMissing(ds)
	if err != nil {
		return nil, nil, err
	}
	rep.MissingCounts = missing

	out := ds
	if len(opt.Required) > 0 {
		out, err = DropRowsMissing(ds, opt.Required)
		if err != nil {
			return nil, nil, err
		}
		rep.MissingDropped = ds.Len() - out.Len()
	}
	dups, err := CountDuplicates(out, opt.DuplicateColumns...)
	if err != nil {
		return nil, nil, err
	}
	rep.DuplicateCount = dups
	if dups > 0 && !opt.KeepDuplicates {
		out, err = DropDuplicates(out, opt.DuplicateColumns...)
		if err != nil {
			return nil, nil, err
		}
		rep.DuplicateDropped = dups
	}
	rep.RowsAfter = out.Len()
	return out, rep, nil
}

func duplicateMask(ds *dataset.Dataset, subset []string) ([]bool, error) {
	if len(subset) == 0 {
		subset = ds.ColumnNames()
	}
	idx, err := ds.Lookup(subset...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, ds.Len())
	mask := make([]bool, ds.Len())
	var b strings.Builder
	for i := 0; i < ds.Len(); i++ {
		b.Reset()
		r := ds.Row(i)
		for _, j := range idx {
			writeKey(&b, r[j])
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			mask[i] = true
			continue
		}
		seen[key] = struct{}{}
	}
	return mask, nil
}

// writeKey appends a type-tagged encoding of v so that 1 and "1" never collide.
func writeKey(b *strings.Builder, v any) {
	if dataset.IsNull(v) {
		b.WriteString("n\x1f")
		return
	}
	switch x := v.(type) {
	case string:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(x)))
		b.WriteByte(':')
		b.WriteString(x)
	case float64:
		b.WriteString("f")
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case int64:
		b.WriteString("i")
		b.WriteString(strconv.FormatInt(x, 10))
	case bool:
		b.WriteString("b")
		b.WriteString(strconv.FormatBool(x))
	case time.Time:
		b.WriteString("t")
		b.WriteString(x.UTC().Format(time.RFC3339Nano))
	default:
		b.WriteString("x")
		fmt.Fprintf(b, "%#v", v)
	}
	b.WriteByte('\x1f')
}
