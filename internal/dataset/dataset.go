// Package dataset holds the immutable tabular value every pipeline stage consumes and produces.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a column.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindDate    Kind = "date"
	KindText    Kind = "text"
	KindID      Kind = "id"
)

// ColumnSpec describes one column.
type ColumnSpec struct {
	Name     string `json:"name" yaml:"name"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// Row holds cell values in column order. A nil cell is null.
type Row []any

// Dataset is an ordered set of rows sharing one column set. It is never mutated after creation:
// every operation returns a new Dataset. Each row carries a stable id assigned at creation.
type Dataset struct {
	cols  []ColumnSpec
	index map[string]int
	rows  []Row
	ids   []int
}

// New builds a Dataset from column specs and rows. Rows are copied.
func New(columns []ColumnSpec, rows []Row) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		index[c.Name] = i
	}
	out := make([]Row, len(rows))
	ids := make([]int, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(columns))
		}
		cp := make(Row, len(r))
		copy(cp, r)
		out[i] = cp
		ids[i] = i
	}
	cols := make([]ColumnSpec, len(columns))
	copy(cols, columns)
	return &Dataset{cols: cols, index: index, rows: out, ids: ids}, nil
}

// MustNew is New that panics on error; intended for fixtures.
func MustNew(columns []ColumnSpec, rows []Row) *Dataset {
	ds, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return ds
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Columns returns a copy of the column specs.
func (d *Dataset) Columns() []ColumnSpec {
	cp := make([]ColumnSpec, len(d.cols))
	copy(cp, d.cols)
	return cp
}

// ColumnNames returns column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.Name
	}
	return names
}

// Row returns the i-th row. Callers must not modify it.
func (d *Dataset) Row(i int) Row { return d.rows[i] }

// RowID returns the stable identifier of the i-th row.
func (d *Dataset) RowID(i int) int { return d.ids[i] }

// Index returns the position of a column.
func (d *Dataset) Index(name string) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return -1, NotFound("", name)
	}
	return i, nil
}

// Lookup resolves several column names at once; the first unknown name fails.
func (d *Dataset) Lookup(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, err := d.Index(n)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Spec returns the column spec for name.
func (d *Dataset) Spec(name string) (ColumnSpec, error) {
	i, err := d.Index(name)
	if err != nil {
		return ColumnSpec{}, err
	}
	return d.cols[i], nil
}

// Value returns the cell at row i for column name.
func (d *Dataset) Value(i int, name string) (any, error) {
	j, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	return d.rows[i][j], nil
}

// Column returns a copy of all values in the named column.
func (d *Dataset) Column(name string) ([]any, error) {
	j, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Filter returns a Dataset with the rows for which keep reports true. Row ids are preserved.
// Rows are shared with the receiver; neither side ever writes to them.
func (d *Dataset) Filter(keep func(i int, row Row) bool) *Dataset {
	out := &Dataset{cols: d.cols, index: d.index}
	for i, r := range d.rows {
		if keep(i, r) {
			out.rows = append(out.rows, r)
			out.ids = append(out.ids, d.ids[i])
		}
	}
	return out
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > len(d.rows) {
		n = len(d.rows)
	}
	if n < 0 {
		n = 0
	}
	return &Dataset{cols: d.cols, index: d.index, rows: d.rows[:n:n], ids: d.ids[:n:n]}
}

// WithColumn returns a Dataset where the named column holds values and has the given kind.
func (d *Dataset) WithColumn(name string, kind Kind, values []any) (*Dataset, error) {
	j, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	if len(values) != len(d.rows) {
		return nil, fmt.Errorf("column %q: got %d values for %d rows", name, len(values), len(d.rows))
	}
	cols := make([]ColumnSpec, len(d.cols))
	copy(cols, d.cols)
	cols[j].Kind = kind
	rows := make([]Row, len(d.rows))
	for i, r := range d.rows {
		cp := make(Row, len(r))
		copy(cp, r)
		cp[j] = values[i]
		rows[i] = cp
	}
	ids := make([]int, len(d.ids))
	copy(ids, d.ids)
	return &Dataset{cols: cols, index: d.index, rows: rows, ids: ids}, nil
}

// IsNull reports whether a cell is null. NaN floats count as null.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// ToFloat returns the numeric view of a cell.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// Format renders a cell as text. Null renders as the empty string.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
