// Package loader reads tabular sources into datasets. It never cleans or drops rows: that is the
// job of the pipeline stages.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// DefaultNullMarkers are the cell texts read as null.
var DefaultNullMarkers = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// CSVOptions controls parsing of delimited and spreadsheet sources.
type CSVOptions struct {
	// Delimiter for CSV. If 0, auto-detects from the file extension (',' ';' '\t').
	Delimiter rune
	// NullMarkers replaces DefaultNullMarkers when non-empty.
	NullMarkers []string
	// MaxRows limits rows read; 0 means all.
	MaxRows int
	// DecimalSeparator and ThousandsSeparator enable locale-aware numbers (e.g. ',' and '.').
	// When DecimalSeparator is 0 only plain Go float syntax is numeric.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Kinds forces the kind of named columns instead of inferring it.
	Kinds map[string]dataset.Kind
}

// LoadCSV reads a delimited file with a header row.
func LoadCSV(path string, opt CSVOptions) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	return ReadCSV(f, opt)
}

// ReadCSV reads delimited records from r. The first record is the header.
func ReadCSV(r io.Reader, opt CSVOptions) (*dataset.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return dataset.New(nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	var records [][]string
	for opt.MaxRows <= 0 || len(records) < opt.MaxRows {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return fromRecords(header, records, opt)
}

func sniffDelimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return '\t'
	case ".ssv":
		return ';'
	default:
		return ','
	}
}

// fromRecords turns header and string records into a typed dataset. Short rows are padded with
// nulls and long rows truncated to the header width.
func fromRecords(header []string, records [][]string, opt CSVOptions) (*dataset.Dataset, error) {
	names := uniqueNames(header)
	ncol := len(names)
	nulls := opt.NullMarkers
	if len(nulls) == 0 {
		nulls = DefaultNullMarkers
	}
	isNull := make(map[string]bool, len(nulls))
	for _, m := range nulls {
		isNull[m] = true
	}

	cells := make([][]*string, len(records))
	for i, rec := range records {
		row := make([]*string, ncol)
		for j := 0; j < ncol && j < len(rec); j++ {
			v := strings.TrimSpace(rec[j])
			if isNull[v] {
				continue
			}
			row[j] = &v
		}
		cells[i] = row
	}

	cols := make([]dataset.ColumnSpec, ncol)
	conv := make([]func(string) any, ncol)
	for j, name := range names {
		kind, forced := opt.Kinds[name]
		if !forced {
			kind = inferKind(cells, j, opt)
		}
		cols[j] = dataset.ColumnSpec{Name: name, Kind: kind, Nullable: true}
		conv[j] = converter(cells, j, kind, opt)
	}

	rows := make([]dataset.Row, len(cells))
	for i, rc := range cells {
		row := make(dataset.Row, ncol)
		for j, p := range rc {
			if p != nil {
				row[j] = conv[j](*p)
			}
		}
		rows[i] = row
	}
	return dataset.New(cols, rows)
}

// uniqueNames fills blank headers and disambiguates repeated ones with a numeric suffix.
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		base := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for n := seen[base]; seen[name] > 0; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		seen[base]++
		if name != base {
			seen[name]++
		}
		out[i] = name
	}
	return out
}

func inferKind(cells [][]*string, j int, opt CSVOptions) dataset.Kind {
	seen := false
	for _, row := range cells {
		p := row[j]
		if p == nil {
			continue
		}
		seen = true
		if _, ok := parseNumeric(*p, opt); !ok {
			return dataset.KindText
		}
	}
	if !seen {
		return dataset.KindText
	}
	return dataset.KindNumeric
}

// converter returns the cell conversion for column j. Numeric columns whose values are all whole
// integers load as int64, otherwise float64.
func converter(cells [][]*string, j int, kind dataset.Kind, opt CSVOptions) func(string) any {
	switch kind {
	case dataset.KindNumeric:
	case dataset.KindDate:
		return func(s string) any {
			if t, ok := parseTimeMaybe(s); ok {
				return t
			}
			return nil
		}
	default:
		return func(s string) any { return s }
	}
	integral := true
	for _, row := range cells {
		if p := row[j]; p != nil {
			if _, err := strconv.ParseInt(*p, 10, 64); err != nil {
				integral = false
				break
			}
		}
	}
	if integral {
		return func(s string) any {
			n, _ := strconv.ParseInt(s, 10, 64)
			return n
		}
	}
	return func(s string) any {
		if f, ok := parseNumeric(s, opt); ok {
			return f
		}
		return nil
	}
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "2006-01-02 15:04", "2006-01-02 15:04:05",
		"02-01-2006", "02-01-2006 15:04", "1/2/2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric reads s as a number. Locale separators apply only when configured.
func parseNumeric(s string, opt CSVOptions) (float64, bool) {
	raw := strings.TrimSpace(s)
	if opt.DecimalSeparator != 0 {
		raw = strings.ReplaceAll(raw, " ", "")
		if thou := opt.ThousandsSeparator; thou != 0 && thou != opt.DecimalSeparator {
			raw = strings.ReplaceAll(raw, string(thou), "")
		}
		if opt.DecimalSeparator != '.' {
			raw = strings.ReplaceAll(raw, string(opt.DecimalSeparator), ".")
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
