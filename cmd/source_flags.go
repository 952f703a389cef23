package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
	"github.com/KaramelBytes/tabaudit-cli/internal/utils"
)

// sourceFlags are the loading options shared by run, profile and outliers.
type sourceFlags struct {
	table      string
	query      string
	sheetName  string
	sheetIndex int
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	nulls      []string
	textCols   []string
	dateCols   []string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.table, "table", "", "database table to load (SQLite file or --dsn)")
	f.StringVar(&s.query, "query", "", "SQL query to load instead of a table")
	f.StringVar(&s.sheetName, "sheet", "", "XLSX: sheet name to load")
	f.IntVar(&s.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet not provided)")
	f.StringVar(&s.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed from extension if omitted)")
	f.StringVar(&s.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	f.StringVar(&s.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	f.IntVar(&s.maxRows, "max-rows", 0, "maximum rows to load (0 = config or unlimited)")
	f.StringSliceVar(&s.nulls, "null-markers", nil, "cell values treated as missing (overrides config)")
	f.StringSliceVar(&s.textCols, "text-columns", nil, "columns loaded as text without inference")
	f.StringSliceVar(&s.dateCols, "date-columns", nil, "columns parsed as dates while loading")
}

// source builds a Source from an optional file argument and the flags. Without a file, --table or
// --query selects from the postgres DSN.
func (s *sourceFlags) source(path string) (loader.Source, error) {
	var src loader.Source
	switch {
	case path != "":
		src = loader.FileSource(path)
		if src.Kind != loader.SourceSQLite && (s.table != "" || s.query != "") {
			return src, fmt.Errorf("--table and --query need a SQLite file or --dsn, not %s", path)
		}
	case s.table != "" || s.query != "":
		src = loader.Source{Kind: loader.SourcePostgres}
	default:
		return src, fmt.Errorf("provide a file, or --table/--query with --dsn")
	}
	if err := s.apply(&src); err != nil {
		return src, err
	}
	return src, nil
}

// apply copies flag values onto src, leaving fields the flags do not set untouched.
func (s *sourceFlags) apply(src *loader.Source) error {
	if s.table != "" {
		src.Table = s.table
	}
	if s.query != "" {
		src.Query = s.query
	}
	if s.sheetName != "" {
		src.Sheet = s.sheetName
	}
	if s.sheetIndex > 0 && src.SheetIndex == 0 {
		src.SheetIndex = s.sheetIndex
	}
	if s.delimiter != "" {
		switch s.delimiter {
		case ",", ";", "|":
			src.Delimiter = s.delimiter
		case "\t", "tab", `\t`:
			src.Delimiter = "\t"
		default:
			return fmt.Errorf("unsupported --delimiter: %s", s.delimiter)
		}
	}
	switch strings.ToLower(strings.TrimSpace(s.decimal)) {
	case ",", "comma":
		src.Decimal = ","
	case ".", "dot":
		src.Decimal = "."
	case "":
	default:
		return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", s.decimal)
	}
	switch strings.ToLower(s.thousands) {
	case ",":
		src.Thousands = ","
	case ".":
		src.Thousands = "."
	case "space", " ":
		src.Thousands = " "
	case "":
	default:
		return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", s.thousands)
	}
	if s.maxRows > 0 {
		src.MaxRows = s.maxRows
	}
	if len(s.nulls) > 0 {
		src.NullMarkers = s.nulls
	}
	if len(s.textCols)+len(s.dateCols) > 0 && src.Kinds == nil {
		src.Kinds = map[string]dataset.Kind{}
	}
	for _, c := range s.textCols {
		src.Kinds[c] = dataset.KindText
	}
	for _, c := range s.dateCols {
		src.Kinds[c] = dataset.KindDate
	}
	return nil
}

// withSettings fills source fields left empty from the loaded configuration.
func withSettings(src loader.Source) loader.Source {
	c := settings()
	if src.Kind == loader.SourcePostgres && src.DSN == "" {
		src.DSN = c.PostgresDSN
	}
	if src.MaxRows == 0 {
		src.MaxRows = c.MaxRows
	}
	if len(src.NullMarkers) == 0 && len(c.NullMarkers) > 0 {
		src.NullMarkers = c.NullMarkers
	}
	return src
}

// emit writes body to path, or to the command's stdout when path is empty.
func emit(cmd *cobra.Command, path string, body []byte, what string) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	if err := utils.SafeWriteFile(path, body); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s to %s\n", what, path)
	return nil
}

func exportCSV(cmd *cobra.Command, path string, ds *dataset.Dataset) error {
	var buf bytes.Buffer
	if err := loader.WriteCSV(&buf, ds); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return emit(cmd, path, buf.Bytes(), "cleaned dataset")
}
