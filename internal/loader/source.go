package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// SourceKind names where a dataset comes from.
type SourceKind string

const (
	SourceCSV      SourceKind = "csv"
	SourceXLSX     SourceKind = "xlsx"
	SourcePostgres SourceKind = "postgres"
	SourceSQLite   SourceKind = "sqlite"
)

// ErrUnsupportedSource is returned for an unknown source kind.
var ErrUnsupportedSource = errors.New("unsupported source")

// Source describes one dataset to load.
type Source struct {
	Kind SourceKind `mapstructure:"kind" yaml:"kind" json:"kind"`
	// Path is the file for csv, xlsx and sqlite sources.
	Path string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	// DSN is the postgres connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty" json:"-"`
	// Table or Query selects rows from a database source. Query wins when both are set.
	Table      string `mapstructure:"table" yaml:"table,omitempty" json:"table,omitempty"`
	Query      string `mapstructure:"query" yaml:"query,omitempty" json:"query,omitempty"`
	Sheet      string `mapstructure:"sheet" yaml:"sheet,omitempty" json:"sheet,omitempty"`
	SheetIndex int    `mapstructure:"sheet_index" yaml:"sheet_index,omitempty" json:"sheet_index,omitempty"`
	Delimiter  string `mapstructure:"delimiter" yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	// Decimal is the decimal separator for locale-formatted numbers ("," or ".").
	Decimal     string                  `mapstructure:"decimal" yaml:"decimal,omitempty" json:"decimal,omitempty"`
	Thousands   string                  `mapstructure:"thousands" yaml:"thousands,omitempty" json:"thousands,omitempty"`
	NullMarkers []string                `mapstructure:"null_markers" yaml:"null_markers,omitempty" json:"null_markers,omitempty"`
	Kinds       map[string]dataset.Kind `mapstructure:"kinds" yaml:"kinds,omitempty" json:"kinds,omitempty"`
	MaxRows     int                     `mapstructure:"max_rows" yaml:"max_rows,omitempty" json:"max_rows,omitempty"`
}

// FileSource picks the source kind for a local file from its extension.
func FileSource(path string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return Source{Kind: SourceXLSX, Path: path}
	case ".db", ".sqlite", ".sqlite3":
		return Source{Kind: SourceSQLite, Path: path}
	default:
		return Source{Kind: SourceCSV, Path: path}
	}
}

// Name is a short human label for reports.
func (s Source) Name() string {
	switch {
	case s.Path != "" && s.Table != "":
		return filepath.Base(s.Path) + ":" + s.Table
	case s.Path != "":
		return filepath.Base(s.Path)
	case s.Table != "":
		return s.Table
	case s.Query != "":
		return "query"
	}
	return string(s.Kind)
}

// Check validates that the source carries what its kind needs.
func (s Source) Check() error {
	switch s.Kind {
	case SourceCSV, SourceXLSX:
		if s.Path == "" {
			return fmt.Errorf("%s source requires a path", s.Kind)
		}
	case SourceSQLite:
		if s.Path == "" {
			return fmt.Errorf("sqlite source requires a path")
		}
		if s.Table == "" && s.Query == "" {
			return fmt.Errorf("sqlite source requires a table or query")
		}
	case SourcePostgres:
		if s.DSN == "" {
			return fmt.Errorf("postgres source requires a dsn")
		}
		if s.Table == "" && s.Query == "" {
			return fmt.Errorf("postgres source requires a table or query")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSource, s.Kind)
	}
	delim := s.Delimiter
	if delim == `\t` {
		delim = "\t"
	}
	if len([]rune(delim)) > 1 || len([]rune(s.Decimal)) > 1 || len([]rune(s.Thousands)) > 1 {
		return fmt.Errorf("delimiter and separators must be single characters")
	}
	return nil
}

func (s Source) csvOptions() CSVOptions {
	opt := CSVOptions{NullMarkers: s.NullMarkers, MaxRows: s.MaxRows, Kinds: s.Kinds}
	opt.Delimiter = firstRune(s.Delimiter)
	if s.Delimiter == `\t` {
		opt.Delimiter = '\t'
	}
	opt.DecimalSeparator = firstRune(s.Decimal)
	opt.ThousandsSeparator = firstRune(s.Thousands)
	return opt
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// Load reads the dataset a Source describes.
func Load(ctx context.Context, src Source, log *zap.Logger) (*dataset.Dataset, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := src.Check(); err != nil {
		return nil, err
	}
	var (
		ds  *dataset.Dataset
		err error
	)
	switch src.Kind {
	case SourceCSV:
		ds, err = LoadCSV(src.Path, src.csvOptions())
	case SourceXLSX:
		ds, err = LoadXLSX(src.Path, src.Sheet, src.SheetIndex, src.csvOptions())
	case SourceSQLite, SourcePostgres:
		ds, err = loadDatabase(ctx, src)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	log.Debug("dataset loaded",
		zap.String("source", src.Name()),
		zap.String("kind", string(src.Kind)),
		zap.Int("rows", ds.Len()),
		zap.Int("columns", len(ds.Columns())),
	)
	return ds, nil
}

func loadDatabase(ctx context.Context, src Source) (*dataset.Dataset, error) {
	open := OpenSQLite
	target := src.Path
	if src.Kind == SourcePostgres {
		open, target = OpenPostgres, src.DSN
	}
	db, err := open(target)
	if err != nil {
		return nil, err
	}
	defer Close(db)
	if src.Query != "" {
		return LoadQuery(ctx, db, src.Query, src.MaxRows)
	}
	return LoadTable(ctx, db, src.Table, src.MaxRows)
}

// WriteCSV writes ds with a header row. Nulls become empty fields.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(ds.Columns()))
	for i := 0; i < ds.Len(); i++ {
		for j, v := range ds.Row(i) {
			rec[j] = dataset.Format(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
