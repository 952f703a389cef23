package loader

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// OpenPostgres connects to PostgreSQL with a lib/pq style DSN or URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database file (":memory:" for an in-memory database).
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ServerVersion runs a trivial version query to confirm the connection works.
func ServerVersion(ctx context.Context, db *gorm.DB) (string, error) {
	q := "SELECT version()"
	if db.Dialector.Name() == "sqlite" {
		q = "SELECT sqlite_version()"
	}
	var v string
	if err := db.WithContext(ctx).Raw(q).Row().Scan(&v); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return v, nil
}

// LoadTable reads every row of table (optionally schema-qualified).
func LoadTable(ctx context.Context, db *gorm.DB, table string, maxRows int) (*dataset.Dataset, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	q := db.WithContext(ctx).Table(table)
	if maxRows > 0 {
		q = q.Limit(maxRows)
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows, 0)
}

// LoadSQL runs query and reads its result set.
func LoadSQL(ctx context.Context, db *gorm.DB, query string, args ...any) (*dataset.Dataset, error) {
	return LoadQuery(ctx, db, query, 0, args...)
}

// LoadQuery runs query and reads at most maxRows rows of its result (all when maxRows <= 0).
func LoadQuery(ctx context.Context, db *gorm.DB, query string, maxRows int, args ...any) (*dataset.Dataset, error) {
	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, maxRows)
}

func scanRows(rows *sql.Rows, maxRows int) (*dataset.Dataset, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	ncol := len(types)
	var raw []dataset.Row
	for rows.Next() {
		if maxRows > 0 && len(raw) == maxRows {
			break
		}
		values := make([]any, ncol)
		ptrs := make([]any, ncol)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(raw), err)
		}
		raw = append(raw, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	cols := make([]dataset.ColumnSpec, ncol)
	names := make([]string, ncol)
	for j, ct := range types {
		names[j] = ct.Name()
	}
	names = uniqueNames(names)
	for j, ct := range types {
		kind, ok := kindFromDatabaseType(ct.DatabaseTypeName())
		if !ok {
			kind = kindFromValues(raw, j)
		}
		nullable, known := ct.Nullable()
		cols[j] = dataset.ColumnSpec{Name: names[j], Kind: kind, Nullable: nullable || !known}
		for _, r := range raw {
			r[j] = normalizeValue(r[j], kind)
		}
	}
	return dataset.New(cols, raw)
}

// kindFromDatabaseType maps a driver type name to a column kind. ok is false when the name gives
// no answer, as with SQLite expressions.
func kindFromDatabaseType(name string) (dataset.Kind, bool) {
	n := strings.ToUpper(name)
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = n[:i]
	}
	switch n {
	case "":
		return "", false
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "MEDIUMINT",
		"SERIAL", "BIGSERIAL", "NUMERIC", "DECIMAL", "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE",
		"DOUBLE PRECISION":
		return dataset.KindNumeric, true
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return dataset.KindDate, true
	case "UUID":
		return dataset.KindID, true
	default:
		return dataset.KindText, true
	}
}

func kindFromValues(rows []dataset.Row, j int) dataset.Kind {
	kind := dataset.Kind("")
	for _, r := range rows {
		var k dataset.Kind
		switch r[j].(type) {
		case nil:
			continue
		case int64, int32, int, float64, float32:
			k = dataset.KindNumeric
		case time.Time:
			k = dataset.KindDate
		default:
			return dataset.KindText
		}
		if kind != "" && kind != k {
			return dataset.KindText
		}
		kind = k
	}
	if kind == "" {
		return dataset.KindText
	}
	return kind
}

// normalizeValue brings driver values into the dataset cell domain.
func normalizeValue(v any, kind dataset.Kind) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(x)
	case int32:
		v = int64(x)
	case int:
		v = int64(x)
	case float32:
		v = float64(x)
	}
	switch kind {
	case dataset.KindNumeric:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
			return nil
		}
	case dataset.KindDate:
		if s, ok := v.(string); ok {
			if t, ok := parseTimeMaybe(s); ok {
				return t
			}
			return nil
		}
	case dataset.KindText, dataset.KindID:
		if _, ok := v.(string); !ok {
			return dataset.Format(v)
		}
	}
	return v
}
