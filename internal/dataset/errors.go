package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound indicates a referenced column is absent from the dataset.
	ErrColumnNotFound = errors.New("column not found")
	// ErrUnsupportedColumnType indicates an operation was invoked on a column of the wrong kind.
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	// ErrEmptyColumn marks a statistic requested on a column with no non-null values.
	// Stages record it in reports instead of returning it.
	ErrEmptyColumn = errors.New("column has no non-null values")
)

// ColumnError ties a structural failure to the operation and column that caused it.
type ColumnError struct {
	Op     string
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	if e == nil {
		return "column error"
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: column %q: %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error { return e.Err }

// NotFound builds a ColumnError wrapping ErrColumnNotFound.
func NotFound(op, column string) error {
	return &ColumnError{Op: op, Column: column, Err: ErrColumnNotFound}
}

// Unsupported builds a ColumnError wrapping ErrUnsupportedColumnType with the offending kind.
func Unsupported(op, column string, kind Kind) error {
	return &ColumnError{Op: op, Column: column, Err: fmt.Errorf("%w: %s", ErrUnsupportedColumnType, kind)}
}
