package table

import "errors"

var (
	// ErrDuplicateKey is returned when an insert or key-changing update would
	// give two live records the same primary key.
	ErrDuplicateKey = errors.New("table: duplicate key")

	// ErrNotFound is returned when no live record matches a key.
	ErrNotFound = errors.New("table: record not found")

	// ErrColumnCount is returned when a row or projection does not match the
	// number of columns in the schema.
	ErrColumnCount = errors.New("table: column count mismatch")

	// ErrInvalidColumn is returned for a column index outside the schema.
	ErrInvalidColumn = errors.New("table: invalid column")

	// ErrKeyIndex is returned when dropping the primary key index.
	ErrKeyIndex = errors.New("table: primary key index cannot be dropped")

	// ErrMergeInProgress is returned when a range is already being merged.
	ErrMergeInProgress = errors.New("table: merge already in progress")
)
