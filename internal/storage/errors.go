package storage

import "errors"

var (
	// ErrPageFull is returned when appending to a page or page-set with no free slot.
	ErrPageFull = errors.New("storage: page full")

	// ErrOutOfRange is returned when reading a slot at or beyond the fill cursor.
	ErrOutOfRange = errors.New("storage: slot out of range")

	// ErrUnknownRID is returned when the page directory has no entry for a RID.
	ErrUnknownRID = errors.New("storage: unknown rid")

	// ErrUnknownPageSet is returned when a location names a page-set the range does not hold.
	ErrUnknownPageSet = errors.New("storage: unknown page set")

	errInvalidHeader = errors.New("storage: invalid page file header")
	errShortPage     = errors.New("storage: page buffer too small")
)
