package table

import (
	"fmt"

	"github.com/example/lstore/internal/storage"
)

// SelectVersion is Select reading an older version of each match. A
// relativeVersion of 0 is the latest version, -1 the one before it, and so
// on. Versions older than the last merge of the record's range are not
// retained; such requests return the oldest retained version.
func (t *Table) SelectVersion(value int64, column int, projected []bool, relativeVersion int) (*Cursor, error) {
	return t.selectVersion(value, column, projected, clampVersion(relativeVersion))
}

// SumVersion is Sum over the version selected by relativeVersion, with the
// same meaning as in SelectVersion.
func (t *Table) SumVersion(start, end int64, column, relativeVersion int) (int64, error) {
	return t.sumVersion(start, end, column, clampVersion(relativeVersion))
}

// Lineage returns the indirection chain of the record with primary key key,
// newest location first. The last element is the base record; the chain has
// one element per update applied since the range was last merged, plus one.
func (t *Table) Lineage(key int64) ([]storage.Location, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, entry, err := t.resolveKey(key)
	if err != nil {
		return nil, err
	}
	var chain []storage.Location
	err = t.walk(entry.Location, -1, func(loc storage.Location, _ []int64) {
		chain = append(chain, loc)
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// versionRow returns the physical record reached by walking -version steps
// back from loc, stopping early at the base record.
func (t *Table) versionRow(loc storage.Location, version int) ([]int64, error) {
	var row []int64
	err := t.walk(loc, -version, func(_ storage.Location, r []int64) {
		row = r
	})
	return row, err
}

// walk follows indirection pointers from loc, calling fn for each version,
// for at most steps hops (negative means until the base record). A base
// record points at itself. The hop count is bounded by the tail records of
// the range so a corrupt chain cannot loop forever.
func (t *Table) walk(loc storage.Location, steps int, fn func(storage.Location, []int64)) error {
	rng, err := t.rangeFor(loc)
	if err != nil {
		return err
	}
	limit := rng.PendingTail() + 1
	for hop := 0; ; hop++ {
		row, err := t.readPhysical(loc)
		if err != nil {
			return fmt.Errorf("table: lineage at %s: %w", loc, err)
		}
		fn(loc, row)
		prev := storage.UnpackLocation(row[storage.IndirectionColumn])
		if prev == loc || hop == steps {
			return nil
		}
		if hop >= limit {
			return fmt.Errorf("table: lineage from %s exceeds %d hops", loc, limit)
		}
		loc = prev
	}
}

// clampVersion maps a relative version onto the lineage walk. Positive
// versions read as the latest one rather than counting forward from the base
// record.
func clampVersion(v int) int {
	if v > 0 {
		return 0
	}
	return v
}
