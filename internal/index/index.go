// Package index maps column values to the RIDs of live records.
//
// Every indexed column keeps an ordered B-tree of value buckets; a bucket
// holds the RIDs sharing that value in a roaring bitmap. The primary key
// column is always indexed and unique.
package index

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/btree"
)

const degree = 32

var (
	// ErrDuplicateKey is returned when a unique column already maps the value to another RID.
	ErrDuplicateKey = errors.New("index: duplicate key")

	// ErrKeyColumn is returned when trying to drop the primary key index.
	ErrKeyColumn = errors.New("index: cannot drop primary key index")

	// ErrNotIndexed is returned when mutating a column that has no index.
	ErrNotIndexed = errors.New("index: column not indexed")
)

type bucket struct {
	value int64
	rids  *roaring64.Bitmap
}

func lessBucket(a, b *bucket) bool { return a.value < b.value }

type columnIndex struct {
	unique bool
	tree   *btree.BTreeG[*bucket]
	size   int
}

func newColumnIndex(unique bool) *columnIndex {
	return &columnIndex{unique: unique, tree: btree.NewG(degree, lessBucket)}
}

// Index holds one structure per indexed column of a table. It only ever
// references RIDs, never page memory.
type Index struct {
	mu      sync.RWMutex
	key     int
	columns []*columnIndex
}

// New creates the index set for a table with numColumns columns and the
// primary key at keyColumn.
func New(numColumns, keyColumn int) *Index {
	ix := &Index{key: keyColumn, columns: make([]*columnIndex, numColumns)}
	ix.columns[keyColumn] = newColumnIndex(true)
	return ix
}

// Create adds an empty index for column. Creating an existing index is a no-op.
func (ix *Index) Create(column int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.checkColumn(column); err != nil {
		return err
	}
	if ix.columns[column] == nil {
		ix.columns[column] = newColumnIndex(false)
	}
	return nil
}

// Drop removes the index for column.
func (ix *Index) Drop(column int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.checkColumn(column); err != nil {
		return err
	}
	if column == ix.key {
		return ErrKeyColumn
	}
	ix.columns[column] = nil
	return nil
}

// Indexed reports whether column has an index.
func (ix *Index) Indexed(column int) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return column >= 0 && column < len(ix.columns) && ix.columns[column] != nil
}

// Columns lists the indexed columns in ascending order.
func (ix *Index) Columns() []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	cols := make([]int, 0, len(ix.columns))
	for i, c := range ix.columns {
		if c != nil {
			cols = append(cols, i)
		}
	}
	return cols
}

// Insert maps value to rid in column's index.
func (ix *Index) Insert(column int, value int64, rid uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, err := ix.column(column)
	if err != nil {
		return err
	}
	if b, ok := c.tree.Get(&bucket{value: value}); ok {
		if b.rids.Contains(rid) {
			return nil
		}
		if c.unique && !b.rids.IsEmpty() {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, value)
		}
		b.rids.Add(rid)
		c.size++
		return nil
	}
	rids := roaring64.New()
	rids.Add(rid)
	c.tree.ReplaceOrInsert(&bucket{value: value, rids: rids})
	c.size++
	return nil
}

// Remove unmaps rid from value. Removing an absent pair is a no-op.
func (ix *Index) Remove(column int, value int64, rid uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, err := ix.column(column)
	if err != nil {
		return
	}
	b, ok := c.tree.Get(&bucket{value: value})
	if !ok || !b.rids.Contains(rid) {
		return
	}
	b.rids.Remove(rid)
	c.size--
	if b.rids.IsEmpty() {
		c.tree.Delete(b)
	}
}

// Lookup returns the RIDs holding value, in ascending RID order. The result
// is empty when the column is not indexed or no record matches.
func (ix *Index) Lookup(column int, value int64) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, err := ix.column(column)
	if err != nil {
		return nil
	}
	b, ok := c.tree.Get(&bucket{value: value})
	if !ok {
		return nil
	}
	return b.rids.ToArray()
}

// Range returns the RIDs whose value lies in [lo, hi], ordered by value and
// then by RID.
func (ix *Index) Range(column int, lo, hi int64) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, err := ix.column(column)
	if err != nil || lo > hi {
		return nil
	}
	var out []uint64
	c.tree.AscendGreaterOrEqual(&bucket{value: lo}, func(b *bucket) bool {
		if b.value > hi {
			return false
		}
		out = append(out, b.rids.ToArray()...)
		return true
	})
	return out
}

// Len returns the number of (value, RID) pairs in column's index.
func (ix *Index) Len(column int) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, err := ix.column(column)
	if err != nil {
		return 0
	}
	return c.size
}

func (ix *Index) column(column int) (*columnIndex, error) {
	if err := ix.checkColumn(column); err != nil {
		return nil, err
	}
	c := ix.columns[column]
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotIndexed, column)
	}
	return c, nil
}

func (ix *Index) checkColumn(column int) error {
	if column < 0 || column >= len(ix.columns) {
		return fmt.Errorf("index: column %d out of bounds", column)
	}
	return nil
}
