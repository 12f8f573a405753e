// Package table implements the L-Store versioning protocol over page ranges.
//
// Inserts append full records to the base page-sets of the active page range.
// Updates never touch base pages: they append a complete new version to the
// tail chain of the record's range, point its indirection column at the
// previous version and repoint the page directory entry. Deletes tombstone
// the directory entry. Merge folds the latest versions of a range back into
// fresh base page-sets and releases the tail chain.
package table

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/example/lstore/internal/index"
	"github.com/example/lstore/internal/logging"
	"github.com/example/lstore/internal/storage"
)

// Table stores fixed-width integer rows. All methods are safe for concurrent
// use; writers are serialised.
type Table struct {
	name       string
	numColumns int
	key        int
	cfg        Config
	log        *slog.Logger

	mu        sync.RWMutex
	ranges    []*storage.PageRange
	directory *storage.Directory
	index     *index.Index
	cache     *recordCache

	// lastRID is the most recently allocated RID; RIDs start at 1.
	lastRID uint64
	// clock stamps every base and tail record; tail stamps double as the
	// tail sequence numbers recorded by merge watermarks.
	clock int64
}

// Stats summarises the physical state of a table.
type Stats struct {
	Ranges      int
	Records     int
	Tombstones  int
	BaseSets    int
	TailSets    int
	PendingTail int
}

// MaxColumns bounds the data columns of a table. The schema encoding of a
// tail record is a single int64 bitmap.
const MaxColumns = 64

// New creates an empty table with numColumns integer columns and the
// primary key at keyColumn.
func New(name string, numColumns, keyColumn int, cfg Config) (*Table, error) {
	if numColumns <= 0 || numColumns > MaxColumns {
		return nil, fmt.Errorf("%w: %s has %d columns, want 1..%d", ErrColumnCount, name, numColumns, MaxColumns)
	}
	if keyColumn < 0 || keyColumn >= numColumns {
		return nil, fmt.Errorf("%w: key column %d of %d", ErrInvalidColumn, keyColumn, numColumns)
	}
	cfg = cfg.withDefaults()
	cache, err := newRecordCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("table: record cache: %w", err)
	}
	t := &Table{
		name:       name,
		numColumns: numColumns,
		key:        keyColumn,
		cfg:        cfg,
		log:        logging.WithTable(name),
		directory:  storage.NewDirectory(),
		index:      index.New(numColumns, keyColumn),
		cache:      cache,
	}
	t.newRange()
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// NumColumns returns the number of user columns.
func (t *Table) NumColumns() int { return t.numColumns }

// KeyColumn returns the primary key column.
func (t *Table) KeyColumn() int { return t.key }

// Close releases the record cache. The table must not be used afterwards.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.close()
	t.cache = nil
}

// Insert stores a new record and returns its RID.
func (t *Table) Insert(values []int64) (uint64, error) {
	if len(values) != t.numColumns {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrColumnCount, len(values), t.numColumns)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := values[t.key]
	if len(t.index.Lookup(t.key, key)) > 0 {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateKey, key)
	}

	rid := t.lastRID + 1
	row := make([]int64, storage.MetaColumns+t.numColumns)
	row[storage.RIDColumn] = int64(rid)
	row[storage.TimestampColumn] = t.clock + 1
	copy(row[storage.MetaColumns:], values)

	loc, err := t.appendBase(row)
	if err != nil {
		return 0, fmt.Errorf("table: insert key %d: %w", key, err)
	}
	t.lastRID = rid
	t.clock++
	t.directory.Put(rid, storage.Entry{Location: loc})
	for _, col := range t.index.Columns() {
		if err := t.index.Insert(col, values[col], rid); err != nil {
			return 0, fmt.Errorf("table: index column %d: %w", col, err)
		}
	}
	return rid, nil
}

// Update writes a new version of the record with primary key key. Nil
// entries in values keep the current column value.
func (t *Table) Update(key int64, values []*int64) error {
	if len(values) != t.numColumns {
		return fmt.Errorf("%w: got %d values, want %d", ErrColumnCount, len(values), t.numColumns)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(key, values)
}

// Increment adds delta to column of the record with primary key key and
// returns the new value.
func (t *Table) Increment(key int64, column int, delta int64) (int64, error) {
	if err := t.checkColumn(column); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, entry, err := t.resolveKey(key)
	if err != nil {
		return 0, err
	}
	cur, err := t.readPhysical(entry.Location)
	if err != nil {
		return 0, fmt.Errorf("table: increment key %d: %w", key, err)
	}
	next := cur[storage.MetaColumns+column] + delta
	values := make([]*int64, t.numColumns)
	values[column] = &next
	if err := t.updateLocked(key, values); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *Table) updateLocked(key int64, values []*int64) error {
	rid, entry, err := t.resolveKey(key)
	if err != nil {
		return err
	}
	cur, err := t.readPhysical(entry.Location)
	if err != nil {
		return fmt.Errorf("table: update key %d: %w", key, err)
	}

	next := slices.Clone(cur)
	var encoding int64
	for i, v := range values {
		if v == nil {
			continue
		}
		next[storage.MetaColumns+i] = *v
		encoding |= 1 << i
	}
	newKey := next[storage.MetaColumns+t.key]
	if newKey != key && len(t.index.Lookup(t.key, newKey)) > 0 {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, newKey)
	}
	next[storage.IndirectionColumn] = entry.Location.Pack()
	next[storage.RIDColumn] = int64(rid)
	next[storage.TimestampColumn] = t.clock + 1
	next[storage.SchemaEncodingColumn] = encoding

	rng, err := t.rangeFor(entry.Location)
	if err != nil {
		return err
	}
	loc, err := rng.AppendTail(next)
	if err != nil {
		return fmt.Errorf("table: update key %d: %w", key, err)
	}
	t.clock++
	if !t.directory.CompareAndSwap(rid, entry, storage.Entry{Location: loc}) {
		return fmt.Errorf("table: directory entry for rid %d changed during update", rid)
	}
	for _, col := range t.index.Columns() {
		oldV, newV := cur[storage.MetaColumns+col], next[storage.MetaColumns+col]
		if oldV == newV {
			continue
		}
		t.index.Remove(col, oldV, rid)
		if err := t.index.Insert(col, newV, rid); err != nil {
			return fmt.Errorf("table: index column %d: %w", col, err)
		}
	}
	// The update is committed at this point; a failed merge leaves the tail
	// chain in place for the next attempt.
	if err := t.maybeMergeLocked(rng); err != nil {
		t.log.Warn("merge after update failed", "range", rng.ID(), "error", err)
	}
	return nil
}

// Delete tombstones the record with primary key key and removes it from
// every index. Its slots are reclaimed by the next merge of its range.
func (t *Table) Delete(key int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rid, entry, err := t.resolveKey(key)
	if err != nil {
		return err
	}
	cur, err := t.readPhysical(entry.Location)
	if err != nil {
		return fmt.Errorf("table: delete key %d: %w", key, err)
	}
	if err := t.directory.MarkDeleted(rid); err != nil {
		return fmt.Errorf("table: delete key %d: %w", key, err)
	}
	for _, col := range t.index.Columns() {
		t.index.Remove(col, cur[storage.MetaColumns+col], rid)
	}
	return nil
}

// Select returns the records whose column equals value. projected selects
// which columns are returned; nil selects all of them. ErrNotFound is
// returned when nothing matches at call time.
func (t *Table) Select(value int64, column int, projected []bool) (*Cursor, error) {
	return t.selectVersion(value, column, projected, 0)
}

func (t *Table) selectVersion(value int64, column int, projected []bool, version int) (*Cursor, error) {
	if err := t.checkColumn(column); err != nil {
		return nil, err
	}
	if projected == nil {
		projected = allColumns(t.numColumns)
	}
	if len(projected) != t.numColumns {
		return nil, fmt.Errorf("%w: projection has %d entries, want %d", ErrColumnCount, len(projected), t.numColumns)
	}

	t.mu.RLock()
	rids, err := t.candidates(value, column)
	t.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(rids) == 0 {
		return nil, fmt.Errorf("%w: column %d = %d", ErrNotFound, column, value)
	}
	return &Cursor{
		t:         t,
		rids:      rids,
		column:    column,
		value:     value,
		projected: slices.Clone(projected),
		version:   version,
	}, nil
}

// Sum adds column over every live record whose primary key lies in
// [start, end]. The addition wraps on int64 overflow.
func (t *Table) Sum(start, end int64, column int) (int64, error) {
	return t.sumVersion(start, end, column, 0)
}

func (t *Table) sumVersion(start, end int64, column, version int) (int64, error) {
	var total int64
	err := t.eachInRange(start, end, column, version, func(v int64) {
		total += v
	})
	return total, err
}

// Values returns column of every live record whose primary key lies in
// [start, end], ordered by key.
func (t *Table) Values(start, end int64, column int) ([]int64, error) {
	var out []int64
	err := t.eachInRange(start, end, column, 0, func(v int64) {
		out = append(out, v)
	})
	return out, err
}

func (t *Table) eachInRange(start, end int64, column, version int, fn func(int64)) error {
	if err := t.checkColumn(column); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, rid := range t.index.Range(t.key, start, end) {
		entry, err := t.directory.Get(rid)
		if err != nil {
			return fmt.Errorf("table: range read: %w", err)
		}
		if entry.Deleted {
			return fmt.Errorf("table: range read: rid %d indexed after delete", rid)
		}
		row, err := t.versionRow(entry.Location, version)
		if err != nil {
			return fmt.Errorf("table: range read: %w", err)
		}
		fn(row[storage.MetaColumns+column])
	}
	return nil
}

// CreateIndex indexes column and fills the index from the live records.
func (t *Table) CreateIndex(column int) error {
	if err := t.checkColumn(column); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index.Indexed(column) {
		return nil
	}
	if err := t.index.Create(column); err != nil {
		return err
	}
	return t.indexColumnLocked(column)
}

// DropIndex removes the secondary index on column.
func (t *Table) DropIndex(column int) error {
	if err := t.checkColumn(column); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.index.Drop(column); err != nil {
		if errors.Is(err, index.ErrKeyColumn) {
			return ErrKeyIndex
		}
		return err
	}
	return nil
}

// IndexedColumns lists the columns that have an index.
func (t *Table) IndexedColumns() []int {
	return t.index.Columns()
}

// Stats reports range, record and tail counts.
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{Ranges: len(t.ranges)}
	for _, r := range t.ranges {
		s.BaseSets += len(r.BaseSets())
		s.TailSets += len(r.TailSets())
		s.PendingTail += r.PendingTail()
	}
	// The callback never fails, so neither does Scan.
	_ = t.directory.Scan(func(_ uint64, e storage.Entry) error {
		if e.Deleted {
			s.Tombstones++
		} else {
			s.Records++
		}
		return nil
	})
	return s
}

func (t *Table) indexColumnLocked(column int) error {
	return t.directory.Scan(func(rid uint64, e storage.Entry) error {
		if e.Deleted {
			return nil
		}
		row, err := t.readPhysical(e.Location)
		if err != nil {
			return err
		}
		return t.index.Insert(column, row[storage.MetaColumns+column], rid)
	})
}

// candidates resolves the RIDs that may hold value in column, through the
// column index when there is one and by scanning live records otherwise.
func (t *Table) candidates(value int64, column int) ([]uint64, error) {
	if t.index.Indexed(column) {
		return t.index.Lookup(column, value), nil
	}
	var rids []uint64
	err := t.directory.Scan(func(rid uint64, e storage.Entry) error {
		if e.Deleted {
			return nil
		}
		row, err := t.readPhysical(e.Location)
		if err != nil {
			return err
		}
		if row[storage.MetaColumns+column] == value {
			rids = append(rids, rid)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("table: scan column %d: %w", column, err)
	}
	return rids, nil
}

// readMatching reads rid for a cursor. ok is false when the record was
// deleted, purged or no longer matches.
func (t *Table) readMatching(rid uint64, column int, value int64, projected []bool, version int) (Record, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, err := t.directory.Get(rid)
	if errors.Is(err, storage.ErrUnknownRID) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if entry.Deleted {
		return Record{}, false, nil
	}
	latest, err := t.readPhysical(entry.Location)
	if err != nil {
		return Record{}, false, fmt.Errorf("table: read rid %d: %w", rid, err)
	}
	if latest[storage.MetaColumns+column] != value {
		return Record{}, false, nil
	}
	row := latest
	if version != 0 {
		if row, err = t.versionRow(entry.Location, version); err != nil {
			return Record{}, false, fmt.Errorf("table: read rid %d: %w", rid, err)
		}
	}
	rec := Record{RID: rid, Key: row[storage.MetaColumns+t.key]}
	for i, keep := range projected {
		if keep {
			rec.Columns = append(rec.Columns, row[storage.MetaColumns+i])
		}
	}
	return rec, true, nil
}

// resolveKey finds the live RID for a primary key.
func (t *Table) resolveKey(key int64) (uint64, storage.Entry, error) {
	rids := t.index.Lookup(t.key, key)
	if len(rids) == 0 {
		return 0, storage.Entry{}, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	rid := rids[0]
	entry, err := t.directory.Get(rid)
	if err != nil {
		return 0, storage.Entry{}, fmt.Errorf("table: key %d: %w", key, err)
	}
	if entry.Deleted {
		return 0, storage.Entry{}, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	return rid, entry, nil
}

// readPhysical returns the physical record at loc. The result may be shared
// with the record cache and must not be modified.
func (t *Table) readPhysical(loc storage.Location) ([]int64, error) {
	if row, ok := t.cache.get(loc); ok {
		return row, nil
	}
	rng, err := t.rangeFor(loc)
	if err != nil {
		return nil, err
	}
	row, err := rng.Row(loc)
	if err != nil {
		return nil, err
	}
	t.cache.put(loc, row)
	return row, nil
}

func (t *Table) rangeFor(loc storage.Location) (*storage.PageRange, error) {
	if int(loc.Range) >= len(t.ranges) {
		return nil, fmt.Errorf("table: location %s names unknown range", loc)
	}
	return t.ranges[loc.Range], nil
}

// appendBase writes row into the active range, opening a new range when the
// active one is sealed.
func (t *Table) appendBase(row []int64) (storage.Location, error) {
	active := t.ranges[len(t.ranges)-1]
	loc, err := active.AppendBase(row)
	if errors.Is(err, storage.ErrPageFull) {
		active = t.newRange()
		loc, err = active.AppendBase(row)
	}
	return loc, err
}

func (t *Table) newRange() *storage.PageRange {
	id := uint32(len(t.ranges))
	r := storage.NewPageRange(id, t.numColumns, t.cfg.BaseSetsPerRange)
	t.ranges = append(t.ranges, r)
	logging.WithRange(t.name, id).Debug("page range allocated", "capacity", r.Capacity())
	return r
}

func (t *Table) checkColumn(column int) error {
	if column < 0 || column >= t.numColumns {
		return fmt.Errorf("%w: %d", ErrInvalidColumn, column)
	}
	return nil
}

func allColumns(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}
