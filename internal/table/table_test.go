package table_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/example/lstore/internal/table"
)

func ptr(v int64) *int64 { return &v }

func newTable(t *testing.T, cfg table.Config) *table.Table {
	t.Helper()
	tbl, err := table.New("grades", 3, 0, cfg)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	t.Cleanup(tbl.Close)
	return tbl
}

func selectKey(t *testing.T, tbl *table.Table, key int64) []int64 {
	t.Helper()
	cur, err := tbl.Select(key, tbl.KeyColumn(), nil)
	if err != nil {
		t.Fatalf("select %d: %v", key, err)
	}
	recs, err := cur.All()
	if err != nil {
		t.Fatalf("select %d: %v", key, err)
	}
	if len(recs) != 1 {
		t.Fatalf("select %d: expected 1 record, got %d", key, len(recs))
	}
	return recs[0].Columns
}

func TestInsertUpdateSumDelete(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())

	rid1, err := tbl.Insert([]int64{1, 10, 100})
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	rid2, err := tbl.Insert([]int64{2, 20, 200})
	if err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if rid1 != 1 || rid2 != 2 {
		t.Fatalf("expected rids 1 and 2, got %d and %d", rid1, rid2)
	}

	if err := tbl.Update(1, []*int64{nil, ptr(99), nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := selectKey(t, tbl, 1); !slices.Equal(got, []int64{1, 99, 100}) {
		t.Fatalf("unexpected record after update: %v", got)
	}

	sum, err := tbl.Sum(1, 2, 2)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 300 {
		t.Fatalf("expected sum 300, got %d", sum)
	}

	if err := tbl.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tbl.Select(2, 0, nil); !errors.Is(err, table.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if sum, err = tbl.Sum(1, 2, 2); err != nil || sum != 100 {
		t.Fatalf("expected sum 100 after delete, got %d (%v)", sum, err)
	}
	if err := tbl.Delete(2); !errors.Is(err, table.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestDuplicateKeyLeavesTableUnchanged(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	if _, err := tbl.Insert([]int64{7, 1, 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	before := tbl.Stats()
	if _, err := tbl.Insert([]int64{7, 2, 2}); !errors.Is(err, table.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if after := tbl.Stats(); after != before {
		t.Fatalf("stats changed after rejected insert: %+v -> %+v", before, after)
	}
	if got := selectKey(t, tbl, 7); !slices.Equal(got, []int64{7, 1, 1}) {
		t.Fatalf("unexpected record %v", got)
	}
	rid, err := tbl.Insert([]int64{8, 0, 0})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rid != 2 {
		t.Fatalf("rejected insert must not consume a rid, got %d", rid)
	}
}

func TestKeyReusableAfterDelete(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	if _, err := tbl.Insert([]int64{5, 1, 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Delete(5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rid, err := tbl.Insert([]int64{5, 2, 2})
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if rid != 2 {
		t.Fatalf("expected fresh rid 2, got %d", rid)
	}
	if got := selectKey(t, tbl, 5); !slices.Equal(got, []int64{5, 2, 2}) {
		t.Fatalf("unexpected record %v", got)
	}
}

func TestUpdateChangesKey(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	for _, row := range [][]int64{{1, 0, 0}, {2, 0, 0}} {
		if _, err := tbl.Insert(row); err != nil {
			t.Fatalf("insert %v: %v", row, err)
		}
	}
	if err := tbl.Update(1, []*int64{ptr(2), nil, nil}); !errors.Is(err, table.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if got := selectKey(t, tbl, 1); !slices.Equal(got, []int64{1, 0, 0}) {
		t.Fatalf("rejected update changed the record: %v", got)
	}

	if err := tbl.Update(1, []*int64{ptr(3), ptr(4), nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tbl.Select(1, 0, nil); !errors.Is(err, table.ErrNotFound) {
		t.Fatalf("old key should be gone, got %v", err)
	}
	if got := selectKey(t, tbl, 3); !slices.Equal(got, []int64{3, 4, 0}) {
		t.Fatalf("unexpected record %v", got)
	}
	if err := tbl.Update(99, []*int64{nil, ptr(1), nil}); !errors.Is(err, table.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestRejectsMalformedInput(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	if _, err := tbl.Insert([]int64{1, 2}); !errors.Is(err, table.ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount, got %v", err)
	}
	if err := tbl.Update(1, []*int64{nil}); !errors.Is(err, table.ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount, got %v", err)
	}
	if _, err := tbl.Select(1, 3, nil); !errors.Is(err, table.ErrInvalidColumn) {
		t.Fatalf("expected ErrInvalidColumn, got %v", err)
	}
	if _, err := tbl.Select(1, 0, []bool{true}); !errors.Is(err, table.ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount for projection, got %v", err)
	}
	if _, err := tbl.Sum(0, 1, -1); !errors.Is(err, table.ErrInvalidColumn) {
		t.Fatalf("expected ErrInvalidColumn, got %v", err)
	}
	if _, err := table.New("bad", 2, 2, table.DefaultConfig()); !errors.Is(err, table.ErrInvalidColumn) {
		t.Fatalf("expected ErrInvalidColumn for key column, got %v", err)
	}
}

func TestColumnLimit(t *testing.T) {
	if _, err := table.New("wide", table.MaxColumns+1, 0, table.DefaultConfig()); !errors.Is(err, table.ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount above %d columns, got %v", table.MaxColumns, err)
	}
	tbl, err := table.New("wide", table.MaxColumns, 0, table.Config{MergeThreshold: 0})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer tbl.Close()

	row := make([]int64, table.MaxColumns)
	row[0] = 7
	if _, err := tbl.Insert(row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	values := make([]*int64, table.MaxColumns)
	values[table.MaxColumns-1] = ptr(42)
	if err := tbl.Update(7, values); err != nil {
		t.Fatalf("update last column: %v", err)
	}
	got := selectKey(t, tbl, 7)
	if got[table.MaxColumns-1] != 42 {
		t.Fatalf("expected last column 42, got %d", got[table.MaxColumns-1])
	}
	cur, err := tbl.SelectVersion(7, 0, nil, -1)
	if err != nil {
		t.Fatalf("select version: %v", err)
	}
	old, err := cur.All()
	if err != nil {
		t.Fatalf("select version: %v", err)
	}
	if len(old) != 1 || old[0].Columns[table.MaxColumns-1] != 0 {
		t.Fatalf("expected previous version to hold 0, got %+v", old)
	}
}

func TestProjection(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	if _, err := tbl.Insert([]int64{1, 10, 100}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cur, err := tbl.Select(1, 0, []bool{false, false, true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	recs, err := cur.All()
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(recs) != 1 || !slices.Equal(recs[0].Columns, []int64{100}) || recs[0].Key != 1 {
		t.Fatalf("unexpected projection %+v", recs)
	}
}

func TestSelectOnSecondaryColumn(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	for k := int64(1); k <= 6; k++ {
		if _, err := tbl.Insert([]int64{k, k % 2, k * 10}); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}

	scan := func() []int64 {
		cur, err := tbl.Select(1, 1, nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		recs, err := cur.All()
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		var keys []int64
		for _, r := range recs {
			keys = append(keys, r.Key)
		}
		return keys
	}

	if got := scan(); !slices.Equal(got, []int64{1, 3, 5}) {
		t.Fatalf("unindexed select returned %v", got)
	}
	if err := tbl.CreateIndex(1); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if got := tbl.IndexedColumns(); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("unexpected indexed columns %v", got)
	}
	if err := tbl.Update(2, []*int64{nil, ptr(1), nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := scan(); !slices.Equal(got, []int64{1, 2, 3, 5}) {
		t.Fatalf("indexed select returned %v", got)
	}
	if err := tbl.DropIndex(1); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if got := scan(); !slices.Equal(got, []int64{1, 2, 3, 5}) {
		t.Fatalf("select after drop returned %v", got)
	}
	if err := tbl.DropIndex(0); !errors.Is(err, table.ErrKeyIndex) {
		t.Fatalf("expected ErrKeyIndex, got %v", err)
	}
}

func TestCursorSkipsRecordsDeletedAfterQuery(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	for k := int64(1); k <= 3; k++ {
		if _, err := tbl.Insert([]int64{k, 5, 0}); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if err := tbl.CreateIndex(1); err != nil {
		t.Fatalf("create index: %v", err)
	}
	cur, err := tbl.Select(5, 1, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !cur.Next() || cur.Record().Key != 1 {
		t.Fatalf("expected first record with key 1")
	}
	if err := tbl.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !cur.Next() || cur.Record().Key != 3 {
		t.Fatalf("expected cursor to skip deleted key 2, got %+v", cur.Record())
	}
	if cur.Next() {
		t.Fatalf("expected cursor exhausted")
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
}

func TestRangeRollover(t *testing.T) {
	tbl := newTable(t, table.Config{BaseSetsPerRange: 1})
	const n = 1100
	for k := int64(0); k < n; k++ {
		if _, err := tbl.Insert([]int64{k, k, 1}); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	stats := tbl.Stats()
	if stats.Ranges != 3 || stats.Records != n {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if err := tbl.Update(1050, []*int64{nil, nil, ptr(2)}); err != nil {
		t.Fatalf("update in last range: %v", err)
	}
	sum, err := tbl.Sum(0, n-1, 2)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != n+1 {
		t.Fatalf("expected sum %d, got %d", n+1, sum)
	}
	if got := selectKey(t, tbl, 511); got[1] != 511 {
		t.Fatalf("unexpected record at range boundary %v", got)
	}
}

func TestSumWrapsOnOverflow(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	const maxInt64 = int64(^uint64(0) >> 1)
	for k, v := range []int64{maxInt64, 1} {
		if _, err := tbl.Insert([]int64{int64(k), 0, v}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	sum, err := tbl.Sum(0, 1, 2)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != -maxInt64-1 {
		t.Fatalf("expected wrapped sum, got %d", sum)
	}
	if sum, err = tbl.Sum(5, 9, 2); err != nil || sum != 0 {
		t.Fatalf("expected empty range to sum to 0, got %d (%v)", sum, err)
	}
}

func TestIncrementAndValues(t *testing.T) {
	tbl := newTable(t, table.DefaultConfig())
	for k := int64(1); k <= 4; k++ {
		if _, err := tbl.Insert([]int64{k, k * 2, 0}); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := tbl.Increment(2, 2, 1); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, err := tbl.Increment(2, 2, 10)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 13 {
		t.Fatalf("expected 13 after increments, got %d", got)
	}
	if _, err := tbl.Increment(9, 2, 1); !errors.Is(err, table.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tbl.Delete(3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	values, err := tbl.Values(2, 4, 1)
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if !slices.Equal(values, []int64{4, 8}) {
		t.Fatalf("unexpected values %v", values)
	}
}
