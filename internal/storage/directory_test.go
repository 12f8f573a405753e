package storage

import (
	"errors"
	"testing"
)

func TestDirectoryPutGetRemove(t *testing.T) {
	dir := NewDirectory()
	loc := Location{Range: 1, Kind: KindBase, Set: 2, Slot: 3}
	dir.Put(10, Entry{Location: loc})

	entry, err := dir.Get(10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Location != loc || entry.Deleted {
		t.Fatalf("unexpected entry %+v", entry)
	}

	if err := dir.MarkDeleted(10); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	entry, _ = dir.Get(10)
	if !entry.Deleted || entry.Location != loc {
		t.Fatalf("tombstone should keep location: %+v", entry)
	}

	dir.Remove(10)
	if _, err := dir.Get(10); !errors.Is(err, ErrUnknownRID) {
		t.Fatalf("expected ErrUnknownRID, got %v", err)
	}
	if err := dir.MarkDeleted(10); !errors.Is(err, ErrUnknownRID) {
		t.Fatalf("expected ErrUnknownRID on missing tombstone, got %v", err)
	}
}

func TestDirectoryCompareAndSwap(t *testing.T) {
	dir := NewDirectory()
	old := Entry{Location: Location{Slot: 1}}
	next := Entry{Location: Location{Kind: KindTail, Slot: 5}}
	dir.Put(1, old)

	if dir.CompareAndSwap(1, next, old) {
		t.Fatalf("swap with stale expectation should fail")
	}
	if !dir.CompareAndSwap(1, old, next) {
		t.Fatalf("swap should succeed")
	}
	if got, _ := dir.Get(1); got != next {
		t.Fatalf("expected %+v, got %+v", next, got)
	}
	if dir.CompareAndSwap(2, old, next) {
		t.Fatalf("swap on missing rid should fail")
	}
}

func TestDirectoryScanOrdered(t *testing.T) {
	dir := NewDirectory()
	for _, rid := range []uint64{5, 1, 3} {
		dir.Put(rid, Entry{Location: Location{Slot: uint16(rid)}})
	}
	var seen []uint64
	if err := dir.Scan(func(rid uint64, entry Entry) error {
		seen = append(seen, rid)
		if rid == 3 {
			dir.Remove(5)
		}
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("unexpected scan order %v", seen)
	}
}
