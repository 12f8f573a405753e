package storage

import (
	"errors"
	"testing"
)

func TestPageAppendAndRead(t *testing.T) {
	page := NewPage(KindBase, 2)
	values := []int64{0, 42, -7, 1 << 62, -1 << 63}
	for i, v := range values {
		slot, err := page.Append(v)
		if err != nil {
			t.Fatalf("append %d: %v", v, err)
		}
		if slot != i {
			t.Fatalf("expected slot %d, got %d", i, slot)
		}
	}
	for i, want := range values {
		got, err := page.Read(i)
		if err != nil {
			t.Fatalf("read slot %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("slot %d: got %d want %d", i, got, want)
		}
	}
	if page.Len() != len(values) {
		t.Fatalf("expected fill %d, got %d", len(values), page.Len())
	}
}

func TestPageFullAndOutOfRange(t *testing.T) {
	page := NewPage(KindTail, 0)
	for i := 0; i < PageCapacity; i++ {
		if _, err := page.Append(int64(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if page.HasCapacity() {
		t.Fatalf("page should be full after %d appends", PageCapacity)
	}
	if _, err := page.Append(1); !errors.Is(err, ErrPageFull) {
		t.Fatalf("expected ErrPageFull, got %v", err)
	}

	empty := NewPage(KindBase, 0)
	if _, err := empty.Read(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := page.Read(PageCapacity); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange past capacity, got %v", err)
	}
}

func TestLoadPageKeepsFill(t *testing.T) {
	page := NewPage(KindBase, 1)
	for _, v := range []int64{5, 6, 7} {
		if _, err := page.Append(v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	loaded, err := LoadPage(KindBase, 1, page.Bytes(), page.Len())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := loaded.Read(2); got != 7 {
		t.Fatalf("expected 7 at slot 2, got %d", got)
	}
	if _, err := loaded.Read(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange beyond restored fill, got %v", err)
	}
	if _, err := LoadPage(KindBase, 1, make([]byte, 10), 0); err == nil {
		t.Fatalf("expected error for short page image")
	}
}

func TestPageSetSharesFillCursor(t *testing.T) {
	set := NewPageSet(0, KindBase, 2)
	if set.Width() != MetaColumns+2 {
		t.Fatalf("unexpected width %d", set.Width())
	}
	row := []int64{0, 1, 2, 0, 10, 20}
	slot, err := set.Append(row)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := set.Row(slot)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	for i := range row {
		if got[i] != row[i] {
			t.Fatalf("column %d: got %d want %d", i, got[i], row[i])
		}
	}
	if _, err := set.Append([]int64{1, 2}); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestLocationPackRoundTrip(t *testing.T) {
	locs := []Location{
		{},
		{Range: 1, Kind: KindTail, Set: 3, Slot: 511},
		{Range: 1<<31 - 1, Kind: KindBase, Set: MaxSetID, Slot: 17},
	}
	for _, loc := range locs {
		if got := UnpackLocation(loc.Pack()); got != loc {
			t.Fatalf("round trip %s: got %s", loc, got)
		}
	}
}
