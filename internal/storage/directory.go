package storage

import (
	"fmt"
	"slices"
	"sync"
)

// Entry is the page directory record for one RID: the location of its latest
// version and whether it has been deleted.
type Entry struct {
	Location Location
	Deleted  bool
}

// Directory maps RIDs to the location of their latest version. It is the only
// address translation layer: every read and write resolves through it. Each
// mutation replaces a single entry atomically.
type Directory struct {
	mu      sync.RWMutex
	entries map[uint64]Entry
}

// NewDirectory creates an empty page directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[uint64]Entry)}
}

// Put inserts or overwrites the entry for rid.
func (d *Directory) Put(rid uint64, entry Entry) {
	d.mu.Lock()
	d.entries[rid] = entry
	d.mu.Unlock()
}

// Get returns the entry for rid.
func (d *Directory) Get(rid uint64) (Entry, error) {
	d.mu.RLock()
	entry, ok := d.entries[rid]
	d.mu.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownRID, rid)
	}
	return entry, nil
}

// CompareAndSwap replaces the entry for rid with next only if it still equals
// prev. It reports whether the swap happened.
func (d *Directory) CompareAndSwap(rid uint64, prev, next Entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.entries[rid]
	if !ok || cur != prev {
		return false
	}
	d.entries[rid] = next
	return true
}

// MarkDeleted tombstones rid, keeping its location until merge purges it.
func (d *Directory) MarkDeleted(rid uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[rid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRID, rid)
	}
	entry.Deleted = true
	d.entries[rid] = entry
	return nil
}

// Remove drops the entry for rid. Only merge calls this, for tombstoned RIDs.
func (d *Directory) Remove(rid uint64) {
	d.mu.Lock()
	delete(d.entries, rid)
	d.mu.Unlock()
}

// Len returns the number of entries, tombstones included.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Scan calls fn for every entry in ascending RID order. The directory is not
// locked while fn runs, so fn may call back into it.
func (d *Directory) Scan(fn func(rid uint64, entry Entry) error) error {
	d.mu.RLock()
	rids := make([]uint64, 0, len(d.entries))
	for rid := range d.entries {
		rids = append(rids, rid)
	}
	d.mu.RUnlock()
	slices.Sort(rids)

	for _, rid := range rids {
		entry, err := d.Get(rid)
		if err != nil {
			// removed after the key snapshot
			continue
		}
		if err := fn(rid, entry); err != nil {
			return err
		}
	}
	return nil
}
