package table

import (
	"fmt"

	"github.com/example/lstore/internal/logging"
	"github.com/example/lstore/internal/storage"
)

type relocation struct {
	rid  uint64
	prev storage.Entry
	next storage.Location
}

// Merge consolidates the tail chain of a page range into fresh base
// page-sets. Every live record rooted in the range is rewritten with its
// latest values and its directory entry repointed; tombstoned records are
// dropped and purged from the directory. Visible values never change.
func (t *Table) Merge(rangeID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(rangeID) >= len(t.ranges) {
		return fmt.Errorf("table: unknown page range %d", rangeID)
	}
	return t.mergeLocked(t.ranges[rangeID])
}

// MergeAll merges every page range.
func (t *Table) MergeAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rng := range t.ranges {
		if err := t.mergeLocked(rng); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) maybeMergeLocked(rng *storage.PageRange) error {
	if t.cfg.MergeThreshold <= 0 || rng.PendingTail() < t.cfg.MergeThreshold {
		return nil
	}
	return t.mergeLocked(rng)
}

func (t *Table) mergeLocked(rng *storage.PageRange) error {
	prevState := rng.State()
	if prevState == storage.RangeMerging {
		return fmt.Errorf("%w: range %d", ErrMergeInProgress, rng.ID())
	}
	if rng.PendingTail() == 0 {
		dirty, err := t.hasTombstones(rng)
		if err != nil || !dirty {
			return err
		}
	}
	rng.SetState(storage.RangeMerging)
	defer rng.SetState(prevState)

	log := logging.WithRange(t.name, rng.ID())

	var (
		merged []*storage.PageSet
		cur    *storage.PageSet
		moves  []relocation
		purged []uint64
	)
	for _, set := range rng.BaseSets() {
		for slot := 0; slot < set.Len(); slot++ {
			v, err := set.Read(slot, storage.RIDColumn)
			if err != nil {
				return fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			rid := uint64(v)
			entry, err := t.directory.Get(rid)
			if err != nil {
				return fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			if entry.Deleted {
				purged = append(purged, rid)
				continue
			}
			latest, err := t.readPhysical(entry.Location)
			if err != nil {
				return fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			if cur == nil || !cur.HasCapacity() {
				if cur, err = rng.AllocateSet(storage.KindBase); err != nil {
					return err
				}
				merged = append(merged, cur)
			}
			loc := rng.NextLocation(cur)
			row := make([]int64, len(latest))
			copy(row, latest)
			row[storage.IndirectionColumn] = loc.Pack()
			row[storage.SchemaEncodingColumn] = 0
			if _, err := cur.Append(row); err != nil {
				return fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			moves = append(moves, relocation{rid: rid, prev: entry, next: loc})
		}
	}

	watermark := rng.Watermark()
	if tails := rng.TailSets(); len(tails) > 0 {
		last := tails[len(tails)-1]
		if last.Len() > 0 {
			ts, err := last.Read(last.Len()-1, storage.TimestampColumn)
			if err != nil {
				return fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			watermark = ts
		}
	}

	for _, m := range moves {
		if !t.directory.CompareAndSwap(m.rid, m.prev, storage.Entry{Location: m.next}) {
			return fmt.Errorf("table: merge range %d: rid %d moved during merge", rng.ID(), m.rid)
		}
	}
	for _, rid := range purged {
		t.directory.Remove(rid)
	}
	folded := rng.PendingTail()
	rng.Install(merged, watermark)

	log.Debug("page range merged",
		"records", len(moves),
		"purged", len(purged),
		"tail_records", folded,
		"watermark", watermark)
	return nil
}

func (t *Table) hasTombstones(rng *storage.PageRange) (bool, error) {
	for _, set := range rng.BaseSets() {
		for slot := 0; slot < set.Len(); slot++ {
			v, err := set.Read(slot, storage.RIDColumn)
			if err != nil {
				return false, err
			}
			entry, err := t.directory.Get(uint64(v))
			if err != nil {
				return false, fmt.Errorf("table: merge range %d: %w", rng.ID(), err)
			}
			if entry.Deleted {
				return true, nil
			}
		}
	}
	return false, nil
}
