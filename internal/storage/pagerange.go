package storage

import (
	"fmt"
	"slices"
)

// RangeState tracks where a page range is in its lifecycle.
type RangeState uint8

const (
	// RangeActive ranges accept inserts into base pages and updates into tail pages.
	RangeActive RangeState = iota
	// RangeSealed ranges have full base pages; they still accept updates.
	RangeSealed
	// RangeMerging ranges are being consolidated by the merge engine.
	RangeMerging
)

func (s RangeState) String() string {
	switch s {
	case RangeActive:
		return "active"
	case RangeSealed:
		return "sealed"
	case RangeMerging:
		return "merging"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// PageRange owns the base page-sets for a band of RIDs together with the tail
// chain holding their pending updates. A PageRange is not safe for concurrent
// mutation; the owning table serialises access.
type PageRange struct {
	id          uint32
	dataColumns int
	maxBaseSets int

	base []*PageSet
	tail []*PageSet
	sets map[uint32]*PageSet

	nextSetID   uint32
	state       RangeState
	watermark   int64
	pendingTail int
}

// NewPageRange creates an empty, active range.
func NewPageRange(id uint32, dataColumns, maxBaseSets int) *PageRange {
	if maxBaseSets < 1 {
		maxBaseSets = 1
	}
	return &PageRange{
		id:          id,
		dataColumns: dataColumns,
		maxBaseSets: maxBaseSets,
		sets:        make(map[uint32]*PageSet),
	}
}

// ID returns the range identifier.
func (r *PageRange) ID() uint32 { return r.id }

// State returns the lifecycle state.
func (r *PageRange) State() RangeState { return r.state }

// SetState moves the range to state.
func (r *PageRange) SetState(state RangeState) { r.state = state }

// Watermark returns the last tail sequence number folded into base pages.
func (r *PageRange) Watermark() int64 { return r.watermark }

// PendingTail returns the number of tail records appended since the last merge.
func (r *PageRange) PendingTail() int { return r.pendingTail }

// Capacity returns the number of base records the range can hold.
func (r *PageRange) Capacity() int { return r.maxBaseSets * PageCapacity }

// BaseRecords returns the number of base slots in use.
func (r *PageRange) BaseRecords() int {
	n := 0
	for _, s := range r.base {
		n += s.Len()
	}
	return n
}

// BaseSets returns the base page-sets in order.
func (r *PageRange) BaseSets() []*PageSet { return r.base }

// TailSets returns the tail page-sets in append order.
func (r *PageRange) TailSets() []*PageSet { return r.tail }

// AllocateSet reserves a fresh page-set id and registers the set so its
// locations resolve. The set is not linked into the base or tail chain.
func (r *PageRange) AllocateSet(kind Kind) (*PageSet, error) {
	if r.nextSetID > MaxSetID {
		return nil, fmt.Errorf("storage: range %d exhausted page set ids", r.id)
	}
	set := NewPageSet(r.nextSetID, kind, r.dataColumns)
	r.nextSetID++
	r.sets[set.ID()] = set
	return set, nil
}

// AppendBase stores a new base record whose indirection points at itself.
// ErrPageFull means the range is sealed and the caller must allocate a new
// range.
func (r *PageRange) AppendBase(row []int64) (Location, error) {
	if r.state == RangeSealed {
		return Location{}, ErrPageFull
	}
	if len(row) != MetaColumns+r.dataColumns {
		return Location{}, fmt.Errorf("storage: record has %d columns, range %d expects %d", len(row), r.id, MetaColumns+r.dataColumns)
	}
	var set *PageSet
	if n := len(r.base); n > 0 && r.base[n-1].HasCapacity() {
		set = r.base[n-1]
	} else {
		if len(r.base) >= r.maxBaseSets {
			r.state = RangeSealed
			return Location{}, ErrPageFull
		}
		var err error
		if set, err = r.AllocateSet(KindBase); err != nil {
			return Location{}, err
		}
		r.base = append(r.base, set)
	}
	loc := r.NextLocation(set)
	row[IndirectionColumn] = loc.Pack()
	if _, err := set.Append(row); err != nil {
		return Location{}, err
	}
	if len(r.base) == r.maxBaseSets && !set.HasCapacity() {
		r.state = RangeSealed
	}
	return loc, nil
}

// NextLocation returns the location the next record appended to set will
// occupy.
func (r *PageRange) NextLocation(set *PageSet) Location {
	return Location{Range: r.id, Kind: set.Kind(), Set: set.ID(), Slot: uint16(set.Len())}
}

// AppendTail stores an update record at the end of the tail chain, growing
// the chain when the last tail page-set is full.
func (r *PageRange) AppendTail(row []int64) (Location, error) {
	var set *PageSet
	if n := len(r.tail); n > 0 && r.tail[n-1].HasCapacity() {
		set = r.tail[n-1]
	} else {
		var err error
		if set, err = r.AllocateSet(KindTail); err != nil {
			return Location{}, err
		}
		r.tail = append(r.tail, set)
	}
	slot, err := set.Append(row)
	if err != nil {
		return Location{}, err
	}
	r.pendingTail++
	return Location{Range: r.id, Kind: KindTail, Set: set.ID(), Slot: uint16(slot)}, nil
}

// Set resolves a page-set id.
func (r *PageRange) Set(id uint32) (*PageSet, error) {
	set, ok := r.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: range %d set %d", ErrUnknownPageSet, r.id, id)
	}
	return set, nil
}

// Row reads the physical record stored at loc.
func (r *PageRange) Row(loc Location) ([]int64, error) {
	if loc.Range != r.id {
		return nil, fmt.Errorf("storage: location %s is not in range %d", loc, r.id)
	}
	set, err := r.Set(loc.Set)
	if err != nil {
		return nil, err
	}
	return set.Row(int(loc.Slot))
}

// Install replaces the base chain with the merged page-sets, releases every
// previous base and tail set, and records the new watermark. The tail chain
// restarts empty.
func (r *PageRange) Install(base []*PageSet, watermark int64) {
	keep := make(map[uint32]*PageSet, len(base))
	for _, s := range base {
		keep[s.ID()] = s
	}
	r.base = slices.Clone(base)
	r.tail = nil
	r.sets = keep
	r.pendingTail = 0
	if watermark > r.watermark {
		r.watermark = watermark
	}
}

// RangeSnapshot carries the persisted shape of a page range.
type RangeSnapshot struct {
	ID          uint32
	State       RangeState
	Watermark   int64
	PendingTail int
	NextSetID   uint32
	Base        []*PageSet
	Tail        []*PageSet
}

// Snapshot captures the range for persistence.
func (r *PageRange) Snapshot() RangeSnapshot {
	return RangeSnapshot{
		ID:          r.id,
		State:       r.state,
		Watermark:   r.watermark,
		PendingTail: r.pendingTail,
		NextSetID:   r.nextSetID,
		Base:        r.base,
		Tail:        r.tail,
	}
}

// RestorePageRange rebuilds a range from a snapshot.
func RestorePageRange(snap RangeSnapshot, dataColumns, maxBaseSets int) (*PageRange, error) {
	r := NewPageRange(snap.ID, dataColumns, maxBaseSets)
	r.state = snap.State
	if r.state == RangeMerging {
		r.state = RangeActive
	}
	r.watermark = snap.Watermark
	r.pendingTail = snap.PendingTail
	r.nextSetID = snap.NextSetID
	for _, s := range append(slices.Clone(snap.Base), snap.Tail...) {
		if s.ID() >= r.nextSetID {
			return nil, fmt.Errorf("storage: range %d set id %d beyond allocator %d", snap.ID, s.ID(), r.nextSetID)
		}
		if s.Width() != MetaColumns+dataColumns {
			return nil, fmt.Errorf("storage: range %d set %d has width %d", snap.ID, s.ID(), s.Width())
		}
		r.sets[s.ID()] = s
	}
	r.base = slices.Clone(snap.Base)
	r.tail = slices.Clone(snap.Tail)
	return r, nil
}
