package storage

import "fmt"

const (
	slotBits = 9
	kindBits = 1
	setBits  = 22

	// MaxSetID is the largest page-set id a Location can address.
	MaxSetID = 1<<setBits - 1
)

// Location addresses one physical record: a slot inside a page-set of a page
// range. Locations are plain values so lineage links never hold pointers into
// page memory.
type Location struct {
	Range uint32
	Kind  Kind
	Set   uint32
	Slot  uint16
}

func (l Location) String() string {
	return fmt.Sprintf("%d/%s/%d/%d", l.Range, l.Kind, l.Set, l.Slot)
}

// Pack encodes the location into a single integer so it can be stored in the
// indirection column.
func (l Location) Pack() int64 {
	v := uint64(l.Range)<<(setBits+kindBits+slotBits) |
		uint64(l.Set&MaxSetID)<<(kindBits+slotBits) |
		uint64(l.Kind&1)<<slotBits |
		uint64(l.Slot)&(1<<slotBits-1)
	return int64(v)
}

// UnpackLocation reverses Pack.
func UnpackLocation(v int64) Location {
	u := uint64(v)
	return Location{
		Range: uint32(u >> (setBits + kindBits + slotBits)),
		Set:   uint32(u>>(kindBits+slotBits)) & MaxSetID,
		Kind:  Kind(u>>slotBits) & 1,
		Slot:  uint16(u & (1<<slotBits - 1)),
	}
}
