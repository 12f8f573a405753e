package table

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/example/lstore/internal/storage"
)

// recordCache keeps decoded physical records keyed by packed location.
// Slots are immutable once written and page-set ids are never reused within
// a table, so an entry never goes stale.
type recordCache struct {
	c *ristretto.Cache[uint64, []int64]
}

func newRecordCache(size int64) (*recordCache, error) {
	if size <= 0 {
		return nil, nil
	}
	// Cost counts records, not bytes.
	c, err := ristretto.NewCache(&ristretto.Config[uint64, []int64]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &recordCache{c: c}, nil
}

// get returns a cached row. Callers must not modify it.
func (rc *recordCache) get(loc storage.Location) ([]int64, bool) {
	if rc == nil {
		return nil, false
	}
	return rc.c.Get(uint64(loc.Pack()))
}

func (rc *recordCache) put(loc storage.Location, row []int64) {
	if rc == nil {
		return
	}
	rc.c.Set(uint64(loc.Pack()), row, 1)
}

func (rc *recordCache) close() {
	if rc == nil {
		return
	}
	rc.c.Close()
}
