package storage

import "fmt"

// Physical metadata columns present in every page-set ahead of the data columns.
const (
	IndirectionColumn = iota
	RIDColumn
	TimestampColumn
	SchemaEncodingColumn

	// MetaColumns is the number of metadata columns.
	MetaColumns
)

// PageSet groups one page per physical column. All pages share the same fill
// cursor, so a slot index addresses one full physical record.
type PageSet struct {
	id    uint32
	kind  Kind
	pages []*Page
}

// NewPageSet allocates a page-set for dataColumns user columns plus metadata.
func NewPageSet(id uint32, kind Kind, dataColumns int) *PageSet {
	pages := make([]*Page, MetaColumns+dataColumns)
	for i := range pages {
		pages[i] = NewPage(kind, i)
	}
	return &PageSet{id: id, kind: kind, pages: pages}
}

// RestorePageSet wraps pages loaded from a snapshot.
func RestorePageSet(id uint32, kind Kind, pages []*Page) (*PageSet, error) {
	if len(pages) <= MetaColumns {
		return nil, fmt.Errorf("storage: page set %d has %d columns", id, len(pages))
	}
	fill := pages[0].Len()
	for _, p := range pages {
		if p.Len() != fill {
			return nil, fmt.Errorf("storage: page set %d has uneven fill", id)
		}
	}
	return &PageSet{id: id, kind: kind, pages: pages}, nil
}

// ID returns the range-local identifier of the set.
func (s *PageSet) ID() uint32 { return s.id }

// Kind reports whether the set holds base or tail records.
func (s *PageSet) Kind() Kind { return s.kind }

// Len returns the number of records stored.
func (s *PageSet) Len() int { return s.pages[0].Len() }

// Width returns the number of physical columns.
func (s *PageSet) Width() int { return len(s.pages) }

// Pages exposes the column pages for persistence.
func (s *PageSet) Pages() []*Page { return s.pages }

// HasCapacity reports whether another record fits.
func (s *PageSet) HasCapacity() bool { return s.pages[0].HasCapacity() }

// Append stores one physical record and returns its slot.
func (s *PageSet) Append(row []int64) (int, error) {
	if len(row) != len(s.pages) {
		return 0, fmt.Errorf("storage: record has %d columns, page set expects %d", len(row), len(s.pages))
	}
	if !s.HasCapacity() {
		return 0, ErrPageFull
	}
	slot := s.Len()
	for i, value := range row {
		if _, err := s.pages[i].Append(value); err != nil {
			return 0, err
		}
	}
	return slot, nil
}

// Read returns a single physical column value.
func (s *PageSet) Read(slot, column int) (int64, error) {
	if column < 0 || column >= len(s.pages) {
		return 0, fmt.Errorf("storage: column %d out of bounds", column)
	}
	return s.pages[column].Read(slot)
}

// Row returns every physical column at slot.
func (s *PageSet) Row(slot int) ([]int64, error) {
	row := make([]int64, len(s.pages))
	for i, page := range s.pages {
		v, err := page.Read(slot)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
