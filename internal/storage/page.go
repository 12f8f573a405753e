package storage

import (
	"encoding/binary"
	"fmt"
)

const (
	// PageSize defines the fixed size of a physical column page.
	PageSize = 4096
	// SlotSize is the width of a single fixed-width integer slot.
	SlotSize = 8
	// PageCapacity is the number of slots a page can hold.
	PageCapacity = PageSize / SlotSize
)

// Kind tells base pages apart from tail pages.
type Kind uint8

const (
	KindBase Kind = iota
	KindTail
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindTail:
		return "tail"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Page is a column-oriented run of int64 slots. Values are only ever appended
// at the fill cursor; a full page never changes again.
type Page struct {
	kind   Kind
	column int
	fill   int
	data   []byte
}

// NewPage allocates an empty page for the given column.
func NewPage(kind Kind, column int) *Page {
	return &Page{kind: kind, column: column, data: make([]byte, PageSize)}
}

// LoadPage rebuilds a page from a persisted image holding fill slots.
func LoadPage(kind Kind, column int, data []byte, fill int) (*Page, error) {
	if len(data) != PageSize {
		return nil, errShortPage
	}
	if fill < 0 || fill > PageCapacity {
		return nil, fmt.Errorf("storage: invalid fill %d for column %d", fill, column)
	}
	buf := make([]byte, PageSize)
	copy(buf, data)
	return &Page{kind: kind, column: column, fill: fill, data: buf}, nil
}

// Kind reports whether this is a base or tail page.
func (p *Page) Kind() Kind { return p.kind }

// Column returns the physical column the page stores.
func (p *Page) Column() int { return p.column }

// Len returns the fill cursor.
func (p *Page) Len() int { return p.fill }

// HasCapacity reports whether another value fits.
func (p *Page) HasCapacity() bool { return p.fill < PageCapacity }

// Append writes value at the fill cursor and returns its slot.
func (p *Page) Append(value int64) (int, error) {
	if !p.HasCapacity() {
		return 0, ErrPageFull
	}
	slot := p.fill
	offset := slot * SlotSize
	binary.LittleEndian.PutUint64(p.data[offset:offset+SlotSize], uint64(value))
	p.fill++
	return slot, nil
}

// Read returns the value stored at slot.
func (p *Page) Read(slot int) (int64, error) {
	if slot < 0 || slot >= p.fill {
		return 0, fmt.Errorf("%w: slot %d of %d", ErrOutOfRange, slot, p.fill)
	}
	offset := slot * SlotSize
	return int64(binary.LittleEndian.Uint64(p.data[offset : offset+SlotSize])), nil
}

// Bytes exposes the page image for persistence.
func (p *Page) Bytes() []byte {
	return p.data
}
