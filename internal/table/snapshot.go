package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/example/lstore/internal/storage"
)

const snapshotVersion = 1

// Save writes the table's page ranges and page directory to a page file at
// path. The file is written beside path and renamed into place.
func (t *Table) Save(path string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tmp := path + ".tmp"
	mgr, err := storage.Create(tmp)
	if err != nil {
		return err
	}
	if err := t.writeSnapshot(mgr); err != nil {
		mgr.Close()
		os.Remove(tmp)
		return fmt.Errorf("table: save %s: %w", t.name, err)
	}
	pages := mgr.PageCount()
	if err := mgr.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	t.log.Debug("table saved", "path", path, "pages", pages, "ranges", len(t.ranges), "rids", t.directory.Len())
	return nil
}

func (t *Table) writeSnapshot(mgr *storage.Manager) error {
	var meta []byte
	meta = binary.AppendUvarint(meta, snapshotVersion)
	meta = binary.AppendUvarint(meta, uint64(t.numColumns))
	meta = binary.AppendUvarint(meta, uint64(t.key))
	meta = binary.AppendUvarint(meta, t.lastRID)
	meta = binary.AppendVarint(meta, t.clock)

	meta = binary.AppendUvarint(meta, uint64(len(t.ranges)))
	for _, r := range t.ranges {
		snap := r.Snapshot()
		meta = binary.AppendUvarint(meta, uint64(snap.ID))
		meta = binary.AppendUvarint(meta, uint64(snap.State))
		meta = binary.AppendVarint(meta, snap.Watermark)
		meta = binary.AppendUvarint(meta, uint64(snap.PendingTail))
		meta = binary.AppendUvarint(meta, uint64(snap.NextSetID))
		var err error
		if meta, err = appendSets(meta, mgr, snap.Base); err != nil {
			return err
		}
		if meta, err = appendSets(meta, mgr, snap.Tail); err != nil {
			return err
		}
	}

	meta = binary.AppendUvarint(meta, uint64(t.directory.Len()))
	err := t.directory.Scan(func(rid uint64, e storage.Entry) error {
		meta = binary.AppendUvarint(meta, rid)
		meta = binary.AppendVarint(meta, e.Location.Pack())
		if e.Deleted {
			meta = append(meta, 1)
		} else {
			meta = append(meta, 0)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return mgr.WriteMeta(meta)
}

func appendSets(meta []byte, mgr *storage.Manager, sets []*storage.PageSet) ([]byte, error) {
	meta = binary.AppendUvarint(meta, uint64(len(sets)))
	for _, set := range sets {
		meta = binary.AppendUvarint(meta, uint64(set.ID()))
		meta = binary.AppendUvarint(meta, uint64(set.Len()))
		for _, page := range set.Pages() {
			id, err := mgr.AppendPage(page.Bytes())
			if err != nil {
				return nil, err
			}
			meta = binary.AppendUvarint(meta, uint64(id))
		}
	}
	return meta, nil
}

// Load reads a table saved with Save. indexed lists the secondary index
// columns to rebuild alongside the primary key index.
func Load(path, name string, cfg Config, indexed []int) (*Table, error) {
	mgr, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()

	payload, err := mgr.Meta()
	if err != nil {
		return nil, err
	}
	r := &metaReader{r: bytes.NewReader(payload)}
	if v := r.uvarint(); r.err == nil && v != snapshotVersion {
		return nil, fmt.Errorf("table: %s: unsupported snapshot version %d", name, v)
	}
	numColumns := int(r.uvarint())
	key := int(r.uvarint())
	if r.err != nil {
		return nil, fmt.Errorf("table: load %s: %w", name, r.err)
	}

	t, err := New(name, numColumns, key, cfg)
	if err != nil {
		return nil, err
	}
	t.lastRID = r.uvarint()
	t.clock = r.varint()

	rangeCount := r.uvarint()
	t.ranges = t.ranges[:0]
	for i := uint64(0); i < rangeCount && r.err == nil; i++ {
		snap := storage.RangeSnapshot{
			ID:          uint32(r.uvarint()),
			State:       storage.RangeState(r.uvarint()),
			Watermark:   r.varint(),
			PendingTail: int(r.uvarint()),
			NextSetID:   uint32(r.uvarint()),
		}
		snap.Base = r.sets(mgr, storage.KindBase, numColumns)
		snap.Tail = r.sets(mgr, storage.KindTail, numColumns)
		if r.err != nil {
			break
		}
		if snap.ID != uint32(i) {
			return nil, fmt.Errorf("table: load %s: range %d stored at position %d", name, snap.ID, i)
		}
		rng, err := storage.RestorePageRange(snap, numColumns, t.cfg.BaseSetsPerRange)
		if err != nil {
			return nil, err
		}
		t.ranges = append(t.ranges, rng)
	}
	if len(t.ranges) == 0 {
		t.newRange()
	}

	entries := r.uvarint()
	for i := uint64(0); i < entries && r.err == nil; i++ {
		rid := r.uvarint()
		loc := storage.UnpackLocation(r.varint())
		deleted := r.byte() == 1
		t.directory.Put(rid, storage.Entry{Location: loc, Deleted: deleted})
	}
	if r.err != nil {
		return nil, fmt.Errorf("table: load %s: %w", name, r.err)
	}

	for _, col := range indexed {
		if col == key {
			continue
		}
		if err := t.index.Create(col); err != nil {
			return nil, err
		}
	}
	for _, col := range t.index.Columns() {
		if err := t.indexColumnLocked(col); err != nil {
			return nil, fmt.Errorf("table: load %s: rebuild index %d: %w", name, col, err)
		}
	}
	t.log.Debug("table loaded", "path", path, "ranges", len(t.ranges), "rids", t.directory.Len())
	return t, nil
}

// metaReader decodes the snapshot metadata blob, keeping the first error.
type metaReader struct {
	r   *bytes.Reader
	err error
}

func (m *metaReader) uvarint() uint64 {
	if m.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(m.r)
	if err != nil {
		m.err = truncated(err)
	}
	return v
}

func (m *metaReader) varint() int64 {
	if m.err != nil {
		return 0
	}
	v, err := binary.ReadVarint(m.r)
	if err != nil {
		m.err = truncated(err)
	}
	return v
}

func (m *metaReader) byte() byte {
	if m.err != nil {
		return 0
	}
	b, err := m.r.ReadByte()
	if err != nil {
		m.err = truncated(err)
	}
	return b
}

func (m *metaReader) sets(mgr *storage.Manager, kind storage.Kind, numColumns int) []*storage.PageSet {
	count := m.uvarint()
	var sets []*storage.PageSet
	for i := uint64(0); i < count && m.err == nil; i++ {
		id := uint32(m.uvarint())
		fill := int(m.uvarint())
		pages := make([]*storage.Page, storage.MetaColumns+numColumns)
		for col := range pages {
			pageID := storage.PageID(m.uvarint())
			if m.err != nil {
				return nil
			}
			buf, err := mgr.ReadPage(pageID)
			if err != nil {
				m.err = err
				return nil
			}
			if pages[col], err = storage.LoadPage(kind, col, buf, fill); err != nil {
				m.err = err
				return nil
			}
		}
		set, err := storage.RestorePageSet(id, kind, pages)
		if err != nil {
			m.err = err
			return nil
		}
		sets = append(sets, set)
	}
	return sets
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
