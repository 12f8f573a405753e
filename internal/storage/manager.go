package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	headerMagic   = "LSTORE01"
	headerVersion = uint16(1)
)

// PageID represents the position of a page within a page file.
// Page 0 is reserved for the file header.
type PageID uint32

type fileHeader struct {
	Magic     [8]byte
	Version   uint16
	_padding  uint16
	PageCount uint32
	MetaRoot  uint32
	MetaSize  uint32
}

const headerSize = 8 + 2 + 2 + 4 + 4 + 4

// Manager reads and writes a page file: a header page followed by fixed-size
// page images and a metadata blob spread over consecutive pages.
type Manager struct {
	mu     sync.Mutex
	file   *os.File
	header fileHeader
}

// Create makes a new, empty page file at path, truncating any existing file.
func Create(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{file: f}
	copy(m.header.Magic[:], headerMagic)
	m.header.Version = headerVersion
	m.header.PageCount = 1 // header page only
	if err := m.flushHeaderLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// Open loads an existing page file.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	m := &Manager{file: f}
	if err := m.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadHeader() error {
	buf := make([]byte, PageSize)
	if _, err := io.ReadFull(m.file, buf); err != nil {
		return err
	}
	header, err := readHeader(buf)
	if err != nil {
		return err
	}
	m.header = *header
	return nil
}

// PageCount returns the number of pages in the file, header included.
func (m *Manager) PageCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header.PageCount
}

// Close flushes header information and closes the backing file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	if err := m.flushHeaderLocked(); err != nil {
		m.file.Close()
		m.file = nil
		return err
	}
	if err := m.file.Sync(); err != nil {
		m.file.Close()
		m.file = nil
		return err
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// ReadPage retrieves the raw bytes for the given page id.
func (m *Manager) ReadPage(id PageID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readPageLocked(id)
}

func (m *Manager) readPageLocked(id PageID) ([]byte, error) {
	if id == 0 || id >= PageID(m.header.PageCount) {
		return nil, fmt.Errorf("storage: page %d out of bounds", id)
	}
	buf := make([]byte, PageSize)
	offset := int64(id) * PageSize
	if _, err := m.file.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// AppendPage writes data as a new page at the end of the file.
func (m *Manager) AppendPage(data []byte) (PageID, error) {
	if len(data) != PageSize {
		return 0, errShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendPageLocked(data)
}

func (m *Manager) appendPageLocked(data []byte) (PageID, error) {
	id := PageID(m.header.PageCount)
	if _, err := m.file.WriteAt(data, int64(id)*PageSize); err != nil {
		return 0, err
	}
	m.header.PageCount++
	return id, nil
}

// WriteMeta stores payload over freshly appended pages and points the header
// at it. A later call replaces the reference; the old pages stay unused.
func (m *Manager) WriteMeta(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := PageID(m.header.PageCount)
	for off := 0; off < len(payload) || off == 0; off += PageSize {
		buf := make([]byte, PageSize)
		end := min(off+PageSize, len(payload))
		copy(buf, payload[off:end])
		if _, err := m.appendPageLocked(buf); err != nil {
			return err
		}
		if end == len(payload) {
			break
		}
	}
	m.header.MetaRoot = uint32(root)
	m.header.MetaSize = uint32(len(payload))
	return m.flushHeaderLocked()
}

// Meta returns the metadata blob written by WriteMeta.
func (m *Manager) Meta() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.header.MetaRoot == 0 {
		return nil, nil
	}
	size := int(m.header.MetaSize)
	payload := make([]byte, 0, size)
	for id := PageID(m.header.MetaRoot); len(payload) < size; id++ {
		buf, err := m.readPageLocked(id)
		if err != nil {
			return nil, fmt.Errorf("storage: read metadata: %w", err)
		}
		payload = append(payload, buf[:min(PageSize, size-len(payload))]...)
	}
	return payload, nil
}

func (m *Manager) flushHeaderLocked() error {
	buf := make([]byte, PageSize)
	writeHeader(buf, &m.header)
	_, err := m.file.WriteAt(buf, 0)
	return err
}

func readHeader(buf []byte) (*fileHeader, error) {
	if len(buf) < headerSize {
		return nil, errShortPage
	}
	h := &fileHeader{}
	copy(h.Magic[:], buf[:8])
	if string(h.Magic[:]) != headerMagic {
		return nil, errInvalidHeader
	}
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	if h.Version != headerVersion {
		return nil, fmt.Errorf("storage: unsupported header version %d", h.Version)
	}
	h.PageCount = binary.LittleEndian.Uint32(buf[12:16])
	h.MetaRoot = binary.LittleEndian.Uint32(buf[16:20])
	h.MetaSize = binary.LittleEndian.Uint32(buf[20:24])
	return h, nil
}

func writeHeader(buf []byte, h *fileHeader) {
	copy(buf[:8], []byte(headerMagic))
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.PageCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.MetaRoot)
	binary.LittleEndian.PutUint32(buf[20:24], h.MetaSize)
}
