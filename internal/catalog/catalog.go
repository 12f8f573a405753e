package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// FileName is the catalog file inside a database directory.
const FileName = "catalog.lsc"

const (
	catalogMagic   = "LSCAT001"
	catalogVersion = uint16(1)
	maxColumns     = 64
)

var (
	// ErrTableExists is returned when creating a table whose name is taken.
	ErrTableExists = errors.New("catalog: table already exists")

	// ErrTableNotFound is returned for an unknown table name.
	ErrTableNotFound = errors.New("catalog: table not found")
)

// Table captures the definition of a user table. Every column is a 64-bit
// integer; KeyColumn holds the primary key.
type Table struct {
	Name       string
	NumColumns int
	KeyColumn  int
	// Indexed lists secondary index columns in ascending order.
	Indexed  []int
	RowCount uint64
}

// FileName returns the page file holding the table's data.
func (t *Table) FileName() string {
	return strings.ToLower(t.Name) + ".tbl"
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Indexed = append([]int(nil), t.Indexed...)
	return &cp
}

// Catalog holds definitions of all tables within a database directory.
// Every mutation is written through to disk.
type Catalog struct {
	path   string
	id     uuid.UUID
	tables map[string]*Table
}

// Create writes an empty catalog with a fresh database id to dir.
func Create(dir string) (*Catalog, error) {
	cat := &Catalog{
		path:   filepath.Join(dir, FileName),
		id:     uuid.New(),
		tables: make(map[string]*Table),
	}
	if err := cat.persist(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Load reads the catalog stored in dir.
func Load(dir string) (*Catalog, error) {
	path := filepath.Join(dir, FileName)
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat := &Catalog{path: path, tables: make(map[string]*Table)}

	reader := bytes.NewReader(payload)
	var magic [8]byte
	if _, err := io.ReadFull(reader, magic[:]); err != nil || string(magic[:]) != catalogMagic {
		return nil, fmt.Errorf("catalog: %s is not a catalog file", path)
	}
	var version uint16
	if err := binary.Read(reader, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != catalogVersion {
		return nil, fmt.Errorf("catalog: unsupported version %d", version)
	}
	if _, err := io.ReadFull(reader, cat.id[:]); err != nil {
		return nil, fmt.Errorf("catalog: read database id: %w", err)
	}

	var tableCount uint16
	if err := binary.Read(reader, binary.LittleEndian, &tableCount); err != nil {
		return nil, err
	}
	for i := uint16(0); i < tableCount; i++ {
		name, err := readString(reader)
		if err != nil {
			return nil, err
		}
		var header struct {
			NumColumns uint16
			KeyColumn  uint16
			RowCount   uint64
			Indexed    uint16
		}
		if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
			return nil, err
		}
		table := &Table{
			Name:       name,
			NumColumns: int(header.NumColumns),
			KeyColumn:  int(header.KeyColumn),
			RowCount:   header.RowCount,
		}
		for j := uint16(0); j < header.Indexed; j++ {
			var col uint16
			if err := binary.Read(reader, binary.LittleEndian, &col); err != nil {
				return nil, err
			}
			table.Indexed = append(table.Indexed, int(col))
		}
		if err := validate(table); err != nil {
			return nil, err
		}
		cat.tables[strings.ToLower(name)] = table
	}
	return cat, nil
}

func readString(r *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func writeString(buf *bytes.Buffer, value string) error {
	if len(value) > 0xFFFF {
		return fmt.Errorf("catalog: string too long")
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(value))); err != nil {
		return err
	}
	_, err := buf.WriteString(value)
	return err
}

func (c *Catalog) persist() error {
	buf := &bytes.Buffer{}
	buf.WriteString(catalogMagic)
	if err := binary.Write(buf, binary.LittleEndian, catalogVersion); err != nil {
		return err
	}
	buf.Write(c.id[:])
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(c.tables))); err != nil {
		return err
	}
	for _, table := range c.sorted() {
		if err := writeString(buf, table.Name); err != nil {
			return err
		}
		header := struct {
			NumColumns uint16
			KeyColumn  uint16
			RowCount   uint64
			Indexed    uint16
		}{uint16(table.NumColumns), uint16(table.KeyColumn), table.RowCount, uint16(len(table.Indexed))}
		if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
			return err
		}
		for _, col := range table.Indexed {
			if err := binary.Write(buf, binary.LittleEndian, uint16(col)); err != nil {
				return err
			}
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *Catalog) sorted() []*Table {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Table, 0, len(names))
	for _, name := range names {
		out = append(out, c.tables[name])
	}
	return out
}

func validate(t *Table) error {
	if t.Name == "" {
		return fmt.Errorf("catalog: table name required")
	}
	for _, r := range t.Name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("catalog: invalid character %q in table name %s", r, t.Name)
		}
	}
	if t.NumColumns <= 0 || t.NumColumns > maxColumns {
		return fmt.Errorf("catalog: table %s: column count %d outside 1..%d", t.Name, t.NumColumns, maxColumns)
	}
	if t.KeyColumn < 0 || t.KeyColumn >= t.NumColumns {
		return fmt.Errorf("catalog: table %s: key column %d out of range", t.Name, t.KeyColumn)
	}
	for _, col := range t.Indexed {
		if col < 0 || col >= t.NumColumns || col == t.KeyColumn {
			return fmt.Errorf("catalog: table %s: invalid index column %d", t.Name, col)
		}
	}
	return nil
}

// ID returns the database id assigned when the catalog was created.
func (c *Catalog) ID() uuid.UUID { return c.id }

// CreateTable registers a new table definition.
func (c *Catalog) CreateTable(name string, numColumns, keyColumn int) (*Table, error) {
	table := &Table{Name: name, NumColumns: numColumns, KeyColumn: keyColumn}
	if err := validate(table); err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	if _, ok := c.tables[lower]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	c.tables[lower] = table
	if err := c.persist(); err != nil {
		delete(c.tables, lower)
		return nil, err
	}
	return table.clone(), nil
}

// DropTable removes a table definition. The caller removes the data file.
func (c *Catalog) DropTable(name string) error {
	lower := strings.ToLower(name)
	table, ok := c.tables[lower]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(c.tables, lower)
	if err := c.persist(); err != nil {
		c.tables[lower] = table
		return err
	}
	return nil
}

// GetTable retrieves the table definition if present.
func (c *Catalog) GetTable(name string) (*Table, bool) {
	table, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return table.clone(), true
}

// ListTables returns table definition snapshots in name order.
func (c *Catalog) ListTables() []*Table {
	tables := c.sorted()
	for i, t := range tables {
		tables[i] = t.clone()
	}
	return tables
}

// SetIndexed records the secondary index columns of a table.
func (c *Catalog) SetIndexed(name string, columns []int) error {
	table, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	next := table.clone()
	next.Indexed = append([]int(nil), columns...)
	sort.Ints(next.Indexed)
	if err := validate(next); err != nil {
		return err
	}
	prev := table.Indexed
	table.Indexed = next.Indexed
	if err := c.persist(); err != nil {
		table.Indexed = prev
		return err
	}
	return nil
}

// SetRowCount records the number of live rows last saved for a table.
func (c *Catalog) SetRowCount(name string, count uint64) error {
	table, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	table.RowCount = count
	return c.persist()
}
