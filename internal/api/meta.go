package api

import (
	"encoding/json"
	"slices"
	"strings"
)

// DatabaseMeta summarises the database structure for tooling integration.
type DatabaseMeta struct {
	Database string      `json:"database"`
	ID       string      `json:"id"`
	Tables   []TableMeta `json:"tables"`
}

// TableMeta captures table-level metadata and physical statistics.
type TableMeta struct {
	Name        string `json:"name"`
	Columns     int    `json:"columns"`
	KeyColumn   int    `json:"keyColumn"`
	Indexes     []int  `json:"indexes"`
	RowCount    int    `json:"rowCount"`
	Tombstones  int    `json:"tombstones"`
	Ranges      int    `json:"ranges"`
	BaseSets    int    `json:"baseSets"`
	TailSets    int    `json:"tailSets"`
	PendingTail int    `json:"pendingTail"`
}

// LoadDatabaseMeta opens the database in dir and extracts its metadata.
func LoadDatabaseMeta(dir string, cfg Config) (DatabaseMeta, error) {
	db, err := Open(dir, cfg)
	if err != nil {
		return DatabaseMeta{}, err
	}
	defer db.Close()
	return db.Meta()
}

// Meta gathers table definitions and live statistics for an open database.
func (db *Database) Meta() (DatabaseMeta, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return DatabaseMeta{}, errClosed
	}
	defs := db.catalog.ListTables()
	meta := DatabaseMeta{
		Database: db.Dir(),
		ID:       db.catalog.ID().String(),
		Tables:   make([]TableMeta, 0, len(defs)),
	}
	for _, def := range defs {
		tm := TableMeta{
			Name:      def.Name,
			Columns:   def.NumColumns,
			KeyColumn: def.KeyColumn,
			Indexes:   slices.Clone(def.Indexed),
		}
		if t, ok := db.tables[strings.ToLower(def.Name)]; ok {
			s := t.Stats()
			tm.Indexes = t.IndexedColumns()
			tm.RowCount = s.Records
			tm.Tombstones = s.Tombstones
			tm.Ranges = s.Ranges
			tm.BaseSets = s.BaseSets
			tm.TailSets = s.TailSets
			tm.PendingTail = s.PendingTail
		}
		meta.Tables = append(meta.Tables, tm)
	}
	return meta, nil
}

// MetadataJSON returns the metadata encoded as JSON.
func (db *Database) MetadataJSON() ([]byte, error) {
	meta, err := db.Meta()
	if err != nil {
		return nil, err
	}
	return json.Marshal(meta)
}
