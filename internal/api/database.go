package api

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/lstore/internal/catalog"
	"github.com/example/lstore/internal/exec"
	"github.com/example/lstore/internal/logging"
	"github.com/example/lstore/internal/table"
)

var (
	// ErrTableExists is returned when creating a table whose name is taken.
	ErrTableExists = catalog.ErrTableExists

	// ErrTableNotFound is returned for an unknown table name.
	ErrTableNotFound = catalog.ErrTableNotFound

	errClosed = errors.New("api: database not open")
)

// Config carries the settings applied to every table of a database.
type Config struct {
	Table table.Config
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{Table: table.DefaultConfig()}
}

// Database is a directory of tables described by a catalog.
type Database struct {
	dir string
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	catalog *catalog.Catalog
	tables  map[string]*table.Table
}

// Create initialises an empty database directory.
func Create(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	_, err := catalog.Create(dir)
	return err
}

// Open loads the database in dir, creating it when the directory holds no
// catalog yet. Table files are loaded concurrently and their indexes rebuilt.
func Open(dir string, cfg Config) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(dir)
	if errors.Is(err, fs.ErrNotExist) {
		cat, err = catalog.Create(dir)
	}
	if err != nil {
		return nil, err
	}

	db := &Database{
		dir:     dir,
		cfg:     cfg,
		log:     logging.WithComponent("api").With("dir", dir),
		catalog: cat,
		tables:  make(map[string]*table.Table),
	}

	defs := cat.ListTables()
	loaded := make([]*table.Table, len(defs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			t, err := db.openTable(def)
			if err != nil {
				return fmt.Errorf("api: open table %s: %w", def.Name, err)
			}
			loaded[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range loaded {
			if t != nil {
				t.Close()
			}
		}
		return nil, err
	}
	for i, def := range defs {
		db.tables[strings.ToLower(def.Name)] = loaded[i]
	}
	db.log.Info("database opened", "id", cat.ID(), "tables", len(defs))
	return db, nil
}

func (db *Database) openTable(def *catalog.Table) (*table.Table, error) {
	path := filepath.Join(db.dir, def.FileName())
	t, err := table.Load(path, def.Name, db.cfg.Table, def.Indexed)
	if errors.Is(err, fs.ErrNotExist) {
		// created but never flushed
		t, err = table.New(def.Name, def.NumColumns, def.KeyColumn, db.cfg.Table)
		if err == nil {
			for _, col := range def.Indexed {
				if err = t.CreateIndex(col); err != nil {
					break
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if t.NumColumns() != def.NumColumns || t.KeyColumn() != def.KeyColumn {
		t.Close()
		return nil, fmt.Errorf("api: table file %s does not match its catalog entry", path)
	}
	return t, nil
}

// Dir returns the database directory.
func (db *Database) Dir() string { return db.dir }

// Flush writes every table to its file and records row counts and index
// columns in the catalog.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flushLocked()
}

func (db *Database) flushLocked() error {
	if db.catalog == nil {
		return errClosed
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range db.tables {
		t := t
		g.Go(func() error {
			return t.Save(filepath.Join(db.dir, strings.ToLower(t.Name())+".tbl"))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, t := range db.tables {
		stats := t.Stats()
		if err := db.catalog.SetRowCount(t.Name(), uint64(stats.Records)); err != nil {
			return err
		}
		secondary := slices.DeleteFunc(t.IndexedColumns(), func(c int) bool { return c == t.KeyColumn() })
		if err := db.catalog.SetIndexed(t.Name(), secondary); err != nil {
			return err
		}
	}
	db.log.Debug("database flushed", "tables", len(db.tables))
	return nil
}

// Close flushes every table and releases resources.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return nil
	}
	err := db.flushLocked()
	for _, t := range db.tables {
		t.Close()
	}
	db.catalog = nil
	db.tables = nil
	return err
}

// CreateTable creates an empty table with numColumns integer columns and
// the primary key at keyColumn.
func (db *Database) CreateTable(name string, numColumns, keyColumn int) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return nil, errClosed
	}
	if _, ok := db.catalog.GetTable(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	t, err := table.New(name, numColumns, keyColumn, db.cfg.Table)
	if err != nil {
		return nil, err
	}
	if _, err := db.catalog.CreateTable(name, numColumns, keyColumn); err != nil {
		t.Close()
		return nil, err
	}
	db.tables[strings.ToLower(name)] = t
	db.log.Info("table created", "table", name, "columns", numColumns, "key", keyColumn)
	return t, nil
}

// DropTable removes a table and its data file.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return errClosed
	}
	def, ok := db.catalog.GetTable(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if err := db.catalog.DropTable(name); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	if t, ok := db.tables[lower]; ok {
		t.Close()
		delete(db.tables, lower)
	}
	if err := os.Remove(filepath.Join(db.dir, def.FileName())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	db.log.Info("table dropped", "table", def.Name)
	return nil
}

// GetTable returns the open table called name.
func (db *Database) GetTable(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return nil, errClosed
	}
	t, ok := db.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Executor returns an executor bound to the table called name.
func (db *Database) Executor(name string) (*exec.Executor, error) {
	t, err := db.GetTable(name)
	if err != nil {
		return nil, err
	}
	return exec.New(t), nil
}

// Tables returns copies of the table definitions in name order.
func (db *Database) Tables() ([]*catalog.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.catalog == nil {
		return nil, errClosed
	}
	return db.catalog.ListTables(), nil
}
