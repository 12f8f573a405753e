package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/example/lstore/internal/catalog"
)

func TestCatalogCreateAndListTables(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Create(dir)
	if err != nil {
		t.Fatalf("create catalog: %v", err)
	}
	if cat.ID() == uuid.Nil {
		t.Fatalf("expected database id to be assigned")
	}

	if _, err := cat.CreateTable("people", 3, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := cat.CreateTable("Accounts", 2, 1); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := cat.CreateTable("PEOPLE", 1, 0); !errors.Is(err, catalog.ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}

	tables := cat.ListTables()
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0].Name != "Accounts" || tables[1].Name != "people" {
		t.Fatalf("unexpected order %s, %s", tables[0].Name, tables[1].Name)
	}
	if tables[0].FileName() != "accounts.tbl" {
		t.Fatalf("unexpected file name %s", tables[0].FileName())
	}
	got, ok := cat.GetTable("people")
	if !ok || got.NumColumns != 3 || got.KeyColumn != 0 {
		t.Fatalf("unexpected definition %+v", got)
	}
}

func TestCatalogPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Create(dir)
	if err != nil {
		t.Fatalf("create catalog: %v", err)
	}
	if _, err := cat.CreateTable("grades", 5, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := cat.SetIndexed("grades", []int{3, 1}); err != nil {
		t.Fatalf("set indexed: %v", err)
	}
	if err := cat.SetRowCount("grades", 42); err != nil {
		t.Fatalf("set row count: %v", err)
	}
	if _, err := cat.CreateTable("scratch", 1, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := cat.DropTable("scratch"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	loaded, err := catalog.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID() != cat.ID() {
		t.Fatalf("database id changed: %s -> %s", cat.ID(), loaded.ID())
	}
	tables := loaded.ListTables()
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	def := tables[0]
	if def.Name != "grades" || def.NumColumns != 5 || def.RowCount != 42 {
		t.Fatalf("unexpected definition %+v", def)
	}
	if !slices.Equal(def.Indexed, []int{1, 3}) {
		t.Fatalf("unexpected indexed columns %v", def.Indexed)
	}
	if _, err := os.Stat(filepath.Join(dir, catalog.FileName+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temporary catalog left behind: %v", err)
	}
}

func TestCatalogValidation(t *testing.T) {
	cat, err := catalog.Create(t.TempDir())
	if err != nil {
		t.Fatalf("create catalog: %v", err)
	}
	cases := []struct {
		name    string
		columns int
		key     int
	}{
		{"", 2, 0},
		{"bad/name", 2, 0},
		{"nocols", 0, 0},
		{"badkey", 2, 2},
	}
	for _, tc := range cases {
		if _, err := cat.CreateTable(tc.name, tc.columns, tc.key); err == nil {
			t.Fatalf("expected error creating %q", tc.name)
		}
	}
	if _, err := cat.CreateTable("ok", 2, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := cat.SetIndexed("ok", []int{0}); err == nil {
		t.Fatalf("expected error indexing the key column as secondary")
	}
	if err := cat.DropTable("missing"); !errors.Is(err, catalog.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestLoadRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, catalog.FileName), []byte("not a catalog"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := catalog.Load(dir); err == nil {
		t.Fatalf("expected error loading a foreign file")
	}
}
