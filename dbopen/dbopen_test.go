package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_Pragmas(t *testing.T) {
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys: got %d, want 1", fk)
	}
}

func TestOpen_WithSchema(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT)`))

	if _, err := db.Exec(`INSERT INTO things (name) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM things`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count: got %d, want 1", n)
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "app.db")

	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("Open with MkdirAll: %v", err)
	}
	db.Close()
}

func TestOpen_MissingParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist", "app.db")

	db, err := Open(path)
	if err == nil {
		db.Close()
		t.Fatal("expected error without MkdirAll")
	}
}
