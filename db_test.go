package main

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/robalobadob/orkbattle/assets"
)

func TestMigrateEmbedded(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "nested", "orkbattle.db"))
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	migrations, err := assets.Migrations()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := migrate(db, migrations); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"sessions", "turns", "run_results", "custom_words"} {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("recorded %d migrations, want 2", applied)
	}
}

func TestMigrateOrderAndFailure(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "order.db"))
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"002_seed.sql":  {Data: []byte(`INSERT INTO waves(n) VALUES (1);`)},
		"001_waves.sql": {Data: []byte(`CREATE TABLE waves (n INTEGER NOT NULL);`)},
		"README.md":     {Data: []byte(`not a migration`)},
	}
	if err := migrate(db, fsys); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM waves`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("waves rows = %d, err %v", n, err)
	}

	fsys["003_broken.sql"] = &fstest.MapFile{Data: []byte(`INSERT INTO nowhere VALUES (1);`)}
	if err := migrate(db, fsys); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	var recorded int
	_ = db.QueryRow(`SELECT COUNT(*) FROM _migrations WHERE name='003_broken.sql'`).Scan(&recorded)
	if recorded != 0 {
		t.Fatal("failed migration was recorded")
	}
}
