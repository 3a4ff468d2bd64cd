package store

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Everything else in the registry depends on these tables.
	db := openTestDB(t)
	for _, table := range []string{"sites", "registry_state"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestApplySchema_ColorMigration(t *testing.T) {
	// WHAT: ApplySchema adds the color column to a pre-color database.
	// WHY: Existing installs must upgrade in place without data loss.
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	// Old shape: sites without color.
	if _, err := db.Exec(`CREATE TABLE sites (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, url TEXT NOT NULL,
		position INTEGER NOT NULL, created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL
	)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO sites (id, name, url, position, created_at, updated_at)
		VALUES ('s1', 'Old', 'https://old.example', 0, 1, 1)`); err != nil {
		t.Fatal(err)
	}

	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema on legacy db: %v", err)
	}

	var color string
	if err := db.QueryRow(`SELECT color FROM sites WHERE id='s1'`).Scan(&color); err != nil {
		t.Fatalf("color column missing after migration: %v", err)
	}
	if color != "#808080" {
		t.Errorf("migrated color: got %q, want default", color)
	}
}

func TestSaveAllAndList(t *testing.T) {
	// WHAT: SaveAll persists sites; ListSites returns them in position order.
	// WHY: The registry's persistence model is "rewrite the full sequence".
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	sites := []*Site{
		{ID: "a", Name: "Alpha", URL: "https://alpha.example", Color: "#111111"},
		{ID: "b", Name: "Beta", URL: "https://beta.example", Color: "#222222"},
		{ID: "c", Name: "Gamma", URL: "https://gamma.example", Color: "#333333"},
	}
	if err := s.SaveAll(ctx, sites); err != nil {
		t.Fatalf("save all: %v", err)
	}

	got, err := s.ListSites(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("count: got %d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("position %d: got %q, want %q", i, got[i].ID, want)
		}
		if got[i].Position != i {
			t.Errorf("position field for %q: got %d, want %d", got[i].ID, got[i].Position, i)
		}
	}
	if got[0].CreatedAt == 0 || got[0].UpdatedAt == 0 {
		t.Error("timestamps should be filled in on save")
	}
}

func TestSaveAll_ReplacesPrevious(t *testing.T) {
	// WHAT: A second SaveAll fully replaces the first set.
	// WHY: Stale rows must never survive a rewrite (remove, reorder, import).
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	s.SaveAll(ctx, []*Site{
		{ID: "a", Name: "Alpha", URL: "https://alpha.example", Color: "#111111"},
		{ID: "b", Name: "Beta", URL: "https://beta.example", Color: "#222222"},
	})
	s.SaveAll(ctx, []*Site{
		{ID: "b", Name: "Beta", URL: "https://beta.example", Color: "#222222"},
	})

	got, err := s.ListSites(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("count: got %d, want 1", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("remaining site: got %q, want b", got[0].ID)
	}
	if got[0].Position != 0 {
		t.Errorf("position rewritten: got %d, want 0", got[0].Position)
	}
}

func TestSaveAll_Empty(t *testing.T) {
	// WHAT: SaveAll with an empty slice clears the table.
	// WHY: Removing the last site must persist an empty sequence.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	s.SaveAll(ctx, []*Site{{ID: "a", Name: "A", URL: "https://a.example", Color: "#111111"}})
	if err := s.SaveAll(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	got, _ := s.ListSites(ctx)
	if len(got) != 0 {
		t.Fatalf("count after clear: got %d, want 0", len(got))
	}
}

func TestState(t *testing.T) {
	// WHAT: Get/Set/Delete round-trip on registry_state.
	// WHY: The active site id survives restarts through this table.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	v, err := s.GetState(ctx, KeyActiveSite)
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if v != "" {
		t.Fatalf("unset key: got %q, want empty", v)
	}

	if err := s.SetState(ctx, KeyActiveSite, "site-42"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _ = s.GetState(ctx, KeyActiveSite)
	if v != "site-42" {
		t.Fatalf("get: got %q", v)
	}

	// Upsert overwrites.
	s.SetState(ctx, KeyActiveSite, "site-43")
	v, _ = s.GetState(ctx, KeyActiveSite)
	if v != "site-43" {
		t.Fatalf("after upsert: got %q", v)
	}

	if err := s.DeleteState(ctx, KeyActiveSite); err != nil {
		t.Fatalf("delete: %v", err)
	}
	v, _ = s.GetState(ctx, KeyActiveSite)
	if v != "" {
		t.Fatalf("after delete: got %q, want empty", v)
	}
}
