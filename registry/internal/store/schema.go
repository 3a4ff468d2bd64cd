package store

import "database/sql"

// Schema is the registry schema. Sites carry an explicit position column;
// the row order in the table is never relied upon.
const Schema = `
-- Sidebar sites, ordered by position
CREATE TABLE IF NOT EXISTS sites (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    url        TEXT NOT NULL,
    position   INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_position ON sites(position);

-- Registry key/value state (active site id, seed marker)
CREATE TABLE IF NOT EXISTS registry_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// MigrationSiteColor adds the per-site accent color used by sidebar chips.
// Installs that predate the column get the neutral default.
const MigrationSiteColor = `
ALTER TABLE sites ADD COLUMN color TEXT NOT NULL DEFAULT '#808080';
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	applyColumnMigration(db, "sites", "color", MigrationSiteColor)
	return nil
}

// applyColumnMigration adds a column if it doesn't exist (idempotent).
func applyColumnMigration(db *sql.DB, table, column, ddl string) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil || count > 0 {
		return
	}
	db.Exec(ddl)
}
