package store

import "database/sql"

// Schema is the favicon cache schema. One row per host; a fresh fetch
// replaces the previous row, so the table never grows past the set of
// hosts ever resolved.
const Schema = `
-- Cached favicons, keyed by hostname
CREATE TABLE IF NOT EXISTS favicons (
    host       TEXT PRIMARY KEY,
    data_url   TEXT NOT NULL,
    fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_favicons_fetched_at ON favicons(fetched_at);
`

// ApplySchema creates the favicon tables on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
