// Package store provides the data access layer for the site registry.
//
// The registry keeps its working set in memory; the store's job is to load
// it at startup and persist the full ordered sequence after every mutation.
// Partial updates are deliberately absent: SaveAll rewrites the sites table
// in one transaction so the on-disk order always matches what callers saw.
package store

import "database/sql"

// Store wraps the registry database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
