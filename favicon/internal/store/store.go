// Package store provides the persistence layer for the favicon cache.
//
// Entries are keyed by hostname and carry the encoded data URL plus the
// fetch timestamp. Staleness is the caller's concern: the store never
// expires rows on its own, a stale row is simply overwritten by the next
// successful fetch.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Icon is one cached favicon.
type Icon struct {
	Host      string `json:"host"`
	DataURL   string `json:"data_url"`
	FetchedAt int64  `json:"fetched_at"` // UnixMilli
}

// Stats summarizes cache contents for the stats surface.
type Stats struct {
	Entries         int64 `json:"entries"`
	OldestFetchedAt int64 `json:"oldest_fetched_at,omitempty"`
	NewestFetchedAt int64 `json:"newest_fetched_at,omitempty"`
}

// Store wraps the favicon cache database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Get returns the cached icon for a host, or nil if none is cached.
func (s *Store) Get(ctx context.Context, host string) (*Icon, error) {
	var icon Icon
	err := s.DB.QueryRowContext(ctx,
		`SELECT host, data_url, fetched_at FROM favicons WHERE host = ?`, host,
	).Scan(&icon.Host, &icon.DataURL, &icon.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favicon: %w", err)
	}
	return &icon, nil
}

// Upsert inserts or replaces the cached icon for a host.
func (s *Store) Upsert(ctx context.Context, icon *Icon) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO favicons (host, data_url, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET data_url = excluded.data_url, fetched_at = excluded.fetched_at`,
		icon.Host, icon.DataURL, icon.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert favicon: %w", err)
	}
	return nil
}

// Stats returns entry count and fetch timestamp bounds.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var oldest, newest sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at) FROM favicons`,
	).Scan(&st.Entries, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("favicon stats: %w", err)
	}
	st.OldestFetchedAt = oldest.Int64
	st.NewestFetchedAt = newest.Int64
	return &st, nil
}
