package store

import (
	"context"
	"database/sql"
	"time"
)

// State keys used by the registry.
const (
	KeyActiveSite = "active_site_id"
)

// GetState returns the value for key, or "" if the key is not set.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM registry_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetState upserts a key/value pair.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO registry_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// DeleteState removes a key. No-op if the key is not set.
func (s *Store) DeleteState(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM registry_state WHERE key = ?`, key)
	return err
}
