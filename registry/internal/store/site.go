package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/quai/dbopen"
)

// ListSites returns all sites in position order.
func (s *Store) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, url, color, position, created_at, updated_at
		FROM sites ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site, err := scanSiteRows(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SaveAll persists the full ordered sequence, replacing whatever was stored.
// Positions are rewritten from slice order; zero timestamps are filled in.
// Runs in a single transaction with SQLITE_BUSY retry.
func (s *Store) SaveAll(ctx context.Context, sites []*Site) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sites`); err != nil {
			return fmt.Errorf("clear sites: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sites (id, name, url, color, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, site := range sites {
			site.Position = i
			if site.CreatedAt == 0 {
				site.CreatedAt = now
			}
			if site.UpdatedAt == 0 {
				site.UpdatedAt = now
			}
			if _, err := stmt.ExecContext(ctx,
				site.ID, site.Name, site.URL, site.Color, site.Position,
				site.CreatedAt, site.UpdatedAt,
			); err != nil {
				return fmt.Errorf("insert site %s: %w", site.ID, err)
			}
		}
		return nil
	})
}

func scanSiteRows(rows *sql.Rows) (*Site, error) {
	var site Site
	err := rows.Scan(
		&site.ID, &site.Name, &site.URL, &site.Color, &site.Position,
		&site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	return &site, nil
}
