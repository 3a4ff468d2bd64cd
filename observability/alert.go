package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Alert is a row in the system_alerts table.
type Alert struct {
	AlertID     string     `json:"alert_id"`
	AlertType   string     `json:"alert_type"` // e.g. "panel_recycle_failed", "heap_limit_exceeded"
	Severity    string     `json:"severity"`   // "info", "warning", "critical"
	ComponentID string     `json:"component_id"`
	DetectedAt  time.Time  `json:"detected_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
}

// RecordAlert inserts a new unresolved alert and returns its generated ID.
func RecordAlert(ctx context.Context, db *sql.DB, alertType, severity, componentID, title, description string) (string, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO system_alerts (alert_type, severity, component_id, detected_at, title, description)
		VALUES (?,?,?,?,?,?)
		RETURNING alert_id`,
		alertType, severity, componentID, time.Now().Unix(), title, description)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("record alert: %w", err)
	}
	return id, nil
}

// ResolveAlert marks an alert as resolved. No-op if the alert is unknown or
// already resolved.
func ResolveAlert(ctx context.Context, db *sql.DB, alertID string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE system_alerts SET resolved_at = ? WHERE alert_id = ? AND resolved_at IS NULL",
		time.Now().Unix(), alertID)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return nil
}

// UnresolvedAlerts returns open alerts, most recent first.
func UnresolvedAlerts(ctx context.Context, db *sql.DB, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT alert_id, alert_type, severity, COALESCE(component_id, ''),
		       detected_at, resolved_at, title, COALESCE(description, '')
		FROM system_alerts
		WHERE resolved_at IS NULL
		ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		var a Alert
		var detected int64
		var resolved sql.NullInt64
		if err := rows.Scan(&a.AlertID, &a.AlertType, &a.Severity, &a.ComponentID,
			&detected, &resolved, &a.Title, &a.Description); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.DetectedAt = time.Unix(detected, 0)
		if resolved.Valid {
			t := time.Unix(resolved.Int64, 0)
			a.ResolvedAt = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
