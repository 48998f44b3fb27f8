package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clearpoint-monitor/internal/types"
)

const alertColumns = `id, alert_type, device_id, device_kind, device_name, customer_id, customer_name,
	message, severity, resolved, created_at, resolved_at`

const insertAlertQuery = `
	INSERT INTO system_alerts (id, alert_type, device_id, device_kind, device_name, customer_id, customer_name,
		message, severity, resolved, created_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// AlertFilter narrows ListAlerts results
type AlertFilter struct {
	Resolved   *bool
	DeviceID   string
	CustomerID string
	Limit      int
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var (
		a            types.Alert
		alertType    string
		deviceKind   string
		deviceName   sql.NullString
		customerID   sql.NullString
		customerName sql.NullString
		severity     string
		resolvedAt   sql.NullTime
	)
	if err := row.Scan(&a.ID, &alertType, &a.DeviceID, &deviceKind, &deviceName, &customerID, &customerName,
		&a.Message, &severity, &a.Resolved, &a.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	a.Type = types.FaultType(alertType)
	a.DeviceKind = types.DeviceKind(deviceKind)
	a.DeviceName = deviceName.String
	a.CustomerID = customerID.String
	a.CustomerName = customerName.String
	a.Severity = types.Severity(severity)
	a.CreatedAt = a.CreatedAt.UTC()
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}

func (db *DB) findAlert(ctx context.Context, query string, args ...interface{}) (*types.Alert, error) {
	a, err := scanAlert(db.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (db *DB) listAlerts(ctx context.Context, query string, args ...interface{}) ([]types.Alert, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// FindOpenAlert returns the unresolved alert for the pair, or nil
func (db *DB) FindOpenAlert(ctx context.Context, deviceID string, fault types.FaultType) (*types.Alert, error) {
	a, err := db.findAlert(ctx, `SELECT `+alertColumns+` FROM system_alerts
		WHERE device_id = ? AND alert_type = ? AND resolved = FALSE
		ORDER BY created_at DESC LIMIT 1`, deviceID, string(fault))
	if err != nil {
		return nil, fmt.Errorf("failed to find open alert for %s/%s: %w", deviceID, fault, err)
	}
	return a, nil
}

// FindRecentAlert returns any alert for the pair created at or after since,
// ignoring excludeID, or nil
func (db *DB) FindRecentAlert(ctx context.Context, deviceID string, fault types.FaultType, since time.Time, excludeID string) (*types.Alert, error) {
	a, err := db.findAlert(ctx, `SELECT `+alertColumns+` FROM system_alerts
		WHERE device_id = ? AND alert_type = ? AND created_at >= ? AND id <> ?
		ORDER BY created_at DESC LIMIT 1`, deviceID, string(fault), utc(since), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent alert for %s/%s: %w", deviceID, fault, err)
	}
	return a, nil
}

func alertArgs(a types.Alert) []interface{} {
	return []interface{}{
		a.ID, string(a.Type), a.DeviceID, string(a.DeviceKind), nullString(a.DeviceName),
		nullString(a.CustomerID), nullString(a.CustomerName), a.Message, string(a.Severity),
		a.Resolved, utc(a.CreatedAt), nullTime(a.ResolvedAt),
	}
}

// InsertAlert stores a single alert
func (db *DB) InsertAlert(ctx context.Context, a types.Alert) error {
	if _, err := db.exec(ctx, db.conn, insertAlertQuery, alertArgs(a)...); err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}
	return nil
}

// InsertAlerts stores alerts in one transaction. Either all are stored or none.
func (db *DB) InsertAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, a := range alerts {
		if _, err := db.exec(ctx, tx, insertAlertQuery, alertArgs(a)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// ResolveAlert marks an alert resolved
func (db *DB) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	return db.SetAlertResolved(ctx, alertID, true, resolvedAt)
}

// SetAlertResolved sets or clears the resolved flag. Reopening an alert fails
// if another open alert already exists for the same pair.
func (db *DB) SetAlertResolved(ctx context.Context, alertID string, resolved bool, at time.Time) error {
	var resolvedAt interface{}
	if resolved {
		resolvedAt = utc(at)
	}
	res, err := db.exec(ctx, db.conn, "UPDATE system_alerts SET resolved = ?, resolved_at = ? WHERE id = ?",
		resolved, resolvedAt, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alertID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// ListOpenAlerts returns every unresolved alert
func (db *DB) ListOpenAlerts(ctx context.Context) ([]types.Alert, error) {
	alerts, err := db.listAlerts(ctx, `SELECT `+alertColumns+` FROM system_alerts WHERE resolved = FALSE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	return alerts, nil
}

// ListAlerts returns alerts matching the filter, newest first
func (db *DB) ListAlerts(ctx context.Context, filter AlertFilter) ([]types.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, *filter.Resolved)
	}
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}

	query := `SELECT ` + alertColumns + ` FROM system_alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query += " LIMIT ?"
	args = append(args, limit)

	alerts, err := db.listAlerts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// GetAlert returns one alert by id
func (db *DB) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	a, err := db.findAlert(ctx, `SELECT `+alertColumns+` FROM system_alerts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// DeleteResolvedAlerts removes every resolved alert and returns the count
func (db *DB) DeleteResolvedAlerts(ctx context.Context) (int64, error) {
	res, err := db.exec(ctx, db.conn, "DELETE FROM system_alerts WHERE resolved = TRUE")
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeResolvedAlerts removes alerts resolved before the cutoff
func (db *DB) PurgeResolvedAlerts(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.exec(ctx, db.conn, "DELETE FROM system_alerts WHERE resolved = TRUE AND resolved_at < ?", utc(before))
	if err != nil {
		return 0, fmt.Errorf("failed to purge resolved alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
