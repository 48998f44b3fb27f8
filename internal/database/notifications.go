package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearpoint-monitor/internal/monitoring"
)

// NotificationLog is one row of notification_logs
type NotificationLog struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alertId,omitempty"`
	Type      string    `json:"type"`
	DeviceID  string    `json:"deviceId"`
	Recipient string    `json:"recipient,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordNotification implements monitoring.NotificationRecorder
func (db *DB) RecordNotification(ctx context.Context, rec monitoring.NotificationRecord) error {
	n := rec.Notification
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO notification_logs (id, alert_id, notification_type, device_id, recipient, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), nullString(n.AlertID), string(n.Kind), n.DeviceID, nullString(n.Recipient),
		string(rec.Status), nullString(rec.Error), utc(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListNotifications returns the most recent notification log entries
func (db *DB) ListNotifications(ctx context.Context, limit int) ([]NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.query(ctx, `
		SELECT id, alert_id, notification_type, device_id, recipient, status, error_message, created_at
		FROM notification_logs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var logs []NotificationLog
	for rows.Next() {
		var (
			l         NotificationLog
			alertID   sql.NullString
			recipient sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(&l.ID, &alertID, &l.Type, &l.DeviceID, &recipient, &l.Status, &errMsg, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		l.AlertID = alertID.String
		l.Recipient = recipient.String
		l.Error = errMsg.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
