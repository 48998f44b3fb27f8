package database

import (
	"context"
	"fmt"
	"strconv"

	"clearpoint-monitor/internal/monitoring"
)

// Setting keys stored in system_settings
const (
	SettingHealthCheckTimeout     = "health_check_timeout_seconds"
	SettingStreamCheckTimeout     = "stream_check_timeout_seconds"
	SettingCriticalAlertThreshold = "critical_alert_threshold_minutes"
	SettingNotificationsEnabled   = "email_notifications_enabled"
	SettingAdminRecipient         = "admin_email"
	SettingMonitoringInterval     = "monitoring_interval_minutes"
	SettingAlertRetentionDays     = "alert_retention_days"
)

const (
	settingTypeNumber  = "number"
	settingTypeBoolean = "boolean"
	settingTypeString  = "string"
)

// SettingsStore reads monitoring settings from system_settings, filling
// missing keys from a base value.
type SettingsStore struct {
	db   *DB
	base monitoring.Settings
}

// NewSettingsStore creates a settings store with the given defaults
func NewSettingsStore(db *DB, base monitoring.Settings) *SettingsStore {
	return &SettingsStore{db: db, base: base}
}

// GetSettings implements monitoring.SettingsSource
func (s *SettingsStore) GetSettings(ctx context.Context) (monitoring.Settings, error) {
	return s.db.LoadSettings(ctx, s.base)
}

// LoadSettings overlays stored settings onto base
func (db *DB) LoadSettings(ctx context.Context, base monitoring.Settings) (monitoring.Settings, error) {
	rows, err := db.query(ctx, "SELECT setting_key, setting_value, setting_type FROM system_settings")
	if err != nil {
		return base, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := base
	for rows.Next() {
		var key, value, kind string
		if err := rows.Scan(&key, &value, &kind); err != nil {
			return base, fmt.Errorf("failed to scan setting: %w", err)
		}
		if err := applySetting(&settings, key, value, kind); err != nil {
			return base, err
		}
	}
	if err := rows.Err(); err != nil {
		return base, fmt.Errorf("failed to read settings: %w", err)
	}
	return settings, nil
}

func applySetting(s *monitoring.Settings, key, value, kind string) error {
	intValue := func(dst *int) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("setting %s: invalid %s value %q: %w", key, kind, value, err)
		}
		*dst = int(f)
		return nil
	}

	switch key {
	case SettingHealthCheckTimeout:
		return intValue(&s.HealthCheckTimeoutSeconds)
	case SettingStreamCheckTimeout:
		return intValue(&s.StreamCheckTimeoutSeconds)
	case SettingCriticalAlertThreshold:
		return intValue(&s.CriticalAlertThresholdMinutes)
	case SettingMonitoringInterval:
		return intValue(&s.MonitoringIntervalMinutes)
	case SettingAlertRetentionDays:
		return intValue(&s.AlertRetentionDays)
	case SettingNotificationsEnabled:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("setting %s: invalid boolean %q: %w", key, value, err)
		}
		s.NotificationsEnabled = b
	case SettingAdminRecipient:
		s.AdminRecipient = value
	}
	return nil
}

// UpdateSettings writes every monitoring setting in one transaction
func (db *DB) UpdateSettings(ctx context.Context, s monitoring.Settings) error {
	type row struct {
		key, value, kind string
	}
	rows := []row{
		{SettingHealthCheckTimeout, strconv.Itoa(s.HealthCheckTimeoutSeconds), settingTypeNumber},
		{SettingStreamCheckTimeout, strconv.Itoa(s.StreamCheckTimeoutSeconds), settingTypeNumber},
		{SettingCriticalAlertThreshold, strconv.Itoa(s.CriticalAlertThresholdMinutes), settingTypeNumber},
		{SettingNotificationsEnabled, strconv.FormatBool(s.NotificationsEnabled), settingTypeBoolean},
		{SettingAdminRecipient, s.AdminRecipient, settingTypeString},
		{SettingMonitoringInterval, strconv.Itoa(s.MonitoringIntervalMinutes), settingTypeNumber},
		{SettingAlertRetentionDays, strconv.Itoa(s.AlertRetentionDays), settingTypeNumber},
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, r := range rows {
		_, err := db.exec(ctx, tx, `
			INSERT INTO system_settings (setting_key, setting_value, setting_type, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (setting_key) DO UPDATE SET
				setting_value = excluded.setting_value,
				setting_type = excluded.setting_type,
				updated_at = CURRENT_TIMESTAMP
		`, r.key, r.value, r.kind)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update setting %s: %w", r.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}
