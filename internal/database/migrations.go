package database

import (
	"context"
	"fmt"
	"strings"
)

// Migration represents a database migration. Statements are written for
// PostgreSQL and translated for SQLite by sqliteDDL.
type Migration struct {
	Version int
	Name    string
	Up      string
}

var sqliteDDL = strings.NewReplacer(
	"TIMESTAMPTZ", "DATETIME",
	"DOUBLE PRECISION", "REAL",
)

// migrations contains all database migrations
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_customers_and_devices",
		Up:      createDeviceTables,
	},
	{
		Version: 2,
		Name:    "create_health_and_token_tables",
		Up:      createHealthTables,
	},
	{
		Version: 3,
		Name:    "create_system_alerts",
		Up:      createAlertTables,
	},
	{
		Version: 4,
		Name:    "create_settings_and_notification_logs",
		Up:      createSettingsTables,
	},
	{
		Version: 5,
		Name:    "add_camera_stream_flag",
		Up:      addCameraStreamFlag,
	},
}

// Migrate applies every pending migration, each in its own transaction
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, db.ddl(createMigrationsTable)); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.queryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, db.ddl(m.Up)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := db.exec(ctx, tx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.queryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func (db *DB) ddl(stmt string) string {
	if db.dialect == DialectSQLite {
		return sqliteDDL.Replace(stmt)
	}
	return stmt
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);`

const createDeviceTables = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mini_pcs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cameras (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
    mini_pc_id TEXT REFERENCES mini_pcs(id) ON DELETE SET NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_mini_pcs_customer_id ON mini_pcs(customer_id);
CREATE INDEX IF NOT EXISTS idx_cameras_customer_id ON cameras(customer_id);
CREATE INDEX IF NOT EXISTS idx_cameras_mini_pc_id ON cameras(mini_pc_id);
`

const createHealthTables = `
CREATE TABLE IF NOT EXISTS camera_health (
    camera_id TEXT PRIMARY KEY REFERENCES cameras(id) ON DELETE CASCADE,
    mini_pc_id TEXT,
    stream_status TEXT NOT NULL,
    last_checked TIMESTAMPTZ,
    disk_percent DOUBLE PRECISION,
    log_message TEXT,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mini_pc_health (
    mini_pc_id TEXT PRIMARY KEY REFERENCES mini_pcs(id) ON DELETE CASCADE,
    cpu_temp_celsius DOUBLE PRECISION,
    cpu_usage_pct DOUBLE PRECISION,
    ram_usage_pct DOUBLE PRECISION,
    disk_root_pct DOUBLE PRECISION,
    internet_connected BOOLEAN,
    overall_status TEXT,
    last_checked TIMESTAMPTZ,
    log_message TEXT,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mini_pc_tokens (
    id TEXT PRIMARY KEY,
    mini_pc_id TEXT NOT NULL REFERENCES mini_pcs(id) ON DELETE CASCADE,
    token_hash TEXT UNIQUE NOT NULL,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    last_used_at TIMESTAMPTZ,
    revoked_at TIMESTAMPTZ
);
`

const createAlertTables = `
CREATE TABLE IF NOT EXISTS system_alerts (
    id TEXT PRIMARY KEY,
    alert_type TEXT NOT NULL,
    device_id TEXT NOT NULL,
    device_kind TEXT NOT NULL,
    device_name TEXT,
    customer_id TEXT,
    customer_name TEXT,
    message TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high', 'critical')),
    resolved BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_system_alerts_device_type ON system_alerts(device_id, alert_type, created_at);
CREATE INDEX IF NOT EXISTS idx_system_alerts_resolved ON system_alerts(resolved, resolved_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_system_alerts_one_open ON system_alerts(device_id, alert_type) WHERE resolved = FALSE;
`

const createSettingsTables = `
CREATE TABLE IF NOT EXISTS system_settings (
    setting_key TEXT PRIMARY KEY,
    setting_value TEXT NOT NULL,
    setting_type TEXT NOT NULL CHECK (setting_type IN ('number', 'boolean', 'string')),
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notification_logs (
    id TEXT PRIMARY KEY,
    alert_id TEXT,
    notification_type TEXT NOT NULL,
    device_id TEXT NOT NULL,
    recipient TEXT,
    status TEXT NOT NULL,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_logs_created_at ON notification_logs(created_at);
`

const addCameraStreamFlag = `
ALTER TABLE cameras ADD COLUMN is_stream_active BOOLEAN NOT NULL DEFAULT TRUE;
`
