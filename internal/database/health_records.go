package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clearpoint-monitor/internal/types"
)

// GetCameraHealth returns the latest record for a camera, or nil when none exists
func (db *DB) GetCameraHealth(ctx context.Context, cameraID string) (*types.CameraHealth, error) {
	var (
		h          types.CameraHealth
		gatewayID  sql.NullString
		stream     string
		lastCheck  sql.NullTime
		disk       sql.NullFloat64
		logMessage sql.NullString
	)
	err := db.queryRow(ctx, `
		SELECT camera_id, mini_pc_id, stream_status, last_checked, disk_percent, log_message
		FROM camera_health WHERE camera_id = ?
	`, cameraID).Scan(&h.CameraID, &gatewayID, &stream, &lastCheck, &disk, &logMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera health for %s: %w", cameraID, err)
	}

	h.GatewayID = gatewayID.String
	h.StreamStatus = types.ParseStreamStatus(stream)
	h.LastCheckedAt = timePtr(lastCheck)
	h.DiskPercent = floatPtr(disk)
	h.LogMessage = logMessage.String
	return &h, nil
}

// UpsertCameraHealth stores the latest record for a camera
func (db *DB) UpsertCameraHealth(ctx context.Context, h types.CameraHealth) error {
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO camera_health (camera_id, mini_pc_id, stream_status, last_checked, disk_percent, log_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (camera_id) DO UPDATE SET
			mini_pc_id = excluded.mini_pc_id,
			stream_status = excluded.stream_status,
			last_checked = excluded.last_checked,
			disk_percent = excluded.disk_percent,
			log_message = excluded.log_message,
			updated_at = CURRENT_TIMESTAMP
	`, h.CameraID, nullString(h.GatewayID), string(h.StreamStatus), nullTime(h.LastCheckedAt), nullFloat(h.DiskPercent), nullString(h.LogMessage))
	if err != nil {
		return fmt.Errorf("failed to upsert camera health for %s: %w", h.CameraID, err)
	}
	return nil
}

// GetGatewayHealth returns the latest record for a gateway, or nil when none exists
func (db *DB) GetGatewayHealth(ctx context.Context, gatewayID string) (*types.GatewayHealth, error) {
	var (
		h          types.GatewayHealth
		cpuTemp    sql.NullFloat64
		cpuUsage   sql.NullFloat64
		ram        sql.NullFloat64
		disk       sql.NullFloat64
		internet   sql.NullBool
		overall    sql.NullString
		lastCheck  sql.NullTime
		logMessage sql.NullString
	)
	err := db.queryRow(ctx, `
		SELECT mini_pc_id, cpu_temp_celsius, cpu_usage_pct, ram_usage_pct, disk_root_pct,
			internet_connected, overall_status, last_checked, log_message
		FROM mini_pc_health WHERE mini_pc_id = ?
	`, gatewayID).Scan(&h.GatewayID, &cpuTemp, &cpuUsage, &ram, &disk, &internet, &overall, &lastCheck, &logMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway health for %s: %w", gatewayID, err)
	}

	h.CPUTempCelsius = floatPtr(cpuTemp)
	h.CPUUsagePercent = floatPtr(cpuUsage)
	h.RAMPercent = floatPtr(ram)
	h.DiskPercent = floatPtr(disk)
	h.InternetConnected = boolPtr(internet)
	h.OverallStatus = overall.String
	h.LastCheckedAt = timePtr(lastCheck)
	h.LogMessage = logMessage.String
	return &h, nil
}

// UpsertGatewayHealth stores the latest record for a gateway
func (db *DB) UpsertGatewayHealth(ctx context.Context, h types.GatewayHealth) error {
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO mini_pc_health (mini_pc_id, cpu_temp_celsius, cpu_usage_pct, ram_usage_pct, disk_root_pct,
			internet_connected, overall_status, last_checked, log_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (mini_pc_id) DO UPDATE SET
			cpu_temp_celsius = excluded.cpu_temp_celsius,
			cpu_usage_pct = excluded.cpu_usage_pct,
			ram_usage_pct = excluded.ram_usage_pct,
			disk_root_pct = excluded.disk_root_pct,
			internet_connected = excluded.internet_connected,
			overall_status = excluded.overall_status,
			last_checked = excluded.last_checked,
			log_message = excluded.log_message,
			updated_at = CURRENT_TIMESTAMP
	`, h.GatewayID, nullFloat(h.CPUTempCelsius), nullFloat(h.CPUUsagePercent), nullFloat(h.RAMPercent),
		nullFloat(h.DiskPercent), nullBool(h.InternetConnected), nullString(h.OverallStatus),
		nullTime(h.LastCheckedAt), nullString(h.LogMessage))
	if err != nil {
		return fmt.Errorf("failed to upsert gateway health for %s: %w", h.GatewayID, err)
	}
	return nil
}
