package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clearpoint-monitor/internal/types"
)

// ListDevices returns every active camera and gateway with its owning customer
func (db *DB) ListDevices(ctx context.Context) (types.Inventory, error) {
	var inv types.Inventory

	gateways, err := db.listDevices(ctx, `
		SELECT m.id, m.name, m.customer_id, COALESCE(c.name, ''), '', TRUE
		FROM mini_pcs m
		LEFT JOIN customers c ON c.id = m.customer_id
		WHERE m.is_active = TRUE
		ORDER BY m.id
	`, types.DeviceKindGateway)
	if err != nil {
		return inv, fmt.Errorf("failed to list gateways: %w", err)
	}

	cameras, err := db.listDevices(ctx, `
		SELECT cam.id, cam.name, cam.customer_id, COALESCE(c.name, ''), COALESCE(cam.mini_pc_id, ''), cam.is_stream_active
		FROM cameras cam
		LEFT JOIN customers c ON c.id = cam.customer_id
		WHERE cam.is_active = TRUE
		ORDER BY cam.id
	`, types.DeviceKindCamera)
	if err != nil {
		return inv, fmt.Errorf("failed to list cameras: %w", err)
	}

	inv.Gateways = gateways
	inv.Cameras = cameras
	return inv, nil
}

func (db *DB) listDevices(ctx context.Context, query string, kind types.DeviceKind) ([]types.Device, error) {
	rows, err := db.query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		d := types.Device{Kind: kind}
		var streamActive bool
		if err := rows.Scan(&d.ID, &d.Name, &d.CustomerID, &d.CustomerName, &d.GatewayID, &streamActive); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.StreamInactive = !streamActive
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// CreateCustomer inserts or renames a customer
func (db *DB) CreateCustomer(ctx context.Context, id, name string) error {
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO customers (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("failed to create customer %s: %w", id, err)
	}
	return nil
}

// CreateGateway inserts or updates a mini-PC
func (db *DB) CreateGateway(ctx context.Context, d types.Device) error {
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO mini_pcs (id, name, customer_id) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, customer_id = excluded.customer_id
	`, d.ID, d.Name, d.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to create gateway %s: %w", d.ID, err)
	}
	return nil
}

// CreateCamera inserts or updates a camera
func (db *DB) CreateCamera(ctx context.Context, d types.Device) error {
	_, err := db.exec(ctx, db.conn, `
		INSERT INTO cameras (id, name, customer_id, mini_pc_id) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, customer_id = excluded.customer_id, mini_pc_id = excluded.mini_pc_id
	`, d.ID, d.Name, d.CustomerID, nullString(d.GatewayID))
	if err != nil {
		return fmt.Errorf("failed to create camera %s: %w", d.ID, err)
	}
	return nil
}

// SetDeviceActive enables or disables monitoring for a device
func (db *DB) SetDeviceActive(ctx context.Context, kind types.DeviceKind, id string, active bool) error {
	table := "cameras"
	if kind == types.DeviceKindGateway {
		table = "mini_pcs"
	}
	res, err := db.exec(ctx, db.conn, "UPDATE "+table+" SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCameraStreamActive records whether a camera's stream is expected to be running
func (db *DB) SetCameraStreamActive(ctx context.Context, id string, active bool) error {
	res, err := db.exec(ctx, db.conn, "UPDATE cameras SET is_stream_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update stream flag for camera %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CameraBelongsToGateway reports whether the camera is attached to the gateway
func (db *DB) CameraBelongsToGateway(ctx context.Context, cameraID, gatewayID string) (bool, error) {
	var id string
	err := db.queryRow(ctx, "SELECT id FROM cameras WHERE id = ? AND mini_pc_id = ?", cameraID, gatewayID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check camera ownership: %w", err)
	}
	return true, nil
}
