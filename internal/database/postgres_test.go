package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearpoint-monitor/internal/types"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn, DialectPostgres), mock
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "SELECT ? ", lite.rebind("SELECT ? "))
}

func TestPostgresFindOpenAlert(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "alert_type", "device_id", "device_kind", "device_name", "customer_id", "customer_name",
		"message", "severity", "resolved", "created_at", "resolved_at",
	}).AddRow("a-1", "minipc_offline", "gw-1", "gateway", "Front desk", "cust-1", nil,
		"mini-PC is offline", "critical", false, created, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE device_id = $1 AND alert_type = $2 AND resolved = FALSE")).
		WithArgs("gw-1", "minipc_offline").
		WillReturnRows(rows)

	a, err := db.FindOpenAlert(context.Background(), "gw-1", types.FaultGatewayOffline)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, types.FaultGatewayOffline, a.Type)
	assert.Equal(t, types.DeviceKindGateway, a.DeviceKind)
	assert.Equal(t, "", a.CustomerName)
	assert.Nil(t, a.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAlertsRollback(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO system_alerts")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := db.InsertAlerts(context.Background(), []types.Alert{
		testAlert("a-1", types.FaultCameraOffline, created),
		testAlert("a-2", types.FaultStreamError, created),
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveAlertNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE system_alerts SET resolved = $1, resolved_at = $2 WHERE id = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.ResolveAlert(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
