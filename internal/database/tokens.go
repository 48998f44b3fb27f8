package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeviceToken is a gateway credential. Only the sha256 hash is stored.
type DeviceToken struct {
	ID         string
	GatewayID  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the token has been revoked
func (t DeviceToken) Revoked() bool {
	return t.RevokedAt != nil
}

// HashToken returns the hex sha256 of a raw device token
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssueDeviceToken creates a new random token for a gateway and returns the
// raw value. The raw value is never stored.
func (db *DB) IssueDeviceToken(ctx context.Context, gatewayID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw := hex.EncodeToString(buf)

	_, err := db.exec(ctx, db.conn, `
		INSERT INTO mini_pc_tokens (id, mini_pc_id, token_hash, created_at) VALUES (?, ?, ?, ?)
	`, uuid.NewString(), gatewayID, HashToken(raw), utc(time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to store token for %s: %w", gatewayID, err)
	}
	return raw, nil
}

// LookupDeviceToken finds a token by hash and records its use. Unknown hashes
// return ErrInvalidToken.
func (db *DB) LookupDeviceToken(ctx context.Context, hash string) (*DeviceToken, error) {
	var (
		t        DeviceToken
		lastUsed sql.NullTime
		revoked  sql.NullTime
	)
	err := db.queryRow(ctx, `
		SELECT id, mini_pc_id, created_at, last_used_at, revoked_at
		FROM mini_pc_tokens WHERE token_hash = ?
	`, hash).Scan(&t.ID, &t.GatewayID, &t.CreatedAt, &lastUsed, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up device token: %w", err)
	}
	t.LastUsedAt = timePtr(lastUsed)
	t.RevokedAt = timePtr(revoked)

	if !t.Revoked() {
		if _, err := db.exec(ctx, db.conn, "UPDATE mini_pc_tokens SET last_used_at = ? WHERE id = ?", utc(time.Now()), t.ID); err != nil {
			return nil, fmt.Errorf("failed to touch device token: %w", err)
		}
	}
	return &t, nil
}

// RevokeDeviceToken revokes every token of a gateway
func (db *DB) RevokeDeviceToken(ctx context.Context, gatewayID string) error {
	_, err := db.exec(ctx, db.conn, "UPDATE mini_pc_tokens SET revoked_at = ? WHERE mini_pc_id = ? AND revoked_at IS NULL",
		utc(time.Now()), gatewayID)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens for %s: %w", gatewayID, err)
	}
	return nil
}
