package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/admin-auth/internal/clock"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/utils"
)

const tokenColumns = `id, token_hash, user_id, device_id, device_name, user_agent, created_by_ip,
	created_at, expires_at, used_at, revoked_at, revoked_by_ip, replaced_by_hash`

// TokenRepo is the refresh token store. Raw token values are hashed on the
// way in; rows only ever move from active to revoked, never back.
type TokenRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewTokenRepo returns a TokenRepo bound to db.
func NewTokenRepo(db *sql.DB, clk clock.Clock) *TokenRepo {
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenRepo{db: db, clock: clk}
}

// Create persists t as a new active token. t.Token must hold the raw value.
// CreatedAt is always set here, whatever the caller put in it.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return r.insert(ctx, r.db, t)
}

// GetByToken looks a token up by its raw value.
func (r *TokenRepo) GetByToken(ctx context.Context, raw string) (*model.RefreshToken, error) {
	return r.GetByHash(ctx, utils.HashRefreshToken(raw))
}

// GetByHash looks a token up by its stored digest. It is how a rotation chain
// is followed through ReplacedByHash.
func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = ? LIMIT 1`, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}
	return t, nil
}

// Rotate revokes oldRaw, links it to next and inserts next, in one
// transaction. The revoke is conditional on the old row still being active
// and belonging to next's user and device, so of two concurrent rotations of
// the same token exactly one matches a row; the other gets ErrTokenNotActive
// and nothing is written.
func (r *TokenRepo) Rotate(ctx context.Context, oldRaw string, next *model.RefreshToken, revokedByIP string) error {
	if next.Token == "" {
		return errors.New("rotating refresh token: successor has no token value")
	}
	now := r.clock.Now()
	nextHash := utils.HashRefreshToken(next.Token)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = ?, used_at = ?, revoked_by_ip = ?, replaced_by_hash = ?
		 WHERE token_hash = ? AND user_id = ? AND device_id = ?
		   AND revoked_at IS NULL AND expires_at > ?`,
		dbTime(now), dbTime(now), nullString(revokedByIP), nextHash,
		utils.HashRefreshToken(oldRaw), next.UserID, next.DeviceID, dbTime(now))
	if err != nil {
		return fmt.Errorf("revoking rotated token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rotation result: %w", err)
	}
	if n != 1 {
		return ErrTokenNotActive
	}

	if err := r.insert(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// Revoke revokes one token by raw value. Missing or already inactive tokens
// are left alone and no error is returned.
func (r *TokenRepo) Revoke(ctx context.Context, raw, revokedByIP string) error {
	now := dbTime(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, revoked_by_ip = ?
		 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, nullString(revokedByIP), utils.HashRefreshToken(raw), now)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeByDeviceID revokes every active token of the (user, device) pair and
// returns how many were revoked.
func (r *TokenRepo) RevokeByDeviceID(ctx context.Context, userID, deviceID, revokedByIP string) (int64, error) {
	now := dbTime(r.clock.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, revoked_by_ip = ?
		 WHERE user_id = ? AND device_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, nullString(revokedByIP), userID, deviceID, now)
	if err != nil {
		return 0, fmt.Errorf("revoking device tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RevokeAllByUserID revokes every active token of the user on every device.
func (r *TokenRepo) RevokeAllByUserID(ctx context.Context, userID, revokedByIP string) (int64, error) {
	now := dbTime(r.clock.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, revoked_by_ip = ?
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, nullString(revokedByIP), userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CleanupExpired deletes tokens at or past expiry and returns the count.
// Expired rows can no longer change, so this does not race with rotation or
// revocation.
func (r *TokenRepo) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, dbTime(r.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListActiveByUser returns the user's active tokens, newest first.
func (r *TokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	return r.list(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, id`, userID, dbTime(r.clock.Now()))
}

// ListByUserDevice returns every token of the (user, device) pair in
// creation order, revoked ones included.
func (r *TokenRepo) ListByUserDevice(ctx context.Context, userID, deviceID string) ([]model.RefreshToken, error) {
	return r.list(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND device_id = ? ORDER BY created_at, id`, userID, deviceID)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TokenRepo) insert(ctx context.Context, db execer, t *model.RefreshToken) error {
	if t.Token == "" {
		return errors.New("creating refresh token: no token value")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.TokenHash = utils.HashRefreshToken(t.Token)
	t.CreatedAt = truncate(r.clock.Now())
	t.ExpiresAt = truncate(t.ExpiresAt)
	t.UsedAt, t.RevokedAt, t.RevokedByIP, t.ReplacedByHash = nil, nil, "", ""

	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+tokenColumns+`) VALUES (?,?,?,?,?,?,?,?,?,NULL,NULL,NULL,NULL)`,
		t.ID, t.TokenHash, t.UserID, t.DeviceID, nullString(t.DeviceName), nullString(t.UserAgent),
		nullString(t.CreatedByIP), dbTime(t.CreatedAt), dbTime(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepo) list(ctx context.Context, query string, args ...any) ([]model.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []model.RefreshToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(s scanner) (*model.RefreshToken, error) {
	var t model.RefreshToken
	var deviceName, userAgent, createdByIP, revokedByIP, replacedBy sql.NullString
	var usedAt, revokedAt sql.NullTime
	if err := s.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.DeviceID, &deviceName, &userAgent, &createdByIP,
		&t.CreatedAt, &t.ExpiresAt, &usedAt, &revokedAt, &revokedByIP, &replacedBy); err != nil {
		return nil, err
	}
	t.DeviceName = deviceName.String
	t.UserAgent = userAgent.String
	t.CreatedByIP = createdByIP.String
	t.RevokedByIP = revokedByIP.String
	t.ReplacedByHash = replacedBy.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.UsedAt = timePtr(usedAt)
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}
