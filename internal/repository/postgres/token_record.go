package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/apiauth-server/internal/model"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

var _ model.TokenRecordStore = (*TokenRecordRepository)(nil)

type TokenRecordRepository struct {
	db *Connection
}

func NewTokenRecordRepository(db *Connection) *TokenRecordRepository {
	return &TokenRecordRepository{db: db}
}

func (r *TokenRecordRepository) Insert(ctx context.Context, record model.TokenRecord) error {
	const query = `
		INSERT INTO api_tokens (
			id, owner_id, reserved_id, access_token, refresh_token_hash, refresh_expires_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, query,
		record.ID, record.OwnerID, record.ReservedID, record.AccessToken,
		record.RefreshTokenHash, record.RefreshExpiresAt, record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert token record: %w", err)
	}
	return nil
}

func (r *TokenRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (model.TokenRecord, error) {
	const query = `
		SELECT id, owner_id, reserved_id, access_token, refresh_token_hash, refresh_expires_at, created_at
		FROM api_tokens WHERE id = $1
	`
	record, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TokenRecord{}, model.ErrNotFound
		}
		return model.TokenRecord{}, fmt.Errorf("failed to get token record by id: %w", err)
	}
	return record, nil
}

func (r *TokenRecordRepository) FindByRefreshHash(ctx context.Context, hash string) (model.TokenRecord, error) {
	const query = `
		SELECT id, owner_id, reserved_id, access_token, refresh_token_hash, refresh_expires_at, created_at
		FROM api_tokens WHERE refresh_token_hash = $1
	`
	record, err := scanRecord(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TokenRecord{}, model.ErrNotFound
		}
		return model.TokenRecord{}, fmt.Errorf("failed to get token record by refresh token: %w", err)
	}
	return record, nil
}

func (r *TokenRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM api_tokens WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *TokenRecordRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const query = `DELETE FROM api_tokens WHERE owner_id = $1`

	tag, err := r.db.Exec(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete token records by owner: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRecordRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM api_tokens WHERE refresh_expires_at <= $1`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired token records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (model.TokenRecord, error) {
	var record model.TokenRecord
	err := row.Scan(
		&record.ID, &record.OwnerID, &record.ReservedID, &record.AccessToken,
		&record.RefreshTokenHash, &record.RefreshExpiresAt, &record.CreatedAt,
	)
	return record, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
