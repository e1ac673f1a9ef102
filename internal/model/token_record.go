package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenRecordStore persists issued tokens. A missing record means the token
// was revoked or purged.
type TokenRecordStore interface {
	Insert(ctx context.Context, record TokenRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (TokenRecord, error)
	FindByRefreshHash(ctx context.Context, hash string) (TokenRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenRecord is the authoritative server-side state of one grant.
type TokenRecord struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	// ReservedID mirrors the reserved half of the opaque payload and is
	// always the nil UUID.
	ReservedID       uuid.UUID
	AccessToken      string
	RefreshTokenHash string
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}
