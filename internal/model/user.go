package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users that log in with a
// password.
type UserStore interface {
	GetByLogin(ctx context.Context, login string) (User, error)
	Create(ctx context.Context, user User) (User, error)
}

// User is a stored account. PasswordHash is an encoded Argon2id hash.
type User struct {
	ID           uuid.UUID
	Login        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}
