package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/password"
)

// ErrEmptyCredentials is returned when a login or password is empty.
var ErrEmptyCredentials = errors.New("login and password are required")

// Auth verifies passwords of locally stored users. It backs the login
// endpoint when password login is enabled.
type Auth struct {
	userStore model.UserStore
	logger    *logger.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuth creates a new Auth service.
func NewAuth(userStore model.UserStore, logger *logger.Logger) *Auth {
	return &Auth{
		userStore: userStore,
		logger:    logger,
	}
}

// Register creates a user with the given login and password.
func (a *Auth) Register(ctx context.Context, login, pass string) (model.User, error) {
	if login == "" || pass == "" {
		return model.User{}, ErrEmptyCredentials
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.userStore.Create(ctx, model.User{
		ID:           uuid.New(),
		Login:        login,
		PasswordHash: hash,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	a.logger.Info("Auth service: user registered", "user_id", user.ID)
	return user, nil
}

// VerifyCredentials returns the id of the user owning login when pass
// matches. Unknown logins cost the same hashing work as wrong passwords.
func (a *Auth) VerifyCredentials(ctx context.Context, login, pass string) (uuid.UUID, error) {
	if login == "" || pass == "" {
		return uuid.Nil, model.ErrInvalidCredentials
	}

	user, err := a.userStore.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			_, _ = password.Verify(a.dummy(), pass)
			a.logger.Debug("Auth service: unknown login")
			return uuid.Nil, model.ErrInvalidCredentials
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := password.Verify(user.PasswordHash, pass)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		a.logger.Debug("Auth service: wrong password", "user_id", user.ID)
		return uuid.Nil, model.ErrInvalidCredentials
	}

	return user.ID, nil
}

func (a *Auth) dummy() string {
	a.dummyOnce.Do(func() {
		hash, err := password.Hash(uuid.NewString())
		if err != nil {
			a.logger.Error("Auth service: failed to prepare dummy hash", "error", err.Error())
			return
		}
		a.dummyHash = hash
	})
	return a.dummyHash
}

// EnsureUser registers login unless it already exists.
func (a *Auth) EnsureUser(ctx context.Context, login, pass string) error {
	_, err := a.Register(ctx, login, pass)
	if err != nil && !errors.Is(err, model.ErrAlreadyExists) {
		return err
	}
	return nil
}
