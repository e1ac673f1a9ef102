package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/apiauth-server/internal/model"
)

// UserRepository keeps users keyed by login.
type UserRepository struct {
	mu      sync.RWMutex
	byLogin map[string]model.User
}

var _ model.UserStore = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{byLogin: make(map[string]model.User)}
}

func (r *UserRepository) GetByLogin(_ context.Context, login string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byLogin[login]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLogin[user.Login]; ok {
		return model.User{}, model.ErrAlreadyExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	r.byLogin[user.Login] = user
	return user, nil
}
