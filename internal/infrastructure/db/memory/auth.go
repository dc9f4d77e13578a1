package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AuthRepository stores viewer accounts keyed by username.
type AuthRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewAuthRepository() *AuthRepository {
	return &AuthRepository{users: make(map[string]domain.User)}
}

func (r *AuthRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return nil, domain.ErrUserExists
	}
	u := *user
	u.ID = uuid.NewString()
	r.users[u.Username] = u
	return &u, nil
}

func (r *AuthRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}
