package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User // keyed by ID
}

// NewMemoryRepository builds an in-memory user store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Phone == user.Phone {
			return ErrPhoneTaken
		}
		if user.Username != "" && existing.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Phone == phone {
			return clone(user), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(user), nil
}

func (r *memoryRepository) UsernameExists(_ context.Context, username, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, user := range r.users {
		if id != excludeID && user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) Update(_ context.Context, id string, patch ProfileUpdate, at time.Time) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if patch.Username != nil {
		for otherID, other := range r.users {
			if otherID != id && other.Username == *patch.Username {
				return User{}, ErrUsernameTaken
			}
		}
	}
	patch.apply(&user)
	user.UpdatedAt = at.UTC()
	r.users[id] = user
	return clone(user), nil
}

func (r *memoryRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsActive = active
	user.UpdatedAt = at.UTC()
	r.users[id] = user
	return nil
}

func (r *memoryRepository) SetPassword(_ context.Context, id string, hash []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = append([]byte(nil), hash...)
	user.UpdatedAt = at.UTC()
	r.users[id] = user
	return nil
}

func (r *memoryRepository) Search(_ context.Context, query, excludeID string, limit int) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := strings.ToLower(query)
	var out []User
	for id, user := range r.users {
		if id == excludeID || !user.IsActive {
			continue
		}
		if strings.Contains(strings.ToLower(user.FirstName), q) ||
			strings.Contains(strings.ToLower(user.LastName), q) ||
			strings.Contains(strings.ToLower(user.Username), q) {
			out = append(out, clone(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(u User) User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}
