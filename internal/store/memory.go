package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process user store for tests and throwaway runs.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Create inserts u, or returns ErrDuplicate when the email is taken. u.Email
// is normalized in place.
func (m *MemoryStore) Create(_ context.Context, u *User) error {
	key := normalizeEmail(u.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[key]; ok {
		return ErrDuplicate
	}
	u.Email = key
	stored := *u
	m.byID[stored.ID] = stored
	m.byEmail[key] = stored.ID
	return nil
}

// GetByEmail returns a copy of the user with the given email.
func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.byID[id]
	return &u, nil
}

// GetByID returns a copy of the user with the given id.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// UpdateProfile sets the username and email of user id.
func (m *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, username, email string) error {
	key := normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.byEmail[key]; taken && owner != id {
		return ErrDuplicate
	}
	delete(m.byEmail, u.Email)
	u.Username = username
	u.Email = key
	m.byID[id] = u
	m.byEmail[key] = id
	return nil
}

// UpdatePassword replaces the password hash of user id.
func (m *MemoryStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
