// Package store persists user accounts for the auth service.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// ErrDuplicate is returned when creating a user whose email is already taken.
var ErrDuplicate = errors.New("email already registered")

// User is a stored account.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// normalizeEmail is the lookup key for emails: case-insensitive and trimmed.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
