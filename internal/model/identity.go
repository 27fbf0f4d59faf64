package model

import "github.com/google/uuid"

// Identity is the authenticated caller handed to business logic. It is built
// per request from a verified token and never persisted.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Account is the registration input passed to a credential verifier.
type Account struct {
	Email    string
	Username string
	Password string
}

// Credentials is the login input passed to a credential verifier.
type Credentials struct {
	Email    string
	Password string
}

// Profile is an account as returned to its owner: the identity plus the
// stored, normalized email.
type Profile struct {
	Identity
	Email string
}

// ProfileUpdate carries the editable account fields. An empty Email keeps
// the current one.
type ProfileUpdate struct {
	Username string
	Email    string
}
