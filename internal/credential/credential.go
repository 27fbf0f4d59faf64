// Package credential checks login credentials and manages account secrets.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taspla-gateway/internal/clock"
	"taspla-gateway/internal/model"
	"taspla-gateway/internal/store"
)

var (
	// ErrUnauthorized is returned for any failed login. It does not reveal
	// whether the account exists.
	ErrUnauthorized = errors.New("invalid email or password")

	// ErrConflict is returned when an email is already taken by another account.
	ErrConflict = errors.New("email already taken")

	// ErrIncorrectPassword is returned by ChangePassword when the current
	// password does not match.
	ErrIncorrectPassword = errors.New("current password is incorrect")

	// ErrAccountNotFound is returned when a token names an account that no
	// longer exists.
	ErrAccountNotFound = errors.New("account not found")
)

// Verifier is what request handlers depend on.
type Verifier interface {
	Verify(ctx context.Context, creds model.Credentials) (model.Profile, error)
	Register(ctx context.Context, acct model.Account) (model.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.Profile, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error
}

// UserStore is the persistence the Service needs.
type UserStore interface {
	Create(ctx context.Context, u *store.User) error
	GetByEmail(ctx context.Context, email string) (*store.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, username, email string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// dummyHash is compared against when the account does not exist, so unknown
// and known emails take about the same time.
var dummyHash = mustHash("taspla-dummy-password")

func mustHash(pw string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}

// Service implements Verifier with bcrypt hashes over a UserStore.
type Service struct {
	users  UserStore
	cost   int
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a Service hashing at bcrypt.DefaultCost.
func NewService(users UserStore, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		cost:   bcrypt.DefaultCost,
		clock:  clock.System{},
		logger: logger.With("component", "credential"),
	}
}

func profileOf(u *store.User) model.Profile {
	return model.Profile{
		Identity: model.Identity{UserID: u.ID, Username: u.Username},
		Email:    u.Email,
	}
}

// Verify checks creds and returns the account's profile, or ErrUnauthorized.
func (s *Service) Verify(ctx context.Context, creds model.Credentials) (model.Profile, error) {
	u, err := s.users.GetByEmail(ctx, creds.Email)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		return model.Profile{}, ErrUnauthorized
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return model.Profile{}, ErrUnauthorized
	}
	return profileOf(u), nil
}

// Register creates an account and returns its profile. A taken email yields
// ErrConflict.
func (s *Service) Register(ctx context.Context, acct model.Account) (model.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(acct.Password), s.cost)
	if err != nil {
		return model.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	u := &store.User{
		ID:           uuid.New(),
		Email:        acct.Email,
		Username:     acct.Username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.Profile{}, ErrConflict
		}
		return model.Profile{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("account registered", "user_id", u.ID)
	return profileOf(u), nil
}

// UpdateProfile changes the username and, when upd.Email is set, the email of
// account id. An email held by another account yields ErrConflict.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.Profile, error) {
	u, err := s.lookup(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}

	email := u.Email
	if upd.Email != "" {
		email = upd.Email
	}
	if err := s.users.UpdateProfile(ctx, id, upd.Username, email); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return model.Profile{}, ErrConflict
		case errors.Is(err, store.ErrNotFound):
			return model.Profile{}, ErrAccountNotFound
		}
		return model.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	u, err = s.lookup(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}
	s.logger.Info("profile updated", "user_id", id)
	return profileOf(u), nil
}

// ChangePassword replaces the password of account id after checking current
// against the stored hash.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrIncorrectPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed", "user_id", id)
	return nil
}

func (s *Service) lookup(ctx context.Context, id uuid.UUID) (*store.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return u, nil
}
