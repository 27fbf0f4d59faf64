// Package authn issues and verifies the signed bearer tokens shared by every
// service, and provides the echo middleware that turns a valid token into an
// Identity.
package authn

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taspla-gateway/internal/clock"
	"taspla-gateway/internal/config"
	"taspla-gateway/internal/model"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidToken covers every decode failure: bad signature, expiry,
// malformed structure or a disallowed algorithm. Callers must not try to tell
// them apart.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 tokens with a single shared secret. It is
// immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

// NewCodec creates a Codec. A zero ttl means DefaultTTL and a nil clock means
// the system clock.
func NewCodec(secret []byte, ttl time.Duration, clk clock.Clock) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("authn: signing secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &Codec{
		secret: secret,
		ttl:    ttl,
		clock:  clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithStrictDecoding(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// NewCodecFromConfig builds a Codec from the auth section. It fails when no
// secret is configured outside development, and warns when the development
// fallback secret is in use.
func NewCodecFromConfig(cfg *config.Config, logger *slog.Logger) (*Codec, error) {
	secret, fallback, err := cfg.Auth.SigningSecret()
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}
	if fallback {
		logger.Warn("JWT_SECRET is not set; signing tokens with the public development secret",
			"component", "authn",
			"environment", cfg.Auth.Environment,
		)
	}
	return NewCodec(secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour, clock.System{})
}

// Issue signs a token for id that expires ttl from now. email is optional.
func (c *Codec) Issue(id model.Identity, email string) (string, error) {
	claims := Claims{
		Username: id.Username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(c.clock.Now().Add(c.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return token, nil
}

// Decode verifies the signature and expiry of token and returns its claims.
// Every failure wraps ErrInvalidToken.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
