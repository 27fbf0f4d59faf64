// Package authapi serves the auth service's HTTP endpoints: registration,
// login, token verification and account maintenance.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"taspla-gateway/internal/authn"
	"taspla-gateway/internal/credential"
	"taspla-gateway/internal/model"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the auth endpoints.
type Handler struct {
	verifier credential.Verifier
	codec    *authn.Codec
	db       Pinger
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(v credential.Verifier, codec *authn.Codec, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		verifier: v,
		codec:    codec,
		db:       db,
		logger:   logger.With("component", "auth_handler"),
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=72"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ProfileResponse is returned by a profile update, with a token carrying the
// new username.
type ProfileResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// VerifyResponse is returned by verify.
type VerifyResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Register creates an account and returns a token for it.
func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	p, err := h.verifier.Register(c.Request().Context(), model.Account(req))
	if err != nil {
		return h.mapError(c, err)
	}
	return h.issue(c, p)
}

// Login exchanges credentials for a token.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	p, err := h.verifier.Verify(c.Request().Context(), model.Credentials(req))
	if err != nil {
		return h.mapError(c, err)
	}
	return h.issue(c, p)
}

// Verify echoes the identity carried by a valid token. It must be mounted
// behind authn.RequireIdentity.
func (h *Handler) Verify(c echo.Context) error {
	id, ok := authn.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, authn.MsgMissingHeader)
	}
	return c.JSON(http.StatusOK, VerifyResponse{
		UserID:   id.UserID.String(),
		Username: id.Username,
	})
}

// UpdateProfile changes the caller's username and optionally email, then
// returns a fresh token. It must be mounted behind authn.RequireIdentity.
func (h *Handler) UpdateProfile(c echo.Context) error {
	id, ok := authn.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, authn.MsgMissingHeader)
	}
	var req updateProfileRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	p, err := h.verifier.UpdateProfile(c.Request().Context(), id.UserID, model.ProfileUpdate(req))
	if err != nil {
		return h.mapError(c, err)
	}
	token, err := h.codec.Issue(p.Identity, p.Email)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, ProfileResponse{
		UserID:   p.UserID.String(),
		Username: p.Username,
		Email:    p.Email,
		Token:    token,
	})
}

// ChangePassword replaces the caller's password once the current one checks
// out. It must be mounted behind authn.RequireIdentity.
func (h *Handler) ChangePassword(c echo.Context) error {
	id, ok := authn.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, authn.MsgMissingHeader)
	}
	var req changePasswordRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	if err := h.verifier.ChangePassword(c.Request().Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated"})
}

// Healthz reports liveness, failing when the user store is unreachable.
func (h *Handler) Healthz(c echo.Context) error {
	if err := h.db.Ping(c.Request().Context()); err != nil {
		h.logger.Error("store ping failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// issue signs a token for p. The email claim is the stored one, not whatever
// spelling the client submitted.
func (h *Handler) issue(c echo.Context, p model.Profile) error {
	token, err := h.codec.Issue(p.Identity, p.Email)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, AuthResponse{
		Token:    token,
		UserID:   p.UserID.String(),
		Username: p.Username,
	})
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, credential.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "Email already taken")
	case errors.Is(err, credential.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, credential.ErrIncorrectPassword):
		return echo.NewHTTPError(http.StatusUnauthorized, "Current password is incorrect")
	case errors.Is(err, credential.ErrAccountNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}

	h.logger.Error("auth request failed", "err", err, "path", c.Request().URL.Path)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
