package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taspla-gateway/internal/model"
)

// Messages returned in the 401 body. Clients match on them, keep them stable.
const (
	MsgMissingHeader = "Missing authorization header"
	MsgInvalidFormat = "Invalid authorization format"
	MsgInvalidToken  = "Invalid or expired token"
	MsgInvalidUserID = "Invalid user id in token"
)

const bearerPrefix = "Bearer "

// identityKey is the echo context key holding the caller's Identity.
const identityKey = "authn.identity"

type ctxKey struct{}

// RequireIdentity rejects requests without a valid bearer token before the
// wrapped handler runs. On success the Identity is available through
// IdentityFrom and IdentityFromContext.
func RequireIdentity(codec *Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgMissingHeader)
			}
			token, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidFormat)
			}

			claims, err := codec.Decode(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidToken).SetInternal(err)
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidUserID).SetInternal(err)
			}

			id := model.Identity{UserID: userID, Username: claims.Username}
			c.Set(identityKey, id)
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// IdentityFrom returns the Identity stored by RequireIdentity.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext returns the Identity carried by ctx, if any.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(model.Identity)
	return id, ok
}
