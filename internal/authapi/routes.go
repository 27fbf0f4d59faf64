package authapi

import (
	"github.com/labstack/echo/v4"

	"taspla-gateway/internal/authn"
)

// RegisterRoutes wires the auth endpoints onto e and installs the request
// validator they rely on.
func RegisterRoutes(e *echo.Echo, h *Handler, codec *authn.Codec) {
	e.Validator = NewRequestValidator()

	e.GET("/healthz", h.Healthz)

	g := e.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)

	requireIdentity := authn.RequireIdentity(codec)
	g.GET("/verify", h.Verify, requireIdentity)
	g.PUT("/profile", h.UpdateProfile, requireIdentity)
	g.PUT("/password", h.ChangePassword, requireIdentity)
}
