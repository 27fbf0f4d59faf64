package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taspla-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	routes  *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{routes: routes, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type routeStatus struct {
	Prefix   string `json:"prefix"`
	Upstream string `json:"upstream"`
}

type statusResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Routes  []routeStatus `json:"routes"`
}

// Status returns gateway status information, including the route table.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:  "ok",
		Version: string(h.version),
	}
	for _, e := range h.routes.Entries() {
		resp.Routes = append(resp.Routes, routeStatus{
			Prefix:   h.routes.APIPrefix() + e.Prefix,
			Upstream: e.Upstream.Redacted(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
