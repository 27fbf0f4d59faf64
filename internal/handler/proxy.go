package handler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"taspla-gateway/internal/client"
	"taspla-gateway/internal/model"
	"taspla-gateway/internal/route"
	"taspla-gateway/internal/service"
)

// unknownRouteBody is the plain-text body returned when no route prefix matches.
const unknownRouteBody = "Unknown route"

// ProxyHandler forwards API requests to the backend selected by the route table.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the matched upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Read ahead one byte so that a body that fails before any byte arrives
	// still produces a 502 instead of a committed upstream status.
	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		return h.mapError(c, err)
	}

	status := resp.StatusCode
	if status < 100 || status > 999 {
		h.logger.Warn("upstream returned invalid status code",
			"status", status,
			"path", req.URL.Path,
		)
		status = http.StatusInternalServerError
	}

	// The upstream's header set is relayed as is; drop anything the edge
	// middleware staged for the gateway's own responses.
	dst := c.Response().Header()
	clear(dst)
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	c.Response().WriteHeader(status)

	// Status is committed; a failure from here on can only truncate the body.
	if _, err := io.Copy(c.Response(), body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError writes the plain-text error response for a failed forward.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	switch {
	case errors.Is(err, route.ErrNotFound):
		h.logger.Debug("unknown route", "path", path)
		return c.String(http.StatusNotFound, unknownRouteBody)

	case errors.Is(err, echo.ErrStatusRequestEntityTooLarge):
		h.logger.Warn("request body too large", "path", path)
		return c.String(http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))

	case errors.Is(err, client.ErrBuildRequest):
		h.logger.Error("build upstream request", "err", err, "path", path)
		return c.String(http.StatusInternalServerError, err.Error())

	case errors.Is(err, context.Canceled):
		h.logger.Warn("client went away before upstream responded", "path", path)
		return c.String(http.StatusBadGateway, err.Error())
	}

	h.logger.Error("proxy error", "err", err, "path", path)
	return c.String(http.StatusBadGateway, err.Error())
}
