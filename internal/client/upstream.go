// Package client provides the outbound HTTP client the gateway uses to reach
// backend services.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"taspla-gateway/internal/config"
	"taspla-gateway/internal/metrics"
	"taspla-gateway/internal/model"
)

// ErrBuildRequest is returned when the outbound request cannot be constructed,
// typically because the inbound method is not a valid HTTP token.
var ErrBuildRequest = errors.New("build upstream request")

// UpstreamClient sends requests to backend services.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and a
// finite overall timeout. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Bodies are relayed byte-for-byte; transparent gzip would rewrite them.
		DisableCompression: true,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects belong to the caller, not the gateway.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against an upstream and returns the raw response.
// The caller is responsible for closing the response body. route is a bounded
// label identifying the matched route prefix.
func (c *UpstreamClient) Do(route string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"route", route,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(route, method).Observe(duration)
			c.metrics.UpstreamFailures.WithLabelValues(route, method).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(route, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(route, method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream builds a request from its parts and executes it, returning the
// response body as a stream. The caller is responsible for closing the
// returned body.
//
// The provided context controls the lifetime of the upstream request: when it
// is canceled (e.g. the client disconnects), the upstream request is aborted.
// contentLength follows http.Request semantics (-1 for unknown).
func (c *UpstreamClient) DoStream(ctx context.Context, route, method, url string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildRequest, err)
	}
	req.Header = header
	if body != nil && body != http.NoBody {
		req.ContentLength = contentLength
	}

	return c.Do(route, req)
}
