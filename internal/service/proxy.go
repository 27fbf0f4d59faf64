// Package service implements the gateway's forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"taspla-gateway/internal/client"
	"taspla-gateway/internal/model"
	"taspla-gateway/internal/route"
)

// ProxyService matches inbound requests against the route table and forwards
// them to the selected upstream. It holds no mutable state.
type ProxyService struct {
	client *client.UpstreamClient
	routes *route.Table
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, routes *route.Table, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		routes: routes,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to the upstream selected by its path and
// returns the upstream response. The caller is responsible for closing the
// response body.
//
// Forward returns route.ErrNotFound without contacting any upstream when no
// prefix matches, client.ErrBuildRequest when the request cannot be rebuilt
// (e.g. malformed method), and a wrapped transport error otherwise. There are
// no retries.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.routes.Match(pr.Path, pr.RawQuery)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"route", target.Prefix,
		"upstream", target.URL.Host,
	)

	body := pr.Body
	if body == nil || pr.ContentLength == 0 {
		body = http.NoBody
	}

	resp, err := s.client.DoStream(pr.Ctx, target.Prefix, pr.Method, target.URL.String(),
		forwardHeaders(pr.Header), body, pr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", target.URL.Host, err)
	}

	resp.Header = relayHeaders(resp.Header)
	return resp, nil
}

// forwardHeaders copies every inbound header except Host. Authorization and
// all other credentials pass through untouched; authentication is each
// upstream's job.
func forwardHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if http.CanonicalHeaderKey(key) == "Host" {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	// An empty User-Agent stops net/http from injecting its own.
	if _, ok := dst["User-Agent"]; !ok {
		dst["User-Agent"] = []string{""}
	}
	return dst
}

// relayHeaders copies upstream response headers, silently dropping any whose
// name is not a valid HTTP token.
func relayHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if !httpguts.ValidHeaderFieldName(key) {
			continue
		}
		dst[key] = vals
	}
	return dst
}
