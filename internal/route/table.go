// Package route holds the gateway's immutable prefix routing table.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"taspla-gateway/internal/config"
)

// ErrNotFound is returned when no route prefix matches a request path.
var ErrNotFound = errors.New("unknown route")

// Entry maps one path prefix (relative to the API prefix) to an upstream base URL.
type Entry struct {
	Prefix   string
	Upstream *url.URL
}

// Table is an ordered list of entries checked in priority order; the first
// match wins. A Table is built once at startup and only read afterwards, so it
// is safe for concurrent use without locking.
type Table struct {
	apiPrefix string
	entries   []Entry
}

// Target is the result of a successful match.
type Target struct {
	Prefix string   // matched entry prefix, bounded label for metrics
	URL    *url.URL // upstream URL with the rewritten path and original query
}

// NewTable builds a table. Prefixes must start with '/' and must not repeat.
func NewTable(apiPrefix string, entries []Entry) (*Table, error) {
	if apiPrefix == "/" {
		apiPrefix = ""
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Prefix == "" || e.Prefix[0] != '/' {
			return nil, fmt.Errorf("route prefix %q must start with '/'", e.Prefix)
		}
		if seen[e.Prefix] {
			return nil, fmt.Errorf("route prefix %q is configured twice", e.Prefix)
		}
		seen[e.Prefix] = true
		if e.Upstream == nil || e.Upstream.Host == "" {
			return nil, fmt.Errorf("route prefix %q has no upstream host", e.Prefix)
		}
	}
	return &Table{apiPrefix: apiPrefix, entries: entries}, nil
}

// NewTableFromConfig builds the two route groups of the system: auth-related
// paths go to the auth service, task and settings paths to the tasks service.
func NewTableFromConfig(cfg *config.Config) (*Table, error) {
	authURL, err := url.Parse(cfg.Routes.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse routes.auth_url: %w", err)
	}
	tasksURL, err := url.Parse(cfg.Routes.TasksURL)
	if err != nil {
		return nil, fmt.Errorf("parse routes.tasks_url: %w", err)
	}

	return NewTable(cfg.Routes.APIPrefix, []Entry{
		{Prefix: "/auth", Upstream: authURL},
		{Prefix: "/users", Upstream: authURL},
		{Prefix: "/tasks", Upstream: tasksURL},
		{Prefix: "/settings", Upstream: tasksURL},
	})
}

// APIPrefix returns the shared prefix stripped from every inbound path.
func (t *Table) APIPrefix() string {
	return t.apiPrefix
}

// Entries returns a copy of the table in priority order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Prefixes returns the full inbound prefixes (API prefix included) in priority order.
func (t *Table) Prefixes() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, t.apiPrefix+e.Prefix)
	}
	return out
}

// Match strips the API prefix from path and resolves the upstream target.
// path is the escaped request path as the client sent it; the upstream URL
// keeps those bytes, so "%2F" stays an escape rather than becoming a
// separator. Prefixes match on whole path segments: "/tasks" matches
// "/tasks" and "/tasks/42" but not "/tasksets". The raw query is carried over
// untouched.
func (t *Table) Match(path, rawQuery string) (*Target, error) {
	rest, ok := stripPrefix(path, t.apiPrefix)
	if !ok {
		return nil, ErrNotFound
	}

	for _, e := range t.entries {
		if !hasSegmentPrefix(rest, e.Prefix) {
			continue
		}
		escaped := strings.TrimSuffix(e.Upstream.EscapedPath(), "/") + rest
		decoded, err := url.PathUnescape(escaped)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		u := *e.Upstream
		u.Path = decoded
		u.RawPath = escaped
		u.RawQuery = rawQuery
		return &Target{Prefix: e.Prefix, URL: &u}, nil
	}
	return nil, ErrNotFound
}

func stripPrefix(path, prefix string) (string, bool) {
	if prefix == "" {
		return path, true
	}
	if !hasSegmentPrefix(path, prefix) {
		return "", false
	}
	return path[len(prefix):], true
}

func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
