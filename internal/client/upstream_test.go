package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taspla-gateway/internal/config"
	"taspla-gateway/internal/metrics"
)

func testClient(timeoutSeconds int, m *metrics.Metrics) *UpstreamClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  timeoutSeconds,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_DoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := testClient(10, nil)

	resp, err := c.DoStream(context.Background(), "/tasks", http.MethodGet, srv.URL+"/test", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}
}

func TestUpstreamClient_DoStream_ForwardsContentLength(t *testing.T) {
	var gotLength int64
	var gotTE []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.ContentLength
		gotTE = r.TransferEncoding
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	c := testClient(10, nil)

	resp, err := c.DoStream(context.Background(), "/tasks", http.MethodPost, srv.URL, http.Header{},
		io.NopCloser(strings.NewReader("hello")), 5)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotLength != 5 {
		t.Errorf("upstream ContentLength = %d, want 5", gotLength)
	}
	if len(gotTE) != 0 {
		t.Errorf("upstream TransferEncoding = %v, want none", gotTE)
	}
}

func TestUpstreamClient_DoesNotDecompress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ae := r.Header.Get("Accept-Encoding"); ae != "" {
			t.Errorf("Accept-Encoding = %q, want none injected", ae)
		}
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not really gzip"))
	}))
	defer srv.Close()

	c := testClient(10, nil)

	resp, err := c.DoStream(context.Background(), "/tasks", http.MethodGet, srv.URL, http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "not really gzip" {
		t.Errorf("body = %q, want raw upstream bytes", body)
	}
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Error("Content-Encoding should be relayed untouched")
	}
}

func TestUpstreamClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := testClient(10, nil)

	resp, err := c.DoStream(context.Background(), "/tasks", http.MethodGet, srv.URL+"/start", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/elsewhere" {
		t.Errorf("Location = %q, want %q", loc, "/elsewhere")
	}
}

func TestUpstreamClient_DoStream_InvalidMethod(t *testing.T) {
	c := testClient(10, nil)

	_, err := c.DoStream(context.Background(), "/tasks", "BAD METHOD", "http://127.0.0.1:1/", http.Header{}, nil, 0)
	if !errors.Is(err, ErrBuildRequest) {
		t.Fatalf("DoStream() error = %v, want ErrBuildRequest", err)
	}
}

func TestUpstreamClient_DoStream_Unreachable(t *testing.T) {
	m := metrics.New()
	c := testClient(1, m)

	_, err := c.DoStream(context.Background(), "/tasks", http.MethodGet, "http://127.0.0.1:1/nonexistent", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for unreachable host, got nil")
	}
	if errors.Is(err, ErrBuildRequest) {
		t.Errorf("transport failure should not be classified as ErrBuildRequest: %v", err)
	}

	families, gerr := m.Registry.Gather()
	if gerr != nil {
		t.Fatalf("Gather() error = %v", gerr)
	}
	for _, f := range families {
		if f.GetName() == "taspla_gateway_upstream_failures_total" {
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("failures counter = %v, want 1", v)
			}
			return
		}
	}
	t.Error("expected taspla_gateway_upstream_failures_total to be recorded")
}

func TestUpstreamClient_DoStream_CanceledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := testClient(30, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.DoStream(ctx, "/tasks", http.MethodGet, srv.URL+"/slow", http.Header{}, nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("DoStream() error = %v, want context.Canceled", err)
	}
}

func TestUpstreamClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := testClient(1, nil)

	start := time.Now()
	_, err := c.DoStream(context.Background(), "/tasks", http.MethodGet, srv.URL, http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, want about 1s", elapsed)
	}
}
