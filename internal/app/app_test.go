package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx/fxtest"

	"taspla-gateway/internal/config"
)

func TestNewLogger_LevelAndFormat(t *testing.T) {
	tests := []struct {
		level     string
		format    string
		wantDebug bool
		wantWarn  bool
		wantJSON  bool
	}{
		{"debug", "json", true, true, true},
		{"info", "text", false, true, false},
		{"warn", "", false, true, true},
		{"error", "json", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&config.Config{Log: config.LogConfig{Level: tt.level, Format: tt.format}}, &buf)
			ctx := context.Background()

			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}

			logger.Error("format check", "k", "v")
			isJSON := json.Valid(bytes.TrimSpace(buf.Bytes()))
			if isJSON != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v (%q)", isJSON, tt.wantJSON, buf.String())
			}
		})
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			BodyMaxBytes: 16,
			RateLimit:    config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1000},
		},
	}
}

func TestNewEcho_Middleware(t *testing.T) {
	e := NewEcho(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.POST("/echo", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/panic", func(echo.Context) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("small")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestStartServer_Lifecycle(t *testing.T) {
	// Reserve a free port, then release it for the server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := testConfig()
	cfg.Server.Port = port
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEcho(cfg, logger)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	lc := fxtest.NewLifecycle(t)
	StartServer(lc, e, cfg, logger)
	lc.RequireStart()

	resp, err := http.Get("http://" + cfg.Server.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	lc.RequireStop()
}
