package main

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"taspla-gateway/internal/app"
	"taspla-gateway/internal/client"
	"taspla-gateway/internal/config"
	"taspla-gateway/internal/handler"
	"taspla-gateway/internal/metrics"
	"taspla-gateway/internal/middleware"
	"taspla-gateway/internal/route"
	"taspla-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	config.LoadEnvFiles()

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("Single-entry API gateway for the Taspla services."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			loadConfig,
			app.NewLogger,
			route.NewTableFromConfig,
			newMetrics,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, app.WarnConfigPermissions, logRoutes, app.StartServer),
	).Run()
}

func loadConfig(cli *config.CLI) (*config.Config, error) {
	return config.Load(cli, config.ServiceGateway)
}

func newMetrics(routes *route.Table) *metrics.Metrics {
	return metrics.New(routes.Prefixes()...)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := app.NewEcho(cfg, logger)
	e.Use(middleware.MetricsMiddleware(m))
	return e
}

func logRoutes(routes *route.Table, logger *slog.Logger) {
	for _, e := range routes.Entries() {
		logger.Info("route",
			"prefix", routes.APIPrefix()+e.Prefix,
			"upstream", e.Upstream.Redacted(),
		)
	}
}
