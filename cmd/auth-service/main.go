package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"
	"go.uber.org/fx"

	"taspla-gateway/internal/app"
	"taspla-gateway/internal/authapi"
	"taspla-gateway/internal/authn"
	"taspla-gateway/internal/config"
	"taspla-gateway/internal/credential"
	"taspla-gateway/internal/store"
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
		kong.Name("auth-service"),
		kong.Description("Registration, login and token verification for Taspla."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			loadConfig,
			app.NewLogger,
			app.NewEcho,
			authn.NewCodecFromConfig,
			newStore,
			fx.Annotate(
				credential.NewService,
				fx.As(new(credential.Verifier)),
			),
			authapi.NewHandler,
		),
		fx.Invoke(authapi.RegisterRoutes, app.WarnConfigPermissions, app.StartServer),
	).Run()
}

func loadConfig(cli *config.CLI) (*config.Config, error) {
	return config.Load(cli, config.ServiceAuth)
}

// newStore opens the SQLite user store and closes it when the app stops. The
// same value satisfies every narrower interface handed to consumers.
func newStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (credential.UserStore, authapi.Pinger, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s, s, nil
}
