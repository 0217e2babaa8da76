// seed loads the permission catalog and standard roles into Postgres, and with --dev-users the
// sample accounts used for local testing. Safe to run repeatedly.
package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/config"
	"multidept-session-trust/backend/internal/db"
	permrepo "multidept-session-trust/backend/internal/permission/repository"
	"multidept-session-trust/backend/internal/platform/logging"
	"multidept-session-trust/backend/internal/seed"
	userrepo "multidept-session-trust/backend/internal/user/repository"
)

var cli struct {
	DevUsers bool `name:"dev-users" help:"Also create development users."`
}

func main() {
	kong.Parse(&cli, kong.Name("seed"), kong.Description("Load roles and permissions."))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, !cfg.IsProduction())
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if cli.DevUsers && cfg.IsProduction() {
		log.Fatal().Msg("refusing to create development users in production")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer conn.Close()

	if err := seed.Apply(ctx, userrepo.NewPostgresRepository(conn), permrepo.NewPostgresRepository(conn), cli.DevUsers); err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
}
