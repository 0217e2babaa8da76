// migrate applies or rolls back the embedded schema migrations.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"multidept-session-trust/backend/internal/config"
	"multidept-session-trust/backend/internal/db/migrate"
)

type globals struct {
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"Postgres DSN; defaults to the value from .env."`
}

func (g *globals) dsn() (string, error) {
	if g.DatabaseURL != "" {
		return g.DatabaseURL, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", migrate.ErrNoDSN
	}
	return cfg.DatabaseURL, nil
}

type upCmd struct{}

func (upCmd) Run(g *globals) error {
	dsn, err := g.dsn()
	if err != nil {
		return err
	}
	return migrate.Up(dsn)
}

type downCmd struct {
	Steps int `arg:"" optional:"" help:"Number of migrations to roll back; omit to roll back everything."`
}

func (c downCmd) Run(g *globals) error {
	dsn, err := g.dsn()
	if err != nil {
		return err
	}
	return migrate.Down(dsn, c.Steps)
}

type versionCmd struct{}

func (versionCmd) Run(g *globals) error {
	dsn, err := g.dsn()
	if err != nil {
		return err
	}
	v, dirty, err := migrate.Version(dsn)
	if err != nil {
		return err
	}
	fmt.Printf("version %d dirty=%t\n", v, dirty)
	return nil
}

var cli struct {
	globals

	Up      upCmd      `cmd:"" default:"1" help:"Apply all pending migrations."`
	Down    downCmd    `cmd:"" help:"Roll back migrations."`
	Version versionCmd `cmd:"" help:"Print the current schema version."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("migrate"),
		kong.Description("Session trust schema migrations."),
		kong.Bind(&cli.globals),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
