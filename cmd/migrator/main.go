// Command migrator applies database schema migrations. Migration files are
// embedded in the binary, so the migrator runs standalone against the
// configured database.
//
// Usage:
//
//	go run ./cmd/migrator [-config configs/development.yaml] [-type up|down]
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	migrationType := flag.String("type", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg.Postgres, *migrationType); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.PostgresConfig, migrationType string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations source: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, databaseURL(cfg))
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if closeErr := errors.Join(srcErr, dbErr); closeErr != nil {
			slog.Error("closing migrator", "error", closeErr)
		}
	}()

	switch migrationType {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	default:
		return fmt.Errorf("unknown migration type %q", migrationType)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "type", migrationType)
	return nil
}

func databaseURL(cfg config.PostgresConfig) string {
	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     cfg.Database,
		RawQuery: "sslmode=" + cfg.SSLMode,
	}).String()
}
