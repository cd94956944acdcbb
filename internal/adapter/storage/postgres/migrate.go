package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTable is the goose version table.
const MigrationTable = "schema_migrations"

// Migrate applies all pending embedded migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationTable)
	goose.SetLogger(gooseLogger{log: log.With().Str("component", "migrate").Logger()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info().Int64("version", version).Msg("database schema up to date")
	return nil
}

// gooseLogger forwards goose output to zerolog. Fatalf does not exit.
type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msgf(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}
