package postgres

import (
	"context"
	"embed"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	Pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error creating connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "error connecting to database")
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies embedded migrations in filename order, once each.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(err, "error creating migrations table")
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "error reading migrations directory")
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, fname := range files {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			fname,
		).Scan(&exists)
		if err != nil {
			return errors.Wrap(err, "error checking migration status")
		}
		if exists {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + fname)
		if err != nil {
			return errors.Wrapf(err, "error reading migration %s", fname)
		}
		if _, err := db.Pool.Exec(ctx, string(content)); err != nil {
			return errors.Wrapf(err, "error executing migration %s", fname)
		}
		if _, err := db.Pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", fname); err != nil {
			return errors.Wrapf(err, "error recording migration %s", fname)
		}
		log.Info().Str("migration", fname).Msg("applied migration")
	}
	return nil
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
