package main

import (
	"context"
	"os"

	"altcoin/internal/config"
	"altcoin/internal/db"
	"altcoin/internal/logger"
	"altcoin/migrations"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.AppEnv)
	defer log.Sync()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	applied, err := migrate(context.Background(), database, log)
	if err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("migrations complete", zap.Int("applied", applied))
}

// migrate applies each pending file whole, inside its own transaction, so
// function bodies containing semicolons survive intact.
func migrate(ctx context.Context, database *sqlx.DB, log *zap.Logger) (int, error) {
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return 0, err
	}

	list, err := migrations.List()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range list {
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, m.Name); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		if err := applyMigration(ctx, database, m); err != nil {
			return applied, err
		}
		applied++
		log.Info("applied migration", zap.String("file", m.Name))
	}
	return applied, nil
}

func applyMigration(ctx context.Context, database *sqlx.DB, m migrations.Migration) error {
	tx, err := database.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
