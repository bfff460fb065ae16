package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"taskboard/internal/config"
	"taskboard/pkg/logger"
)

var (
	pool *sql.DB
	once sync.Once
)

// DB returns the global database connection pool (initialized on first use).
func DB(ctx context.Context) *sql.DB {
	once.Do(func() {
		cfg := config.Get()
		if cfg.DatabaseURL == "" {
			logger.Error(ctx, "DATABASE_URL is not set")
			return
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error(ctx, "Failed to open database", "error", err)
			return
		}
		db.SetMaxOpenConns(cfg.DBPoolSize)
		db.SetMaxIdleConns(cfg.DBPoolSize / 2)
		pool = db
		logger.Info(ctx, "Database pool initialized", "max_open", cfg.DBPoolSize)
	})
	return pool
}

// InitDB initializes the DB pool and returns it.
func InitDB(ctx context.Context) *sql.DB {
	return DB(ctx)
}

// Schema is the tasks table. Rows are soft deleted through deleted_at.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		text         TEXT NOT NULL,
		category     TEXT NOT NULL DEFAULT 'Other',
		priority     TEXT NOT NULL DEFAULT 'Normal',
		due_date     DATE,
		due_time     TEXT,
		completed    BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TIMESTAMPTZ,
		notes        TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at   TIMESTAMPTZ
	)`,
	`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS priority TEXT NOT NULL DEFAULT 'Normal'`,
	`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS notes TEXT`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_live ON tasks (user_id, created_at) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks (user_id, due_date) WHERE deleted_at IS NULL`,
}

// MigrateOrCreateSchema applies Schema. Every statement is idempotent.
func MigrateOrCreateSchema(ctx context.Context) error {
	db := DB(ctx)
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	logger.Info(ctx, "Schema ready", "statements", len(Schema))
	return nil
}
