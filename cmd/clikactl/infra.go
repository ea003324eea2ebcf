package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/clika/admin-api/internal/bootstrap"
)

func connectDB(ctx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: ctx.Config.Postgres,
		Logger:   ctx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil && logger != nil {
		logger.Error("close db failed", "error", err)
	}
}
