package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"time"

	"challenge_gateway/internal/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

var DB *sql.DB

// schema holds the per-device client state that the browser used to keep locally.
const schema = `
CREATE TABLE IF NOT EXISTS client_preferences (
    device_id  TEXT        NOT NULL,
    pref_key   TEXT        NOT NULL,
    value      JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (device_id, pref_key)
)`

func Connect() {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err = DB.Ping(); err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	slog.Info("connected to PostgreSQL", "host", config.AppConfig.DBHost, "db", config.AppConfig.DBName)
}

// Migrate creates the tables the gateway needs if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("database.Migrate: %w", err)
	}
	return nil
}

func Close() {
	if DB != nil {
		DB.Close()
		slog.Info("database connection closed")
	}
}
