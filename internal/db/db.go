// Package db stores calibration tables and the slew log in PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/unklstewy/rotse-mount/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// connString builds the lib/pq keyword/value connection string.
func connString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates or updates the database schema.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// PruneSlewLog deletes slew log entries older than maxAge.
// Calibration tables are never pruned.
func (db *DB) PruneSlewLog(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := db.ExecContext(ctx, `DELETE FROM slew_log WHERE requested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune slew log: %w", err)
	}
	return result.RowsAffected()
}

// Stats summarizes the stored data.
type Stats struct {
	CalibrationTables int
	SlewsLogged       int64
	SlewsRejected     int64
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT name) FROM calibration_tables`,
	).Scan(&stats.CalibrationTables)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count calibration tables: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE outcome <> 'ok') FROM slew_log`,
	).Scan(&stats.SlewsLogged, &stats.SlewsRejected)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count slews: %w", err)
	}

	return stats, nil
}
