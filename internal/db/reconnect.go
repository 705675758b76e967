package db

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/unklstewy/rotse-mount/pkg/config"
)

// maxReconnectDelay caps the exponential backoff between attempts.
const maxReconnectDelay = 60 * time.Second

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// The calibration store can come up after the mount controller host does.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between retries
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration) (*DB, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		log.Printf("db: connection attempt %d...", attempt)

		db, err := Connect(cfg)
		if err == nil {
			log.Println("db: connected")
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		log.Printf("db: connection failed: %v (retry in %v)", err, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = nextDelay(delay)
	}
}

// nextDelay doubles d up to maxReconnectDelay.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		log.Printf("db: health check failed: %v", err)
		return false
	}
	return result == 1
}

// connErrors are fragments of errors that indicate a lost connection
// rather than a failed statement.
var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"bad connection",
	"eof",
	"timeout",
}

// isConnError reports whether err looks like a transient connection failure.
func isConnError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying only on connection
// failures. Statement errors are returned immediately.
func WithRetry(ctx context.Context, operation func(context.Context) error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isConnError(err) {
			return err
		}

		if attempt < maxRetries {
			wait := time.Duration(attempt+1) * time.Second
			log.Printf("db: operation failed (attempt %d/%d): %v (retry in %v)",
				attempt+1, maxRetries+1, err, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return lastErr
}
