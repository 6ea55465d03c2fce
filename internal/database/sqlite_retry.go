package database

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"strings"
	"time"
)

const (
	maxRetries = 1000
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 25 * time.Millisecond
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isRetryableError checks if the error is a retryable SQLite error
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "busy")
}

// backoff sleeps before the next attempt. It returns false when ctx is done.
func backoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	// Add random jitter (up to 50% of delay)
	delay += time.Duration(rand.Int63n(int64(delay) / 2))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// retryableExec executes a SQL statement with retry logic for lock conflicts
func retryableExec(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		if attempt < maxRetries-1 {
			log.Printf("[DB] SQLite retry attempt %d/%d for query (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if !backoff(ctx, attempt) {
				return result, ctx.Err()
			}
		}
	}
	return result, err
}

// retryableQueryRowScan executes a QueryRow and Scan with retry logic
func retryableQueryRowScan(ctx context.Context, db queryer, query string, args []any, dest ...any) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = db.QueryRowContext(ctx, query, args...).Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			log.Printf("[DB] SQLite retry attempt %d/%d for QueryRow scan (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if !backoff(ctx, attempt) {
				return ctx.Err()
			}
		}
	}
	return err
}

// retryableQuery executes a query that returns multiple rows with retry logic
func retryableQuery(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err = db.QueryContext(ctx, query, args...)
		if !isRetryableError(err) {
			return rows, err
		}
		if attempt < maxRetries-1 {
			log.Printf("[DB] SQLite retry attempt %d/%d for query (first 50 chars): %s... Error: %v",
				attempt+1, maxRetries, truncateString(query, 50), err)
			if !backoff(ctx, attempt) {
				return nil, ctx.Err()
			}
		}
	}
	return rows, err
}

// retryableBeginTx starts a transaction, retrying while the database is locked.
func retryableBeginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	var tx *sql.Tx
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err = db.BeginTx(ctx, nil)
		if !isRetryableError(err) {
			return tx, err
		}
		if attempt < maxRetries-1 {
			log.Printf("[DB] SQLite retry attempt %d/%d for transaction begin: %v", attempt+1, maxRetries, err)
			if !backoff(ctx, attempt) {
				return nil, ctx.Err()
			}
		}
	}
	return tx, err
}

// truncateString truncates a string to the specified length
func truncateString(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length]
}
