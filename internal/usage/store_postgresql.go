package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder implements Recorder for PostgreSQL databases.
type PostgresRecorder struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgresRecorder creates a PostgreSQL usage recorder. It creates the
// usage table if it doesn't exist and starts a background cleanup goroutine
// when retention is configured.
func NewPostgresRecorder(pool *pgxpool.Pool, retentionDays int) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_usage (
			id UUID PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			timestamp TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_usage table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_timestamp ON chat_usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_provider ON chat_usage(provider)",
		"CREATE INDEX IF NOT EXISTS idx_chat_usage_model ON chat_usage(model)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	rec := &PostgresRecorder{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go rec.cleanupLoop()
	}

	return rec, nil
}

// Write implements Recorder.
func (r *PostgresRecorder) Write(ctx context.Context, rec *Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_usage (id, provider, model, account_id,
			input_tokens, output_tokens, cost, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Provider, rec.Model, rec.AccountID,
		rec.InputTokens, rec.OutputTokens, rec.Cost, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert usage record %s: %w", rec.ID, err)
	}
	return nil
}

// TotalCost implements Recorder.
func (r *PostgresRecorder) TotalCost(ctx context.Context, provider string, since time.Time) (float64, error) {
	var total float64
	var err error
	if provider == "" {
		err = r.pool.QueryRow(ctx,
			"SELECT COALESCE(SUM(cost), 0) FROM chat_usage WHERE timestamp >= $1",
			since).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx,
			"SELECT COALESCE(SUM(cost), 0) FROM chat_usage WHERE provider = $1 AND timestamp >= $2",
			provider, since).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return total, nil
}

// Close stops the cleanup goroutine. The pool itself is owned by the caller.
// Safe to call multiple times.
func (r *PostgresRecorder) Close() error {
	if r.retentionDays > 0 && r.stopCleanup != nil {
		r.closeOnce.Do(func() {
			close(r.stopCleanup)
		})
	}
	return nil
}

func (r *PostgresRecorder) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCleanup:
			return
		}
	}
}

// cleanup deletes usage records older than the retention period.
func (r *PostgresRecorder) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)

	result, err := r.pool.Exec(ctx, "DELETE FROM chat_usage WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to clean up old usage records", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		slog.Info("cleaned up old usage records", "deleted", result.RowsAffected())
	}
}
