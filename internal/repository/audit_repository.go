package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pubdetect/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// EnsureSchema creates the audit_log table on first start.
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			level       TEXT        NOT NULL,
			action      TEXT        NOT NULL,
			message     TEXT        NOT NULL DEFAULT '',
			user_id     TEXT,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS audit_log_occurred_at_idx ON audit_log (occurred_at)
	`
	_, err := r.pool.Exec(ctx, query)
	return err
}

func (r *AuditRepository) Insert(ctx context.Context, event models.AuditEvent) error {
	const query = `
		INSERT INTO audit_log (level, action, message, user_id, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query,
		event.Level,
		event.Action,
		event.Message,
		event.UserID,
		occurred,
	)
	return err
}

// DeleteBefore removes rows older than cutoff and reports how many.
func (r *AuditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM audit_log WHERE occurred_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
