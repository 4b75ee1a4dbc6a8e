package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pubdetect/internal/audit"
	"pubdetect/internal/models"
)

type AuditStore interface {
	Insert(ctx context.Context, event models.AuditEvent) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Processor applies audit stream entries to the audit_log table.
type Processor struct {
	store     AuditStore
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewProcessor(store AuditStore, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := audit.Decode(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case audit.TaskAudit:
		return p.handleAudit(ctx, task)
	case audit.TaskCleanup:
		return p.handleCleanup(ctx)
	default:
		// Acked and dropped; retrying an unknown type never helps.
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleAudit(ctx context.Context, task audit.Task) error {
	event, err := task.Event()
	if err != nil {
		p.logger.Warn().Err(err).Str("action", task.Action).Msg("malformed audit event dropped")
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	if err := p.store.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}
	cutoff := p.now().UTC().Add(-p.retention)
	removed, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup audit log: %w", err)
	}
	p.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("audit cleanup done")
	return nil
}
