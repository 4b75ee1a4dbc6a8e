// Package audit carries dashboard events to the worker over a Redis
// stream.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pubdetect/internal/models"
)

const (
	TaskAudit   = "audit"
	TaskCleanup = "cleanup"
)

// Task is the decoded form of one stream entry.
type Task struct {
	Type       string `json:"type"`
	Level      string `json:"level"`
	Action     string `json:"action"`
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	OccurredAt string `json:"occurred_at"`
}

func (t Task) Event() (models.AuditEvent, error) {
	event := models.AuditEvent{
		Level:   models.AuditLevel(t.Level),
		Action:  t.Action,
		Message: t.Message,
		UserID:  t.UserID,
	}
	if event.Level == "" {
		event.Level = models.AuditInfo
	}
	if t.OccurredAt != "" {
		at, err := time.Parse(time.RFC3339Nano, t.OccurredAt)
		if err != nil {
			return models.AuditEvent{}, fmt.Errorf("occurred_at: %w", err)
		}
		event.OccurredAt = at
	}
	return event, nil
}

func fields(event models.AuditEvent) map[string]any {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return map[string]any{
		"type":        TaskAudit,
		"level":       string(event.Level),
		"action":      event.Action,
		"message":     event.Message,
		"user_id":     event.UserID,
		"occurred_at": occurred.UTC().Format(time.RFC3339Nano),
	}
}

// Decode turns stream values back into a Task.
func Decode(values map[string]any) (Task, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

type Publisher interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}

type StreamPublisher struct {
	client *redis.Client
	stream string
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, event models.AuditEvent) error {
	return p.add(ctx, fields(event))
}

// EnqueueCleanup asks the worker to apply the retention policy.
func (p *StreamPublisher) EnqueueCleanup(ctx context.Context) error {
	return p.add(ctx, map[string]any{"type": TaskCleanup})
}

func (p *StreamPublisher) add(ctx context.Context, values map[string]any) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Discard drops every event. Used when Redis is not configured.
type Discard struct{}

func (Discard) Publish(context.Context, models.AuditEvent) error { return nil }

func (Discard) EnqueueCleanup(context.Context) error { return nil }
