// Package monitoring provides query audit logging and embedding guardrails.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/cache"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
)

// EventType classifies audit events.
type EventType string

const (
	EventQuery  EventType = "query"
	EventIngest EventType = "ingest"
	EventPurge  EventType = "purge"
)

// AuditLogger writes one structured log line per auditable action and,
// when a publisher is configured, publishes the event as JSON.
type AuditLogger struct {
	logger    *observability.Logger
	publisher cache.Publisher
	channel   string
}

// AuditEvent represents an auditable action.
type AuditEvent struct {
	ID         uuid.UUID              `json:"id"`
	Type       EventType              `json:"type"`
	RequestID  string                 `json:"request_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// QueryEvent summarises a single answered question.
type QueryEvent struct {
	Question   string
	Language   string
	Intent     string
	Retrieved  int
	Selected   int
	Aggregated bool
	Fallback   bool
	Cached     bool
	Error      string
	Latency    time.Duration
}

// NewAuditLogger creates a new audit logger. publisher may be nil.
func NewAuditLogger(logger *observability.Logger, publisher cache.Publisher, channel string) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if channel == "" {
		channel = "rag.audit"
	}
	return &AuditLogger{
		logger:    logger,
		publisher: publisher,
		channel:   channel,
	}
}

// LogEvent records an audit event. Publish failures are logged and not
// returned; auditing never fails the request it describes.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = observability.RequestIDFromContext(ctx)
	}

	a.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("request_id", event.RequestID).
		Interface("payload", event.Payload).
		Msg("Audit event")

	if a.publisher == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to encode audit event")
		return
	}
	if err := a.publisher.Publish(ctx, a.channel, data); err != nil {
		a.logger.Warn().Err(err).Str("channel", a.channel).Msg("Failed to publish audit event")
	}
}

// LogQuery records an answered question.
func (a *AuditLogger) LogQuery(ctx context.Context, q QueryEvent) {
	payload := map[string]interface{}{
		"question":   q.Question,
		"language":   q.Language,
		"intent":     q.Intent,
		"retrieved":  q.Retrieved,
		"selected":   q.Selected,
		"aggregated": q.Aggregated,
		"fallback":   q.Fallback,
		"cached":     q.Cached,
		"latency_ms": q.Latency.Milliseconds(),
	}
	if q.Error != "" {
		payload["error"] = q.Error
	}
	a.LogEvent(ctx, AuditEvent{Type: EventQuery, Payload: payload})
}

// LogIngestion records a chunk upsert batch.
func (a *AuditLogger) LogIngestion(ctx context.Context, documents []string, chunks int) {
	a.LogEvent(ctx, AuditEvent{
		Type: EventIngest,
		Payload: map[string]interface{}{
			"documents": documents,
			"chunks":    chunks,
		},
	})
}

// LogPurge records a delete by filter.
func (a *AuditLogger) LogPurge(ctx context.Context, filter map[string]string, removed int) {
	a.LogEvent(ctx, AuditEvent{
		Type: EventPurge,
		Payload: map[string]interface{}{
			"filter":  filter,
			"removed": removed,
		},
	})
}
