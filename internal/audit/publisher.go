// Package audit captures auth events and persists them as an audit trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierchat/courier/internal/metrics"
	"github.com/courierchat/courier/internal/model"
)

const (
	// StreamKey is the Redis stream for auth events.
	StreamKey = "stream:auth_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:auth_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// AuthEventPayload is the compressed event format for the Redis stream.
type AuthEventPayload struct {
	Kind       string `json:"k"`
	Email      string `json:"e"`
	Reason     string `json:"r,omitempty"`
	RequestID  string `json:"rid,omitempty"`
	RemoteAddr string `json:"ra,omitempty"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// NewPayload builds a payload for an event happening now.
func NewPayload(kind model.AuthEventKind, email, reason, requestID, remoteAddr string) AuthEventPayload {
	return AuthEventPayload{
		Kind:       string(kind),
		Email:      email,
		Reason:     reason,
		RequestID:  requestID,
		RemoteAddr: remoteAddr,
		OccurredAt: time.Now().UnixMilli(),
	}
}

// Publisher enqueues auth events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new audit event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish adds an auth event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event AuthEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event AuthEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish auth event",
				"kind", event.Kind,
				"error", err,
			)
			p.metrics.IncAuditEventPublished("dropped")
			return
		}

		p.logger.Debug("auth event published",
			"kind", event.Kind,
			"stream_id", streamID,
		)
		p.metrics.IncAuditEventPublished("success")
	}()
}
