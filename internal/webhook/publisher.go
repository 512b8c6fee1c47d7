package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/courierchat/courier/internal/model"
)

// Publisher creates webhook delivery records when events occur.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// RemoveOwnerEndpoints soft-deletes every endpoint owned by the given
// account. Called when the account itself is deleted.
func (p *Publisher) RemoveOwnerEndpoints(ctx context.Context, ownerEmail string) error {
	if err := p.repo.DeleteEndpointsByOwner(ctx, ownerEmail); err != nil {
		return fmt.Errorf("delete owner endpoints: %w", err)
	}
	return nil
}

// PublishAccountEvent creates webhook deliveries for an account event.
// It fans out to every active endpoint subscribed to the event type.
// eventID must be stable per logical event so redelivery stays idempotent.
func (p *Publisher) PublishAccountEvent(ctx context.Context, eventType model.EventType, eventID string, data model.AccountEventData) error {
	endpoints, err := p.repo.ListActiveEndpointsByEvent(ctx, eventType)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return nil // No webhooks configured
	}

	// Build payload once, reuse for all endpoints
	now := time.Now()
	payload := model.WebhookPayload{
		EventType: string(eventType),
		EventID:   eventID,
		Timestamp: now,
		Data: map[string]any{
			"email":  data.Email,
			"handle": data.Handle,
		},
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Create delivery for each endpoint
	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:           ulid.Make().String(),
			EndpointID:   endpoint.ID,
			EventID:      eventID,
			EventType:    eventType,
			PayloadJSON:  string(payloadJSON),
			Status:       model.DeliveryStatusPending,
			AttemptCount: 0,
			MaxAttempts:  DefaultMaxAttempts,
			NextRetryAt:  now, // Immediate delivery
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			p.logger.Warn("failed to create delivery",
				"endpoint_id", endpoint.ID,
				"event_id", eventID,
				"error", err,
			)
			// Continue with other endpoints
			continue
		}

		p.logger.Debug("webhook delivery created",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_id", eventID,
		)
	}

	return nil
}
