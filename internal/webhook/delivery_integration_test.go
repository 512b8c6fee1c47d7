//go:build integration

package webhook

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/courierchat/courier/internal/model"
	"github.com/courierchat/courier/internal/testutil"
)

func TestIntegrationWebhook_CreateEndpoint(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	owner := testutil.UniqueEmail("owner")
	endpoint := newTestEndpoint(t, owner)

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	retrieved, err := repo.GetEndpoint(ctx, endpoint.ID)
	if err != nil {
		t.Fatalf("GetEndpoint failed: %v", err)
	}

	if retrieved.OwnerEmail != owner {
		t.Errorf("OwnerEmail mismatch: got %q, want %q", retrieved.OwnerEmail, owner)
	}
	if retrieved.TargetURL != endpoint.TargetURL {
		t.Errorf("TargetURL mismatch: got %q, want %q", retrieved.TargetURL, endpoint.TargetURL)
	}
	if retrieved.Secret != endpoint.Secret {
		t.Error("Secret should round-trip through the database")
	}
	if !retrieved.Enabled {
		t.Error("Endpoint should be enabled")
	}
}

func TestIntegrationWebhook_CreateDelivery(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusPending {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusPending)
	}
	if retrieved.AttemptCount != 0 {
		t.Errorf("AttemptCount should be 0, got %d", retrieved.AttemptCount)
	}
}

func TestIntegrationWebhook_DeliverySuccess(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	if err := repo.UpdateDeliverySuccess(ctx, delivery.ID, 200); err != nil {
		t.Fatalf("UpdateDeliverySuccess failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusSuccess {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusSuccess)
	}
	if retrieved.AttemptCount != 1 {
		t.Errorf("AttemptCount should be 1, got %d", retrieved.AttemptCount)
	}
	if retrieved.LastHTTPStatus == nil || *retrieved.LastHTTPStatus != 200 {
		t.Error("LastHTTPStatus should be 200")
	}
}

func TestIntegrationWebhook_DeliveryRetry(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	status := 500
	nextRetry := time.Now().Add(1 * time.Minute)
	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, &status, "server error", nextRetry, false); err != nil {
		t.Fatalf("UpdateDeliveryFailure failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusFailed {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusFailed)
	}
	if retrieved.AttemptCount != 1 {
		t.Errorf("AttemptCount should be 1, got %d", retrieved.AttemptCount)
	}
	if retrieved.LastHTTPStatus == nil || *retrieved.LastHTTPStatus != 500 {
		t.Error("LastHTTPStatus should be 500")
	}
	if retrieved.LastError != "server error" {
		t.Errorf("LastError mismatch: got %q, want %q", retrieved.LastError, "server error")
	}
}

func TestIntegrationWebhook_DeliveryExhausted(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)
	delivery.MaxAttempts = 3

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	status := 503
	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, &status, "service unavailable", time.Now(), true); err != nil {
		t.Fatalf("UpdateDeliveryFailure (exhausted) failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusExhausted {
		t.Errorf("Status mismatch: got %q, want %q", retrieved.Status, model.DeliveryStatusExhausted)
	}
	if !retrieved.IsTerminal() {
		t.Error("Exhausted delivery should be terminal")
	}
}

func TestIntegrationWebhook_DuplicateEventEndpoint(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery1 := newTestDelivery(t, endpoint.ID)
	eventID := delivery1.EventID

	if err := repo.CreateDelivery(ctx, delivery1); err != nil {
		t.Fatalf("CreateDelivery (first) failed: %v", err)
	}

	delivery2 := newTestDelivery(t, endpoint.ID)
	delivery2.EventID = eventID

	// ON CONFLICT DO NOTHING makes the duplicate a no-op.
	if err := repo.CreateDelivery(ctx, delivery2); err != nil {
		t.Fatalf("CreateDelivery (duplicate) should not error: %v", err)
	}

	deliveries, total, err := repo.ListDeliveriesByEndpoint(ctx, endpoint.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListDeliveriesByEndpoint failed: %v", err)
	}

	if total != 1 {
		t.Errorf("Expected 1 delivery, got %d", total)
	}
	if len(deliveries) != 1 {
		t.Errorf("Expected 1 delivery in list, got %d", len(deliveries))
	}
}

func TestIntegrationWebhook_GetPendingDeliveries(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		delivery := newTestDelivery(t, endpoint.ID)
		delivery.NextRetryAt = time.Now().Add(-1 * time.Minute)
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			t.Fatalf("CreateDelivery (%d) failed: %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}

	futureDelivery := newTestDelivery(t, endpoint.ID)
	futureDelivery.NextRetryAt = time.Now().Add(1 * time.Hour)
	if err := repo.CreateDelivery(ctx, futureDelivery); err != nil {
		t.Fatalf("CreateDelivery (future) failed: %v", err)
	}

	pending, err := repo.GetPendingDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingDeliveries failed: %v", err)
	}

	if len(pending) != 3 {
		t.Errorf("Expected 3 pending deliveries, got %d", len(pending))
	}
}

func TestIntegrationWebhook_EndpointSoftDelete(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	if err := repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		t.Fatalf("DeleteEndpoint failed: %v", err)
	}

	_, err := repo.GetEndpoint(ctx, endpoint.ID)
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("Expected ErrEndpointNotFound, got: %v", err)
	}
}

func TestIntegrationWebhook_DeleteEndpointsByOwner(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	owner := testutil.UniqueEmail("owner")
	other := testutil.UniqueEmail("other")

	for i := 0; i < 2; i++ {
		if err := repo.CreateEndpoint(ctx, newTestEndpoint(t, owner)); err != nil {
			t.Fatalf("CreateEndpoint (owner %d) failed: %v", i, err)
		}
	}
	kept := newTestEndpoint(t, other)
	if err := repo.CreateEndpoint(ctx, kept); err != nil {
		t.Fatalf("CreateEndpoint (other) failed: %v", err)
	}

	if err := repo.DeleteEndpointsByOwner(ctx, owner); err != nil {
		t.Fatalf("DeleteEndpointsByOwner failed: %v", err)
	}

	remaining, err := repo.ListEndpointsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListEndpointsByOwner failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected 0 endpoints after owner delete, got %d", len(remaining))
	}

	if _, err := repo.GetEndpoint(ctx, kept.ID); err != nil {
		t.Errorf("Other owner's endpoint should survive: %v", err)
	}
}

func TestIntegrationWebhook_ListActiveEndpointsByEvent(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	subscribed := newTestEndpoint(t, testutil.UniqueEmail("sub"))
	subscribed.EventTypes = []model.EventType{model.EventTypeUserCreated}
	if err := repo.CreateEndpoint(ctx, subscribed); err != nil {
		t.Fatalf("CreateEndpoint (subscribed) failed: %v", err)
	}

	unsubscribed := newTestEndpoint(t, testutil.UniqueEmail("unsub"))
	unsubscribed.EventTypes = []model.EventType{model.EventTypeUserDeleted}
	if err := repo.CreateEndpoint(ctx, unsubscribed); err != nil {
		t.Fatalf("CreateEndpoint (unsubscribed) failed: %v", err)
	}

	disabled := newTestEndpoint(t, testutil.UniqueEmail("off"))
	disabled.EventTypes = []model.EventType{model.EventTypeUserCreated}
	disabled.Enabled = false
	if err := repo.CreateEndpoint(ctx, disabled); err != nil {
		t.Fatalf("CreateEndpoint (disabled) failed: %v", err)
	}

	active, err := repo.ListActiveEndpointsByEvent(ctx, model.EventTypeUserCreated)
	if err != nil {
		t.Fatalf("ListActiveEndpointsByEvent failed: %v", err)
	}

	if len(active) != 1 {
		t.Fatalf("Expected 1 active subscriber, got %d", len(active))
	}
	if active[0].ID != subscribed.ID {
		t.Errorf("Wrong endpoint returned: got %q, want %q", active[0].ID, subscribed.ID)
	}
}

func TestIntegrationWebhook_QueueDepth(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	depth, err := repo.GetQueueDepth(ctx)
	if err != nil {
		t.Fatalf("GetQueueDepth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("Expected queue depth 0, got %d", depth)
	}

	for i := 0; i < 2; i++ {
		delivery := newTestDelivery(t, endpoint.ID)
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			t.Fatalf("CreateDelivery (%d) failed: %v", i, err)
		}
		time.Sleep(1 * time.Millisecond)
	}

	depth, err = repo.GetQueueDepth(ctx)
	if err != nil {
		t.Fatalf("GetQueueDepth (after add) failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("Expected queue depth 2, got %d", depth)
	}
}

func TestIntegrationWebhook_ResetDeliveryForRetry(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	endpoint := newTestEndpoint(t, testutil.UniqueEmail("owner"))

	if err := repo.CreateEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("CreateEndpoint failed: %v", err)
	}

	delivery := newTestDelivery(t, endpoint.ID)

	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}

	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, nil, "exhausted", time.Now(), true); err != nil {
		t.Fatalf("UpdateDeliveryFailure failed: %v", err)
	}

	if err := repo.ResetDeliveryForRetry(ctx, delivery.ID, endpoint.ID); err != nil {
		t.Fatalf("ResetDeliveryForRetry failed: %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}

	if retrieved.Status != model.DeliveryStatusPending {
		t.Errorf("Status should be pending after reset, got %q", retrieved.Status)
	}
}

func TestIntegrationWebhook_ResetDeliveryForRetry_WrongEndpoint(t *testing.T) {
	ctx, _, repo := newWebhookTestEnv(t)

	owned := newTestEndpoint(t, testutil.UniqueEmail("owner"))
	foreign := newTestEndpoint(t, testutil.UniqueEmail("other"))
	for _, ep := range []*model.WebhookEndpoint{owned, foreign} {
		if err := repo.CreateEndpoint(ctx, ep); err != nil {
			t.Fatalf("CreateEndpoint failed: %v", err)
		}
	}

	delivery := newTestDelivery(t, owned.ID)
	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		t.Fatalf("CreateDelivery failed: %v", err)
	}
	if err := repo.UpdateDeliveryFailure(ctx, delivery.ID, nil, "exhausted", time.Now(), true); err != nil {
		t.Fatalf("UpdateDeliveryFailure failed: %v", err)
	}

	// A known delivery id must not be resettable through someone else's endpoint.
	if err := repo.ResetDeliveryForRetry(ctx, delivery.ID, foreign.ID); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound for foreign endpoint, got %v", err)
	}

	retrieved, _, err := repo.GetDeliveryWithEndpoint(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("GetDeliveryWithEndpoint failed: %v", err)
	}
	if retrieved.Status != model.DeliveryStatusExhausted {
		t.Errorf("Status should still be exhausted, got %q", retrieved.Status)
	}
}

func newTestEndpoint(t testing.TB, ownerEmail string) *model.WebhookEndpoint {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookEndpoint{
		ID:         testutil.UniqueID("endpoint"),
		OwnerEmail: ownerEmail,
		TargetURL:  "https://example.com/webhook",
		Secret:     "whsec-" + testutil.UniqueID(""),
		Enabled:    true,
		EventTypes: []model.EventType{model.EventTypeUserCreated},
		Name:       "Test Webhook",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newTestDelivery(t testing.TB, endpointID string) *model.WebhookDelivery {
	t.Helper()
	now := time.Now().UTC()
	return &model.WebhookDelivery{
		ID:           testutil.UniqueID("delivery"),
		EndpointID:   endpointID,
		EventID:      testutil.UniqueID("event"),
		EventType:    model.EventTypeUserCreated,
		PayloadJSON:  `{"event_type":"user.created","data":{}}`,
		Status:       model.DeliveryStatusPending,
		AttemptCount: 0,
		MaxAttempts:  5,
		NextRetryAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newWebhookTestEnv(t *testing.T) (context.Context, *sql.DB, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	resetWebhookTables(t, ctx, db)

	repo := NewRepository(db)

	return ctx, db, repo
}

func resetWebhookTables(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()

	downSQL := `
		DROP TABLE IF EXISTS webhook_deliveries;
		DROP TABLE IF EXISTS webhook_endpoints;
	`
	if _, err := db.ExecContext(ctx, downSQL); err != nil {
		t.Fatalf("drop webhook tables: %v", err)
	}

	upSQL := `
		CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id              TEXT PRIMARY KEY,
			owner_email     TEXT NOT NULL,
			target_url      TEXT NOT NULL,
			secret          TEXT NOT NULL,
			enabled         BOOLEAN NOT NULL DEFAULT true,
			event_types     TEXT[] NOT NULL DEFAULT '{user.created,user.updated,user.deleted}',
			name            TEXT,
			description     TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at      TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_webhook_endpoints_owner ON webhook_endpoints (owner_email)
			WHERE deleted_at IS NULL;

		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id              TEXT PRIMARY KEY,
			endpoint_id     TEXT NOT NULL REFERENCES webhook_endpoints(id) ON DELETE CASCADE,
			event_id        TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			payload_json    TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'pending',
			attempt_count   INT NOT NULL DEFAULT 0,
			max_attempts    INT NOT NULL DEFAULT 5,
			next_retry_at   TIMESTAMPTZ NOT NULL,
			last_attempt_at TIMESTAMPTZ,
			last_http_status INT,
			last_error      TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_pending ON webhook_deliveries (next_retry_at)
			WHERE status IN ('pending', 'failed');

		CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_deliveries_event_endpoint
			ON webhook_deliveries (event_id, endpoint_id);
	`
	if _, err := db.ExecContext(ctx, upSQL); err != nil {
		t.Fatalf("create webhook tables: %v", err)
	}
}
