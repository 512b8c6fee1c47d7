// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Account metrics
	IncUserCreated()
	IncUserUpdated()
	IncUserDeleted()
	IncUserCacheHit()
	IncUserCacheMiss()

	// Auth metrics
	IncLoginSuccess()
	IncLoginFailure(reason string) // reason: "unknown_email", "wrong_password"
	IncTokenIssued()
	IncTokenRejected(reason string) // reason: "bad_token", "identity_mismatch", "stale_credential"

	// Audit pipeline metrics
	IncAuditEventPublished(status string) // status: "success" or "dropped"
	IncAuditEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveAuditBatchSize(size int)
	ObserveAuditBatchDuration(duration time.Duration)
	SetAuditQueueDepth(depth int64)
	ObserveAuditIngestLag(lag time.Duration)

	// Webhook delivery metrics
	IncWebhookDelivery(status string) // status: "success", "failed", "exhausted"
	IncWebhookRetry()
	ObserveWebhookDeliveryDuration(duration time.Duration)
	SetWebhookQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
