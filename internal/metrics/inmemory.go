package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersCreated    uint64
	UsersUpdated    uint64
	UsersDeleted    uint64
	UserCacheHits   uint64
	UserCacheMisses uint64

	LoginSuccesses uint64
	LoginFailures  map[string]uint64
	TokensIssued   uint64
	TokensRejected map[string]uint64

	AuditEventsPublished      map[string]uint64
	AuditEventsProcessed      map[string]uint64
	AuditBatchCount           uint64
	AuditBatchSizeTotal       uint64
	AuditBatchDurationTotalNs int64
	AuditQueueDepth           int64
	AuditIngestLagCount       uint64
	AuditIngestLagTotalNs     int64

	WebhookDeliveries              map[string]uint64
	WebhookRetries                 uint64
	WebhookDeliveryDurationCount   uint64
	WebhookDeliveryDurationTotalNs int64
	WebhookQueueDepth              int64
}

// InMemoryRecorder stores metrics in memory for tests and the /metrics
// endpoint. Plain counters use atomics; labeled counters use a mutex.
type InMemoryRecorder struct {
	usersCreated    uint64
	usersUpdated    uint64
	usersDeleted    uint64
	userCacheHits   uint64
	userCacheMisses uint64

	loginSuccesses uint64
	tokensIssued   uint64

	auditBatchCount           uint64
	auditBatchSizeTotal       uint64
	auditBatchDurationTotalNs int64
	auditQueueDepth           int64
	auditIngestLagCount       uint64
	auditIngestLagTotalNs     int64

	webhookRetries                 uint64
	webhookDeliveryDurationCount   uint64
	webhookDeliveryDurationTotalNs int64
	webhookQueueDepth              int64

	mu                   sync.Mutex
	loginFailures        map[string]uint64
	tokensRejected       map[string]uint64
	auditEventsPublished map[string]uint64
	auditEventsProcessed map[string]uint64
	webhookDeliveries    map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		loginFailures:        make(map[string]uint64),
		tokensRejected:       make(map[string]uint64),
		auditEventsPublished: make(map[string]uint64),
		auditEventsProcessed: make(map[string]uint64),
		webhookDeliveries:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	snap := Snapshot{
		UsersCreated:    atomic.LoadUint64(&m.usersCreated),
		UsersUpdated:    atomic.LoadUint64(&m.usersUpdated),
		UsersDeleted:    atomic.LoadUint64(&m.usersDeleted),
		UserCacheHits:   atomic.LoadUint64(&m.userCacheHits),
		UserCacheMisses: atomic.LoadUint64(&m.userCacheMisses),

		LoginSuccesses: atomic.LoadUint64(&m.loginSuccesses),
		TokensIssued:   atomic.LoadUint64(&m.tokensIssued),

		AuditBatchCount:           atomic.LoadUint64(&m.auditBatchCount),
		AuditBatchSizeTotal:       atomic.LoadUint64(&m.auditBatchSizeTotal),
		AuditBatchDurationTotalNs: atomic.LoadInt64(&m.auditBatchDurationTotalNs),
		AuditQueueDepth:           atomic.LoadInt64(&m.auditQueueDepth),
		AuditIngestLagCount:       atomic.LoadUint64(&m.auditIngestLagCount),
		AuditIngestLagTotalNs:     atomic.LoadInt64(&m.auditIngestLagTotalNs),

		WebhookRetries:                 atomic.LoadUint64(&m.webhookRetries),
		WebhookDeliveryDurationCount:   atomic.LoadUint64(&m.webhookDeliveryDurationCount),
		WebhookDeliveryDurationTotalNs: atomic.LoadInt64(&m.webhookDeliveryDurationTotalNs),
		WebhookQueueDepth:              atomic.LoadInt64(&m.webhookQueueDepth),
	}

	m.mu.Lock()
	snap.LoginFailures = copyCounts(m.loginFailures)
	snap.TokensRejected = copyCounts(m.tokensRejected)
	snap.AuditEventsPublished = copyCounts(m.auditEventsPublished)
	snap.AuditEventsProcessed = copyCounts(m.auditEventsProcessed)
	snap.WebhookDeliveries = copyCounts(m.webhookDeliveries)
	m.mu.Unlock()

	return snap
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// IncUserCreated increments the user created counter.
func (m *InMemoryRecorder) IncUserCreated() {
	atomic.AddUint64(&m.usersCreated, 1)
}

// IncUserUpdated increments the user updated counter.
func (m *InMemoryRecorder) IncUserUpdated() {
	atomic.AddUint64(&m.usersUpdated, 1)
}

// IncUserDeleted increments the user deleted counter.
func (m *InMemoryRecorder) IncUserDeleted() {
	atomic.AddUint64(&m.usersDeleted, 1)
}

// IncUserCacheHit increments the cache hit counter.
func (m *InMemoryRecorder) IncUserCacheHit() {
	atomic.AddUint64(&m.userCacheHits, 1)
}

// IncUserCacheMiss increments the cache miss counter.
func (m *InMemoryRecorder) IncUserCacheMiss() {
	atomic.AddUint64(&m.userCacheMisses, 1)
}

// IncLoginSuccess increments the successful login counter.
func (m *InMemoryRecorder) IncLoginSuccess() {
	atomic.AddUint64(&m.loginSuccesses, 1)
}

// IncLoginFailure increments the failed login counter for a reason.
func (m *InMemoryRecorder) IncLoginFailure(reason string) {
	m.mu.Lock()
	m.loginFailures[reason]++
	m.mu.Unlock()
}

// IncTokenIssued increments the token issued counter.
func (m *InMemoryRecorder) IncTokenIssued() {
	atomic.AddUint64(&m.tokensIssued, 1)
}

// IncTokenRejected increments the token rejected counter for a reason.
func (m *InMemoryRecorder) IncTokenRejected(reason string) {
	m.mu.Lock()
	m.tokensRejected[reason]++
	m.mu.Unlock()
}

// IncAuditEventPublished increments the audit publish counter for a status.
func (m *InMemoryRecorder) IncAuditEventPublished(status string) {
	m.mu.Lock()
	m.auditEventsPublished[status]++
	m.mu.Unlock()
}

// IncAuditEventProcessed increments the audit processed counter for a status.
func (m *InMemoryRecorder) IncAuditEventProcessed(status string) {
	m.mu.Lock()
	m.auditEventsProcessed[status]++
	m.mu.Unlock()
}

// ObserveAuditBatchSize records an audit batch size.
func (m *InMemoryRecorder) ObserveAuditBatchSize(size int) {
	atomic.AddUint64(&m.auditBatchCount, 1)
	atomic.AddUint64(&m.auditBatchSizeTotal, uint64(size))
}

// ObserveAuditBatchDuration records an audit batch duration.
func (m *InMemoryRecorder) ObserveAuditBatchDuration(duration time.Duration) {
	atomic.AddInt64(&m.auditBatchDurationTotalNs, duration.Nanoseconds())
}

// SetAuditQueueDepth records the audit stream backlog.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {
	atomic.StoreInt64(&m.auditQueueDepth, depth)
}

// ObserveAuditIngestLag records time between event occurrence and ingestion.
func (m *InMemoryRecorder) ObserveAuditIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.auditIngestLagCount, 1)
	atomic.AddInt64(&m.auditIngestLagTotalNs, lag.Nanoseconds())
}

// IncWebhookDelivery increments the delivery counter for a status.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	m.mu.Lock()
	m.webhookDeliveries[status]++
	m.mu.Unlock()
}

// IncWebhookRetry increments the retry counter.
func (m *InMemoryRecorder) IncWebhookRetry() {
	atomic.AddUint64(&m.webhookRetries, 1)
}

// ObserveWebhookDeliveryDuration records a delivery attempt duration.
func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {
	atomic.AddUint64(&m.webhookDeliveryDurationCount, 1)
	atomic.AddInt64(&m.webhookDeliveryDurationTotalNs, duration.Nanoseconds())
}

// SetWebhookQueueDepth records the pending delivery backlog.
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {
	atomic.StoreInt64(&m.webhookQueueDepth, depth)
}
