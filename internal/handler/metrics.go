package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/courierchat/courier/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "courier_users_created_total %d\n", snap.UsersCreated)
	writeMetric(w, "courier_users_updated_total %d\n", snap.UsersUpdated)
	writeMetric(w, "courier_users_deleted_total %d\n", snap.UsersDeleted)
	writeMetric(w, "courier_user_cache_hits_total %d\n", snap.UserCacheHits)
	writeMetric(w, "courier_user_cache_misses_total %d\n", snap.UserCacheMisses)

	writeMetric(w, "courier_logins_total{result=\"success\"} %d\n", snap.LoginSuccesses)
	writeLabeled(w, "courier_login_failures_total", "reason", snap.LoginFailures)
	writeMetric(w, "courier_tokens_issued_total %d\n", snap.TokensIssued)
	writeLabeled(w, "courier_tokens_rejected_total", "reason", snap.TokensRejected)

	writeLabeled(w, "courier_audit_events_published_total", "status", snap.AuditEventsPublished)
	writeLabeled(w, "courier_audit_events_processed_total", "status", snap.AuditEventsProcessed)
	writeMetric(w, "courier_audit_batches_total %d\n", snap.AuditBatchCount)
	writeMetric(w, "courier_audit_batch_size_total %d\n", snap.AuditBatchSizeTotal)
	writeMetric(w, "courier_audit_batch_duration_seconds_sum %.6f\n", float64(snap.AuditBatchDurationTotalNs)/1e9)
	writeMetric(w, "courier_audit_queue_depth %d\n", snap.AuditQueueDepth)
	writeMetric(w, "courier_audit_ingest_lag_seconds_count %d\n", snap.AuditIngestLagCount)
	writeMetric(w, "courier_audit_ingest_lag_seconds_sum %.6f\n", float64(snap.AuditIngestLagTotalNs)/1e9)

	writeLabeled(w, "courier_webhook_deliveries_total", "status", snap.WebhookDeliveries)
	writeMetric(w, "courier_webhook_retries_total %d\n", snap.WebhookRetries)
	writeMetric(w, "courier_webhook_delivery_duration_seconds_count %d\n", snap.WebhookDeliveryDurationCount)
	writeMetric(w, "courier_webhook_delivery_duration_seconds_sum %.6f\n", float64(snap.WebhookDeliveryDurationTotalNs)/1e9)
	writeMetric(w, "courier_webhook_queue_depth %d\n", snap.WebhookQueueDepth)
}

// writeLabeled emits one line per label value, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
