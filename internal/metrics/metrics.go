// Package metrics registers the Prometheus collectors vidresolve exports on
// /metrics. Label values are normalized against fixed allowlists so callers
// cannot inflate cardinality.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidresolve"

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Resolutions returned by outcome and failure reason",
	}, []string{"outcome", "reason"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Resolution cache lookups by result",
	}, []string{"result"})

	inflightWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inflight_waits_total",
		Help:      "Resolutions that waited on another caller's in-flight provider call",
	})

	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Provider API requests by endpoint and result",
	}, []string{"endpoint", "result"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Provider API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Provider notifications by decision and reason",
	}, []string{"decision", "reason"})

	reconcileRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_records_total",
		Help:      "Records visited by reconciliation by action taken",
	}, []string{"action"})

	backgroundPatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "background_patches_total",
		Help:      "Fire-and-forget record patches issued from the API read path by result",
	}, []string{"result"})
)

// IncResolution records a resolver outcome. reason is forced to "none" unless
// the outcome is "failed".
func IncResolution(outcome, reason string) {
	outcomeLabel := normalize(outcome, "resolved", "pending", "failed")
	reasonLabel := "none"
	if outcomeLabel == "failed" {
		reasonLabel = normalize(reason, "asset_errored", "asset_deleted", "provider_unavailable", "malformed")
	}
	resolutionsTotal.WithLabelValues(outcomeLabel, reasonLabel).Inc()
}

// IncCacheLookup records a cache hit, miss, or expired transient entry.
func IncCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(normalize(result, "hit", "miss", "expired")).Inc()
}

// IncInflightWait records a caller that lost the reservation race and waited.
func IncInflightWait() {
	inflightWaitsTotal.Inc()
}

// ObserveProviderRequest records one provider call.
func ObserveProviderRequest(endpoint, result string, elapsed time.Duration) {
	endpointLabel := normalize(endpoint, "asset", "upload")
	providerRequestsTotal.WithLabelValues(endpointLabel, normalize(result, "ok", "not_found", "unavailable")).Inc()
	providerRequestDuration.WithLabelValues(endpointLabel).Observe(elapsed.Seconds())
}

// IncWebhookEvent records a webhook decision. reason is "none" for accepted events.
func IncWebhookEvent(decision, reason string) {
	decisionLabel := normalize(decision, "accepted", "rejected", "error")
	reasonLabel := "none"
	if decisionLabel != "accepted" {
		reasonLabel = normalize(reason, "unrecognized_event", "malformed", "terminal_asset", "bad_signature", "store_error")
	}
	webhookEventsTotal.WithLabelValues(decisionLabel, reasonLabel).Inc()
}

// IncReconcileRecord records the action reconciliation took for one record.
func IncReconcileRecord(action string) {
	reconcileRecordsTotal.WithLabelValues(normalize(action, "patched", "skipped", "deferred", "malformed", "refused", "failed")).Inc()
}

// IncBackgroundPatch records the outcome of a detached API-path patch.
func IncBackgroundPatch(result string) {
	backgroundPatchesTotal.WithLabelValues(normalize(result, "applied", "unchanged", "refused", "error")).Inc()
}

func normalize(value string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return "unknown"
}
