package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/florascope/florascope/internal/metrics"
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

	keys := make([]metrics.LabelKey, 0, len(snap.Identifications))
	for k := range snap.Identifications {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Provider != keys[j].Provider {
			return keys[i].Provider < keys[j].Provider
		}
		return keys[i].Outcome < keys[j].Outcome
	})
	for _, k := range keys {
		writeMetric(w, "florascope_identifications_total{provider=%q,outcome=%q} %d\n",
			k.Provider, k.Outcome, snap.Identifications[k])
	}

	writeMetric(w, "florascope_classify_duration_seconds_count %d\n", snap.ClassifyDurationCount)
	writeMetric(w, "florascope_classify_duration_seconds_sum %.6f\n", float64(snap.ClassifyDurationTotalNs)/1e9)

	writeLabeled(w, "florascope_quota_rejections_total", "tier", snap.QuotaRejections)

	writeMetric(w, "florascope_result_cache_hits_total %d\n", snap.ResultCacheHits)
	writeMetric(w, "florascope_result_cache_misses_total %d\n", snap.ResultCacheMisses)

	writeLabeled(w, "florascope_subscription_events_total", "type", snap.SubscriptionEvents)

	writeLabeled(w, "florascope_sightings_published_total", "status", snap.SightingsPublished)
	writeLabeled(w, "florascope_sightings_processed_total", "status", snap.SightingsProcessed)

	writeMetric(w, "florascope_sighting_batches_total %d\n", snap.SightingBatchCount)
	writeMetric(w, "florascope_sighting_batch_events_total %d\n", snap.SightingBatchEvents)
	writeMetric(w, "florascope_sighting_queue_depth %d\n", snap.SightingQueueDepth)
	writeMetric(w, "florascope_sighting_batch_duration_seconds_count %d\n", snap.SightingBatchDurationCount)
	writeMetric(w, "florascope_sighting_batch_duration_seconds_sum %.6f\n", float64(snap.SightingBatchDurationTotalNs)/1e9)
}

// writeLabeled writes one line per label value in sorted order.
func writeLabeled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	labels := make([]string, 0, len(values))
	for v := range values {
		labels = append(labels, v)
	}
	sort.Strings(labels)
	for _, v := range labels {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, v, values[v])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
