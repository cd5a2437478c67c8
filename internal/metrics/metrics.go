// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Identification outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeCached   = "cached"
	OutcomeNoPlant  = "no_plant"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Identification metrics
	IncIdentification(provider, outcome string)
	ObserveClassifyDuration(duration time.Duration)
	IncQuotaRejected(tier string)

	// Result cache metrics
	IncResultCacheHit()
	IncResultCacheMiss()

	// Billing metrics
	IncSubscriptionEvent(eventType string)

	// Sighting pipeline metrics
	IncSightingPublished(status string) // status: "success" or "dropped"
	IncSightingProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveSightingBatchSize(size int)
	ObserveSightingBatchDuration(duration time.Duration)
	SetSightingQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
