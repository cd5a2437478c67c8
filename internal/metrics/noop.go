package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncIdentification is a no-op.
func (n *NoopRecorder) IncIdentification(provider, outcome string) {}

// ObserveClassifyDuration is a no-op.
func (n *NoopRecorder) ObserveClassifyDuration(duration time.Duration) {}

// IncQuotaRejected is a no-op.
func (n *NoopRecorder) IncQuotaRejected(tier string) {}

// IncResultCacheHit is a no-op.
func (n *NoopRecorder) IncResultCacheHit() {}

// IncResultCacheMiss is a no-op.
func (n *NoopRecorder) IncResultCacheMiss() {}

// IncSubscriptionEvent is a no-op.
func (n *NoopRecorder) IncSubscriptionEvent(eventType string) {}

// IncSightingPublished is a no-op.
func (n *NoopRecorder) IncSightingPublished(status string) {}

// IncSightingProcessed is a no-op.
func (n *NoopRecorder) IncSightingProcessed(status string) {}

// ObserveSightingBatchSize is a no-op.
func (n *NoopRecorder) ObserveSightingBatchSize(size int) {}

// ObserveSightingBatchDuration is a no-op.
func (n *NoopRecorder) ObserveSightingBatchDuration(duration time.Duration) {}

// SetSightingQueueDepth is a no-op.
func (n *NoopRecorder) SetSightingQueueDepth(depth int64) {}
