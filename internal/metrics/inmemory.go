package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// LabelKey identifies a labelled counter.
type LabelKey struct {
	Provider string
	Outcome  string
}

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Identifications         map[LabelKey]uint64
	ClassifyDurationCount   uint64
	ClassifyDurationTotalNs int64
	QuotaRejections         map[string]uint64
	ResultCacheHits         uint64
	ResultCacheMisses       uint64
	SubscriptionEvents      map[string]uint64

	SightingsPublished           map[string]uint64
	SightingsProcessed           map[string]uint64
	SightingBatchCount           uint64
	SightingBatchEvents          uint64
	SightingBatchDurationCount   uint64
	SightingBatchDurationTotalNs int64
	SightingQueueDepth           int64
}

// InMemoryRecorder stores metrics in memory. It backs /metrics.
type InMemoryRecorder struct {
	classifyDurationCount   uint64
	classifyDurationTotalNs int64
	resultCacheHits         uint64
	resultCacheMisses       uint64

	sightingBatchCount           uint64
	sightingBatchEvents          uint64
	sightingBatchDurationCount   uint64
	sightingBatchDurationTotalNs int64
	sightingQueueDepth           int64

	mu                 sync.Mutex
	identifications    map[LabelKey]uint64
	quotaRejections    map[string]uint64
	subscriptionEvents map[string]uint64
	sightingsPublished map[string]uint64
	sightingsProcessed map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		identifications:    make(map[LabelKey]uint64),
		quotaRejections:    make(map[string]uint64),
		subscriptionEvents: make(map[string]uint64),
		sightingsPublished: make(map[string]uint64),
		sightingsProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	idents := make(map[LabelKey]uint64, len(m.identifications))
	for k, v := range m.identifications {
		idents[k] = v
	}

	return Snapshot{
		Identifications:         idents,
		ClassifyDurationCount:   atomic.LoadUint64(&m.classifyDurationCount),
		ClassifyDurationTotalNs: atomic.LoadInt64(&m.classifyDurationTotalNs),
		QuotaRejections:         copyCounts(m.quotaRejections),
		ResultCacheHits:         atomic.LoadUint64(&m.resultCacheHits),
		ResultCacheMisses:       atomic.LoadUint64(&m.resultCacheMisses),
		SubscriptionEvents:      copyCounts(m.subscriptionEvents),

		SightingsPublished:           copyCounts(m.sightingsPublished),
		SightingsProcessed:           copyCounts(m.sightingsProcessed),
		SightingBatchCount:           atomic.LoadUint64(&m.sightingBatchCount),
		SightingBatchEvents:          atomic.LoadUint64(&m.sightingBatchEvents),
		SightingBatchDurationCount:   atomic.LoadUint64(&m.sightingBatchDurationCount),
		SightingBatchDurationTotalNs: atomic.LoadInt64(&m.sightingBatchDurationTotalNs),
		SightingQueueDepth:           atomic.LoadInt64(&m.sightingQueueDepth),
	}
}

// IncIdentification counts an identify request by provider and outcome.
func (m *InMemoryRecorder) IncIdentification(provider, outcome string) {
	m.mu.Lock()
	m.identifications[LabelKey{Provider: provider, Outcome: outcome}]++
	m.mu.Unlock()
}

// ObserveClassifyDuration records time spent in the classifier chain.
func (m *InMemoryRecorder) ObserveClassifyDuration(duration time.Duration) {
	atomic.AddUint64(&m.classifyDurationCount, 1)
	atomic.AddInt64(&m.classifyDurationTotalNs, duration.Nanoseconds())
}

// IncQuotaRejected counts a rejected request by tier.
func (m *InMemoryRecorder) IncQuotaRejected(tier string) {
	m.inc(m.quotaRejections, tier)
}

// IncResultCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncResultCacheHit() {
	atomic.AddUint64(&m.resultCacheHits, 1)
}

// IncResultCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncResultCacheMiss() {
	atomic.AddUint64(&m.resultCacheMisses, 1)
}

// IncSubscriptionEvent counts a handled Stripe webhook by event type.
func (m *InMemoryRecorder) IncSubscriptionEvent(eventType string) {
	m.inc(m.subscriptionEvents, eventType)
}

// IncSightingPublished counts published sightings by status.
func (m *InMemoryRecorder) IncSightingPublished(status string) {
	m.inc(m.sightingsPublished, status)
}

// IncSightingProcessed counts processed sightings by status.
func (m *InMemoryRecorder) IncSightingProcessed(status string) {
	m.inc(m.sightingsProcessed, status)
}

// ObserveSightingBatchSize records a processed batch.
func (m *InMemoryRecorder) ObserveSightingBatchSize(size int) {
	atomic.AddUint64(&m.sightingBatchCount, 1)
	atomic.AddUint64(&m.sightingBatchEvents, uint64(size))
}

// ObserveSightingBatchDuration records batch processing time.
func (m *InMemoryRecorder) ObserveSightingBatchDuration(duration time.Duration) {
	atomic.AddUint64(&m.sightingBatchDurationCount, 1)
	atomic.AddInt64(&m.sightingBatchDurationTotalNs, duration.Nanoseconds())
}

// SetSightingQueueDepth stores the latest pending+lag reading.
func (m *InMemoryRecorder) SetSightingQueueDepth(depth int64) {
	atomic.StoreInt64(&m.sightingQueueDepth, depth)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
