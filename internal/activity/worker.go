package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/model"
)

// ConsumerGroup is shared by every API replica; each replica is one consumer.
const ConsumerGroup = "sighting_workers"

// Worker defaults.
const (
	DefaultBatchSize   = 500
	DefaultBlock       = 5 * time.Second
	DefaultMaxAttempts = 3
	DefaultClaimEvery  = 10 * time.Second
	DefaultClaimIdle   = 30 * time.Second
	DefaultDepthEvery  = 5 * time.Second

	deadLetterMaxLen = 10000
)

// WorkerConfig tunes a Worker. Zero fields take the defaults above.
type WorkerConfig struct {
	ConsumerID  string
	BatchSize   int
	Block       time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	// ClaimEvery is how often entries abandoned by a dead consumer for
	// longer than ClaimIdle are taken over.
	ClaimEvery time.Duration
	ClaimIdle  time.Duration
	// DepthEvery is how often the backlog gauge is refreshed.
	DepthEvery time.Duration
	Metrics    metrics.Recorder
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.ConsumerID == "" {
		c.ConsumerID = NewConsumerID()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.ClaimEvery <= 0 {
		c.ClaimEvery = DefaultClaimEvery
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = DefaultClaimIdle
	}
	if c.DepthEvery <= 0 {
		c.DepthEvery = DefaultDepthEvery
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoop()
	}
	return c
}

// Worker drains the sightings stream into daily species counts. Entries are
// acknowledged only after the counts are stored, so delivery is
// at-least-once.
type Worker struct {
	rdb    *redis.Client
	store  Store
	logger *slog.Logger
	cfg    WorkerConfig

	claimCursor string
	nextClaim   time.Time
	nextDepth   time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	abortOnce sync.Once
	stop      chan struct{} // finish the current step, then return
	abort     chan struct{} // cancel the current step
	done      chan struct{}
}

// NewWorker builds a worker reading StreamKey through ConsumerGroup.
func NewWorker(rdb *redis.Client, store Store, logger *slog.Logger, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		rdb:         rdb,
		store:       store,
		logger:      logger.With("component", "activity.worker", "consumer_id", cfg.ConsumerID),
		cfg:         cfg,
		claimCursor: "0-0",
		stop:        make(chan struct{}),
		abort:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run consumes until ctx is cancelled or Shutdown is called, then returns
// nil. A Worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	started := false
	w.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("worker already started")
	}
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.abort:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := w.rdb.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err(); err != nil && !isBusyGroup(err) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("create consumer group: %w", err)
	}
	w.logger.Info("sighting worker started")

	for ctx.Err() == nil && !w.stopping() {
		if err := w.step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("sighting worker step failed", "error", err)
			sleep(ctx, time.Second)
		}
	}

	w.logger.Info("sighting worker stopped")
	return nil
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// Shutdown lets the step in flight finish, which includes storing and
// acking its batch, and waits for Run to return. If ctx expires first the
// step is cancelled; its unacked entries are reclaimed by XAUTOCLAIM later.
// It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	running := true
	w.startOnce.Do(func() { running = false })
	if !running {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.abortOnce.Do(func() { close(w.abort) })
		w.logger.Warn("sighting worker shutdown timed out, abandoning batch")
		return ctx.Err()
	}
}

// step handles one batch: reclaimed entries first, new ones otherwise.
func (w *Worker) step(ctx context.Context) error {
	now := time.Now()
	if !now.Before(w.nextDepth) {
		w.nextDepth = now.Add(w.cfg.DepthEvery)
		w.refreshDepth(ctx)
	}

	var batch []redis.XMessage
	if !now.Before(w.nextClaim) {
		w.nextClaim = now.Add(w.cfg.ClaimEvery)
		claimed, err := w.claimStale(ctx)
		if err != nil {
			w.logger.Warn("claiming stale sightings failed", "error", err)
		}
		batch = claimed
	}
	if len(batch) == 0 {
		fresh, err := w.readNew(ctx)
		if err != nil {
			return err
		}
		batch = fresh
	}
	if len(batch) == 0 {
		return nil
	}

	ids := make([]string, 0, len(batch))
	sightings := make([]model.Sighting, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.ID)
		payload, err := decodeMessage(msg)
		if err != nil {
			w.deadLetter(ctx, msg, err)
			continue
		}
		sightings = append(sightings, payload.Sighting())
	}

	if len(sightings) > 0 {
		if err := w.storeWithRetry(ctx, sightings); err != nil {
			// Unacked entries stay pending and are reclaimed later.
			return fmt.Errorf("store %d sightings: %w", len(sightings), err)
		}
	}
	if err := w.rdb.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (w *Worker) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	msgs, next, err := w.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		MinIdle:  w.cfg.ClaimIdle,
		Start:    w.claimCursor,
		Count:    int64(w.cfg.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimCursor = next
	}
	return msgs, nil
}

func (w *Worker) readNew(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.cfg.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.BatchSize),
		Block:    w.cfg.Block,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("xreadgroup: %w", err)
	case len(streams) == 0:
		return nil, nil
	}
	return streams[0].Messages, nil
}

// refreshDepth publishes pending plus undelivered entries for the group.
func (w *Worker) refreshDepth(ctx context.Context) {
	groups, err := w.rdb.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("reading sighting backlog failed", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.cfg.Metrics.SetSightingQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// poisonError marks an entry that can never be processed.
type poisonError struct {
	reason string
	err    error
}

func (e *poisonError) Error() string { return e.reason + ": " + e.err.Error() }

func (e *poisonError) Unwrap() error { return e.err }

func decodeMessage(msg redis.XMessage) (SightingPayload, error) {
	var p SightingPayload
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return p, &poisonError{reason: "invalid_format", err: errors.New("payload field missing or not a string")}
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, &poisonError{reason: "unmarshal_error", err: err}
	}
	if err := p.Validate(); err != nil {
		return p, &poisonError{reason: "validation_error", err: err}
	}
	return p, nil
}

// deadLetter copies a poison entry aside. The caller still acks it.
func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, cause error) {
	reason := "unknown"
	var perr *poisonError
	if errors.As(cause, &perr) {
		reason = perr.reason
	}
	w.logger.Warn("dead-lettering sighting", "message_id", msg.ID, "reason", reason, "error", cause)

	err := w.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"source_id":        msg.ID,
			"reason":           reason,
			"detail":           cause.Error(),
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("dead-letter write failed", "message_id", msg.ID, "error", err)
	}
	w.cfg.Metrics.IncSightingProcessed("dead_lettered")
}

// storeWithRetry aggregates the batch once and retries the upsert with
// exponential backoff.
func (w *Worker) storeWithRetry(ctx context.Context, sightings []model.Sighting) error {
	counts := model.AggregateSightings(sightings)
	start := time.Now()

	var err error
	for attempt := 1; ; attempt++ {
		if err = w.store.RecordSightings(ctx, counts); err == nil {
			break
		}
		if attempt == w.cfg.MaxAttempts {
			for range sightings {
				w.cfg.Metrics.IncSightingProcessed("failed")
			}
			return err
		}
		backoff := w.cfg.RetryBase << attempt
		w.logger.Warn("recording sightings failed, retrying",
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
	}

	elapsed := time.Since(start)
	w.logger.Debug("sightings recorded",
		"sightings", len(sightings),
		"species_days", len(counts),
		"duration_ms", float64(elapsed.Microseconds())/1000,
	)
	w.cfg.Metrics.ObserveSightingBatchSize(len(sightings))
	w.cfg.Metrics.ObserveSightingBatchDuration(elapsed)
	for range sightings {
		w.cfg.Metrics.IncSightingProcessed("success")
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
