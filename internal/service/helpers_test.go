package service

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/florascope/florascope/internal/billing"
	"github.com/florascope/florascope/internal/cache"
	"github.com/florascope/florascope/internal/classifier"
	"github.com/florascope/florascope/internal/model"
)

var testNow = time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pngBase64 returns a base64 payload that sniffs as image/png. The suffix
// makes the digest distinct per call site.
func pngBase64(suffix string) string {
	data := append([]byte("\x89PNG\r\n\x1a\n"), []byte("florascope-test-"+suffix)...)
	return base64.StdEncoding.EncodeToString(data)
}

type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	result *classifier.Result
	err    error
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(context.Context, *classifier.Image) (*classifier.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func aloeResult() *classifier.Result {
	return &classifier.Result{
		Provider:       "plantid",
		ScientificName: "Aloe vera",
		CommonNames:    []string{"Aloe", "Medicinal aloe"},
		Probability:    0.934,
		Family:         "Asphodelaceae",
	}
}

// memoryResultCache mimics cache.ResultCache without Redis.
type memoryResultCache struct {
	mu      sync.Mutex
	entries map[string]*classifier.Result
	noPlant map[string]bool
}

func newMemoryResultCache() *memoryResultCache {
	return &memoryResultCache{
		entries: make(map[string]*classifier.Result),
		noPlant: make(map[string]bool),
	}
}

func (c *memoryResultCache) Get(_ context.Context, digest string) (*classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noPlant[digest] {
		return nil, classifier.ErrNoPlantDetected
	}
	if r, ok := c.entries[digest]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memoryResultCache) Set(_ context.Context, digest string, result *classifier.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *result
	c.entries[digest] = &cp
	return nil
}

func (c *memoryResultCache) SetNoPlant(_ context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noPlant[digest] = true
	return nil
}

type recordedSightings struct {
	mu        sync.Mutex
	sightings []model.Sighting
}

func (r *recordedSightings) Record(_ context.Context, s model.Sighting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sightings = append(r.sightings, s)
}

func (r *recordedSightings) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sightings)
}

// fakeBilling is an in-memory billing.Provider.
type fakeBilling struct {
	mu            sync.Mutex
	customers     int
	subscriptions map[string]*billing.Subscription
	nextStatus    string
	event         *billing.Event
	parseErr      error
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{subscriptions: make(map[string]*billing.Subscription), nextStatus: "incomplete"}
}

func (f *fakeBilling) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return "cus_" + userID, nil
}

func (f *fakeBilling) CreateSubscription(_ context.Context, customerID, userID string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &billing.Subscription{
		ID:           "sub_" + userID,
		CustomerID:   customerID,
		Status:       f.nextStatus,
		ClientSecret: "pi_secret_" + userID,
		UserID:       userID,
	}
	f.subscriptions[sub.ID] = sub
	cp := *sub
	return &cp, nil
}

func (f *fakeBilling) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, billing.ErrInvalidPayload
	}
	cp := *sub
	cp.ClientSecret = ""
	return &cp, nil
}

func (f *fakeBilling) CancelAtPeriodEnd(_ context.Context, id string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, billing.ErrInvalidPayload
	}
	sub.CancelAtPeriodEnd = true
	end := testNow.AddDate(0, 1, 0)
	sub.CurrentPeriodEnd = &end
	cp := *sub
	return &cp, nil
}

func (f *fakeBilling) ParseWebhook([]byte, string) (*billing.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

// setStatus changes the status Stripe would report for a subscription.
func (f *fakeBilling) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[id].Status = status
}
