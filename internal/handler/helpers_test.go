package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/florascope/florascope/internal/activity"
	"github.com/florascope/florascope/internal/billing"
	"github.com/florascope/florascope/internal/classifier"
	"github.com/florascope/florascope/internal/imagestore"
	"github.com/florascope/florascope/internal/metrics"
	"github.com/florascope/florascope/internal/quota"
	"github.com/florascope/florascope/internal/repository"
	"github.com/florascope/florascope/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pngBase64 returns a base64 payload that sniffs as image/png.
func pngBase64(suffix string) string {
	data := append([]byte("\x89PNG\r\n\x1a\n"), []byte("florascope-handler-"+suffix)...)
	return base64.StdEncoding.EncodeToString(data)
}

type stubClassifier struct {
	result *classifier.Result
	err    error
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) Classify(context.Context, *classifier.Image) (*classifier.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	return &r, nil
}

func monsteraResult() *classifier.Result {
	return &classifier.Result{
		Provider:       "plantid",
		ScientificName: "Monstera deliciosa",
		CommonNames:    []string{"Swiss cheese plant"},
		Probability:    0.91,
		Family:         "Araceae",
	}
}

// stubBilling is a minimal billing.Provider for HTTP tests.
type stubBilling struct {
	mu       sync.Mutex
	subs     map[string]*billing.Subscription
	status   string
	event    *billing.Event
	parseErr error
}

func newStubBilling() *stubBilling {
	return &stubBilling{subs: make(map[string]*billing.Subscription), status: "incomplete"}
}

func (b *stubBilling) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	return "cus_" + userID, nil
}

func (b *stubBilling) CreateSubscription(_ context.Context, customerID, userID string) (*billing.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &billing.Subscription{
		ID:           "sub_" + userID,
		CustomerID:   customerID,
		Status:       b.status,
		ClientSecret: "pi_secret_" + userID,
		UserID:       userID,
	}
	b.subs[sub.ID] = sub
	cp := *sub
	return &cp, nil
}

func (b *stubBilling) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return nil, billing.ErrInvalidPayload
	}
	cp := *sub
	cp.ClientSecret = ""
	return &cp, nil
}

func (b *stubBilling) CancelAtPeriodEnd(_ context.Context, id string) (*billing.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return nil, billing.ErrInvalidPayload
	}
	sub.CancelAtPeriodEnd = true
	end := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	sub.CurrentPeriodEnd = &end
	cp := *sub
	return &cp, nil
}

func (b *stubBilling) ParseWebhook([]byte, string) (*billing.Event, error) {
	if b.parseErr != nil {
		return nil, b.parseErr
	}
	return b.event, nil
}

func (b *stubBilling) activate(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id].Status = "active"
}

type testEnv struct {
	router     *chi.Mux
	store      *repository.MemoryStore
	classifier *stubClassifier
	billing    *stubBilling
	recorder   *metrics.InMemoryRecorder
}

type envConfig struct {
	policy    quota.Policy
	noBilling bool
	maxBody   int64
	maxImage  int
}

type envOption func(*envConfig)

func withPolicy(p quota.Policy) envOption {
	return func(c *envConfig) { c.policy = p }
}

func withoutBilling() envOption {
	return func(c *envConfig) { c.noBilling = true }
}

func withMaxBody(n int64) envOption {
	return func(c *envConfig) { c.maxBody = n }
}

func withMaxImage(n int) envOption {
	return func(c *envConfig) { c.maxImage = n }
}

// newTestEnv wires the real router and services over the memory store.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{
		policy:   quota.Policy{FreeDailyLimit: 3, TrialDays: 5, PremiumMonthlyLimit: 100},
		maxBody:  1 << 20,
		maxImage: 512 << 10,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := discardLogger()
	store := repository.NewMemoryStore()
	cls := &stubClassifier{result: monsteraResult()}
	recorder := metrics.NewInMemory()

	stub := newStubBilling()
	var provider billing.Provider = stub
	if cfg.noBilling {
		provider = nil
	}

	router := NewRouter(RouterConfig{
		Logger: logger,
		Identifications: service.NewIdentificationService(service.IdentificationDeps{
			Store:               store,
			Classifier:          cls,
			Images:              imagestore.Inline{},
			Sightings:           activity.NewDirect(store, logger, recorder),
			Policy:              cfg.policy,
			Logger:              logger,
			Metrics:             recorder,
			MaxImageBytes:       cfg.maxImage,
			HistoryDefaultLimit: 10,
			HistoryMaxLimit:     50,
		}),
		Usage:              service.NewUsageService(store, cfg.policy),
		Subscriptions:      service.NewSubscriptionService(store, provider, cfg.policy, logger, recorder),
		Stats:              service.NewStatsService(store),
		Database:           store,
		Metrics:            recorder,
		CORSAllowedOrigins: []string{"capacitor://localhost"},
		MaxRequestBodySize: cfg.maxBody,
	})

	return &testEnv{router: router, store: store, classifier: cls, billing: stub, recorder: recorder}
}

// do sends a request through the router. A non-nil body is JSON encoded
// unless it is already a []byte.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}
