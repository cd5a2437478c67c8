package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/florascope/florascope/internal/classifier"
	"github.com/florascope/florascope/internal/handler/dto"
)

func TestPopularSpecies(t *testing.T) {
	env := newTestEnv(t)

	species := []string{"Aloe vera", "Aloe vera", "Ficus lyrata"}
	for i, name := range species {
		env.classifier.result = &classifier.Result{Provider: "plantid", ScientificName: name, Probability: 0.9}
		rec := env.do(t, http.MethodPost, "/api/identify-plant", dto.IdentifyRequest{
			UserID:      "user-" + strconv.Itoa(i),
			ImageBase64: pngBase64(strconv.Itoa(i)),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("identify %d: %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/stats/species?days=1&limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decodeBody[dto.PopularSpeciesResponse](t, rec)
	if resp.Days != 1 {
		t.Errorf("days = %d", resp.Days)
	}
	if len(resp.Species) != 2 {
		t.Fatalf("expected 2 species, got %d", len(resp.Species))
	}
	if resp.Species[0].ScientificName != "Aloe vera" || resp.Species[0].Sightings != 2 {
		t.Errorf("unexpected top species: %+v", resp.Species[0])
	}
}

func TestPopularSpecies_Defaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stats/species", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp := decodeBody[dto.PopularSpeciesResponse](t, rec)
	if resp.Days != 7 || resp.Species == nil {
		t.Errorf("unexpected defaults: %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/stats/species?days=week", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/identify-plant", dto.IdentifyRequest{UserID: "user-1", ImageBase64: pngBase64("m")})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`florascope_identifications_total{provider="plantid",outcome="success"} 1`,
		`florascope_sightings_processed_total{status="success"} 1`,
		"florascope_classify_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMetricsEndpoint_NoRecorder(t *testing.T) {
	h := NewMetricsHandler(nil)

	rec := httptest.NewRecorder()
	h.Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}
