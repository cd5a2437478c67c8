package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/florascope/florascope/internal/model"
)

func newTestIdentification(userID, id string, createdAt time.Time) *model.Identification {
	return &model.Identification{
		ID:             id,
		UserID:         userID,
		ImageURL:       "data:image/jpeg;base64,AAAA",
		ScientificName: "Monstera deliciosa",
		CommonName:     "Swiss cheese plant",
		CommonNames:    []string{"Swiss cheese plant", "Split-leaf philodendron"},
		Confidence:     92,
		Description:    model.DefaultDescription,
		Origin:         model.DefaultOrigin,
		Type:           model.DefaultPlantType,
		Provider:       "plantid",
		CreatedAt:      createdAt,
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ident := newTestIdentification("u1", fmt.Sprintf("id-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateIdentification(ctx, ident); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if err := store.CreateIdentification(ctx, newTestIdentification("u2", "other", base)); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListIdentificationsByUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i, want := range []string{"id-4", "id-3", "id-2"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}

	empty, err := store.ListIdentificationsByUser(ctx, "nobody", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty history, got %d", len(empty))
	}
}

func TestMemoryStore_DuplicateIdentification(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ident := newTestIdentification("u1", "dup", time.Now())

	if err := store.CreateIdentification(ctx, ident); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateIdentification(ctx, ident); !errors.Is(err, ErrIdentificationExists) {
		t.Fatalf("expected ErrIdentificationExists, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ident := newTestIdentification("u1", "a", time.Now())
	if err := store.CreateIdentification(ctx, ident); err != nil {
		t.Fatal(err)
	}
	ident.CommonNames[0] = "mutated"

	got, _ := store.ListIdentificationsByUser(ctx, "u1", 10)
	if got[0].CommonNames[0] != "Swiss cheese plant" {
		t.Error("store must not alias caller slices")
	}
}

func TestMemoryStore_UpdateUsage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetUsage(ctx, "u1"); !errors.Is(err, ErrUsageNotFound) {
		t.Fatalf("expected ErrUsageNotFound, got %v", err)
	}

	u, err := store.UpdateUsage(ctx, "u1", func(u *model.UserUsage) error {
		u.DailyCount++
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.DailyCount != 1 || u.UserID != "u1" {
		t.Fatalf("unexpected usage: %+v", u)
	}

	boom := errors.New("boom")
	if _, err := store.UpdateUsage(ctx, "u1", func(u *model.UserUsage) error {
		u.DailyCount = 99
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	stored, err := store.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.DailyCount != 1 {
		t.Errorf("failed mutation must not persist, got %d", stored.DailyCount)
	}
}

func TestMemoryStore_UpdateUsageFailureDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, _ = store.UpdateUsage(ctx, "ghost", func(*model.UserUsage) error { return errors.New("no") })
	if _, err := store.GetUsage(ctx, "ghost"); !errors.Is(err, ErrUsageNotFound) {
		t.Fatalf("expected no record, got %v", err)
	}
}

func TestMemoryStore_UpdateUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.UpdateUsage(ctx, "u1", func(u *model.UserUsage) error {
				u.MonthlyCount++
				return nil
			})
		}()
	}
	wg.Wait()

	u, err := store.GetUsage(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.MonthlyCount != 50 {
		t.Errorf("expected 50 increments, got %d", u.MonthlyCount)
	}
}

func TestMemoryStore_StripeCustomer(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	setCustomer := func(id string) UsageMutator {
		return func(u *model.UserUsage) error {
			u.StripeCustomerID = id
			return nil
		}
	}

	if _, err := store.UpdateUsage(ctx, "u1", setCustomer("cus_1")); err != nil {
		t.Fatal(err)
	}

	u, err := store.GetUsageByStripeCustomer(ctx, "cus_1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.UserID != "u1" {
		t.Errorf("expected u1, got %s", u.UserID)
	}

	if _, err := store.UpdateUsage(ctx, "u2", setCustomer("cus_1")); !errors.Is(err, ErrCustomerTaken) {
		t.Fatalf("expected ErrCustomerTaken, got %v", err)
	}
	if _, err := store.GetUsageByStripeCustomer(ctx, ""); !errors.Is(err, ErrUsageNotFound) {
		t.Fatalf("expected ErrUsageNotFound for empty id, got %v", err)
	}
}

func TestMemoryStore_TopSpecies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sightings := []model.Sighting{
		{ScientificName: "Ficus lyrata", CommonName: "Fiddle-leaf fig", SeenAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)},
		{ScientificName: "Ficus lyrata", CommonName: "Fiddle leaf fig", SeenAt: time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC)},
		{ScientificName: "Ficus lyrata", SeenAt: time.Date(2026, 4, 9, 11, 0, 0, 0, time.UTC)},
		{ScientificName: "Aloe vera", CommonName: "Aloe", SeenAt: time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC)},
		{ScientificName: "Aloe vera", CommonName: "Aloe", SeenAt: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)},
		{ScientificName: "Hedera helix", CommonName: "Ivy", SeenAt: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)},
	}
	if err := store.RecordSightings(ctx, model.AggregateSightings(sightings)); err != nil {
		t.Fatal(err)
	}

	top, err := store.TopSpecies(ctx, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 species, got %d", len(top))
	}
	// Ties break by name.
	if top[0].ScientificName != "Aloe vera" || top[0].Sightings != 2 {
		t.Errorf("unexpected first entry: %+v", top[0])
	}
	if top[1].ScientificName != "Ficus lyrata" || top[1].Sightings != 2 {
		t.Errorf("unexpected second entry: %+v", top[1])
	}
	if top[1].CommonName != "Fiddle leaf fig" {
		t.Errorf("expected latest common name, got %q", top[1].CommonName)
	}
}
