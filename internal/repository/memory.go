package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/florascope/florascope/internal/model"
)

// MemoryStore keeps everything in process memory. Data is lost on restart;
// it backs development and tests.
type MemoryStore struct {
	mu              sync.Mutex
	identifications map[string][]*model.Identification // by user, oldest first
	ids             map[string]struct{}
	usage           map[string]*model.UserUsage
	sightings       map[model.SightingKey]*model.SpeciesCount
	now             func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identifications: make(map[string][]*model.Identification),
		ids:             make(map[string]struct{}),
		usage:           make(map[string]*model.UserUsage),
		sightings:       make(map[model.SightingKey]*model.SpeciesCount),
		now:             time.Now,
	}
}

// CreateIdentification stores a copy of ident.
func (s *MemoryStore) CreateIdentification(_ context.Context, ident *model.Identification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[ident.ID]; ok {
		return ErrIdentificationExists
	}
	s.ids[ident.ID] = struct{}{}
	s.identifications[ident.UserID] = append(s.identifications[ident.UserID], copyIdentification(ident))
	return nil
}

// ListIdentificationsByUser returns copies, newest first.
func (s *MemoryStore) ListIdentificationsByUser(_ context.Context, userID string, limit int) ([]*model.Identification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.identifications[userID]
	sorted := make([]*model.Identification, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*model.Identification, 0, len(sorted))
	for _, ident := range sorted {
		out = append(out, copyIdentification(ident))
	}
	return out, nil
}

// GetUsage returns a copy of the user's usage record.
func (s *MemoryStore) GetUsage(_ context.Context, userID string) (*model.UserUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usage[userID]
	if !ok {
		return nil, ErrUsageNotFound
	}
	return u.Clone(), nil
}

// UpdateUsage applies fn to a copy and stores it only when fn succeeds.
func (s *MemoryStore) UpdateUsage(_ context.Context, userID string, fn UsageMutator) (*model.UserUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var working *model.UserUsage
	if existing, ok := s.usage[userID]; ok {
		working = existing.Clone()
	} else {
		working = model.NewUserUsage(userID, s.now())
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	working.UserID = userID

	if working.StripeCustomerID != "" {
		for id, other := range s.usage {
			if id != userID && other.StripeCustomerID == working.StripeCustomerID {
				return nil, ErrCustomerTaken
			}
		}
	}

	s.usage[userID] = working
	return working.Clone(), nil
}

// GetUsageByStripeCustomer scans for the record linked to customerID.
func (s *MemoryStore) GetUsageByStripeCustomer(_ context.Context, customerID string) (*model.UserUsage, error) {
	if customerID == "" {
		return nil, ErrUsageNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.usage {
		if u.StripeCustomerID == customerID {
			return u.Clone(), nil
		}
	}
	return nil, ErrUsageNotFound
}

// RecordSightings adds counts to the per-day totals.
func (s *MemoryStore) RecordSightings(_ context.Context, counts map[model.SightingKey]*model.SpeciesCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range counts {
		existing, ok := s.sightings[key]
		if !ok {
			existing = &model.SpeciesCount{ScientificName: key.ScientificName}
			s.sightings[key] = existing
		}
		existing.Sightings += c.Sightings
		if c.CommonName != "" {
			existing.CommonName = c.CommonName
		}
		if c.Family != "" {
			existing.Family = c.Family
		}
	}
	return nil
}

// TopSpecies sums per-day totals on or after since.
func (s *MemoryStore) TopSpecies(_ context.Context, since time.Time, limit int) ([]model.SpeciesCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := since.UTC().Format(model.DayLayout)
	totals := make(map[string]*model.SpeciesCount)
	latest := make(map[string]string)

	for key, c := range s.sightings {
		if key.Day < from {
			continue
		}
		t, ok := totals[key.ScientificName]
		if !ok {
			t = &model.SpeciesCount{ScientificName: key.ScientificName}
			totals[key.ScientificName] = t
		}
		t.Sightings += c.Sightings
		if key.Day >= latest[key.ScientificName] {
			latest[key.ScientificName] = key.Day
			t.CommonName = c.CommonName
			t.Family = c.Family
		}
	}

	out := make([]model.SpeciesCount, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sightings == out[j].Sightings {
			return out[i].ScientificName < out[j].ScientificName
		}
		return out[i].Sightings > out[j].Sightings
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}

func copyIdentification(ident *model.Identification) *model.Identification {
	c := *ident
	if ident.CommonNames != nil {
		c.CommonNames = append([]string(nil), ident.CommonNames...)
	}
	return &c
}
