package store

import (
	"context"
	"sync"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// MemoryStore Implementation
// =============================================================================

// MemoryStore implements EntitlementStore with in-process state.
// A single mutex serializes all claim admissions, giving the same atomicity
// as the Postgres row lock. State does not survive a restart, so this
// backend is for tests and local development only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*memRecord
}

type memRecord struct {
	tierID      string
	cycleAnchor time.Time
	claims      []domain.Claim // full audit trail, expired claims included
	createdAt   time.Time
	updatedAt   time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*memRecord)}
}

func (s *MemoryStore) GetEntitlement(ctx context.Context, subscriberID uuid.UUID, defaultTier domain.Tier, now time.Time) (*domain.Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[subscriberID]
	if !ok {
		rec = &memRecord{
			tierID:      defaultTier.ID,
			cycleAnchor: now.UTC(),
			createdAt:   now.UTC(),
			updatedAt:   now.UTC(),
		}
		s.records[subscriberID] = rec
	}
	return s.snapshot(subscriberID, rec), nil
}

func (s *MemoryStore) RolloverIfNeeded(ctx context.Context, subscriberID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[subscriberID]
	if !ok {
		return nil, ErrNotFound
	}
	next := tier.AdvanceAnchor(rec.cycleAnchor, now)
	if !next.Equal(rec.cycleAnchor) {
		rec.cycleAnchor = next
		rec.updatedAt = now.UTC()
	}
	return s.snapshot(subscriberID, rec), nil
}

func (s *MemoryStore) ClaimIfUnderLimit(ctx context.Context, subscriberID, contentID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, ClaimOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[subscriberID]
	if !ok {
		return nil, 0, ErrNotFound
	}

	live := 0
	held := false
	for _, c := range rec.claims {
		if c.ClaimedAt.Before(rec.cycleAnchor) {
			continue
		}
		live++
		if c.ContentID == contentID {
			held = true
		}
	}

	if held {
		return s.snapshot(subscriberID, rec), ClaimAlreadyHeld, nil
	}
	if !tier.Unlimited && live >= tier.ClaimLimit {
		return s.snapshot(subscriberID, rec), ClaimOverLimit, nil
	}

	rec.claims = append(rec.claims, domain.Claim{
		ID:           uuid.New(),
		SubscriberID: subscriberID,
		ContentID:    contentID,
		TierID:       tier.ID,
		CycleAnchor:  rec.cycleAnchor,
		ClaimedAt:    now.UTC(),
	})
	rec.updatedAt = now.UTC()
	return s.snapshot(subscriberID, rec), ClaimAllowed, nil
}

func (s *MemoryStore) SetTier(ctx context.Context, subscriberID uuid.UUID, tierID string, anchor *time.Time, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[subscriberID]
	if !ok {
		rec = &memRecord{cycleAnchor: now.UTC(), createdAt: now.UTC()}
		s.records[subscriberID] = rec
	}
	rec.tierID = tierID
	if anchor != nil {
		rec.cycleAnchor = anchor.UTC()
	}
	rec.updatedAt = now.UTC()
	return nil
}

// snapshot copies the record with only its live claims. Callers get an
// independent value; mutating it cannot corrupt store state.
func (s *MemoryStore) snapshot(subscriberID uuid.UUID, rec *memRecord) *domain.Entitlement {
	e := &domain.Entitlement{
		SubscriberID: subscriberID,
		TierID:       rec.tierID,
		CycleAnchor:  rec.cycleAnchor,
		CreatedAt:    rec.createdAt,
		UpdatedAt:    rec.updatedAt,
	}
	for _, c := range rec.claims {
		if !c.ClaimedAt.Before(rec.cycleAnchor) {
			e.Claims = append(e.Claims, c)
		}
	}
	return e
}
