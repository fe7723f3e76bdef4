// Package service contains the business logic layer.
//
// Services orchestrate the entitlement store, the tier catalog, and domain
// logic. They are responsible for:
// - Business rule enforcement
// - Error translation (store errors -> domain errors)
// - Keeping quota decisions decoupled from content streaming
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService defines operations on subscriber entitlement state.
type EntitlementService interface {
	// Get returns a subscriber's entitlement with window rollover applied,
	// creating the default record on first access.
	Get(ctx context.Context, subscriberID uuid.UUID, now time.Time) (*domain.Entitlement, domain.Tier, error)

	// Usage summarizes the subscriber's position against their tier limit,
	// including the next reset time shown in quota-exceeded messages.
	Usage(ctx context.Context, subscriberID uuid.UUID, now time.Time) (*domain.QuotaUsage, error)

	// SetTier applies a tier change pushed by the billing collaborator.
	// This is the only write path for tier changes. Upgrades reset the
	// cycle anchor; downgrades preserve it so a downgrade-upgrade cycle
	// cannot refresh quota.
	SetTier(ctx context.Context, subscriberID uuid.UUID, tierID string, effectiveAt time.Time) error

	// VerifyAccess re-checks that the subscriber currently holds access to
	// the content item. The stream gateway calls this on every redemption
	// to catch revocations and window rollovers that postdate token issue.
	VerifyAccess(ctx context.Context, subscriberID, contentID uuid.UUID, now time.Time) error
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	store   store.EntitlementStore
	catalog *domain.Catalog
	logger  *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(st store.EntitlementStore, catalog *domain.Catalog, logger *slog.Logger) EntitlementService {
	return &entitlementService{store: st, catalog: catalog, logger: logger}
}

func (s *entitlementService) Get(ctx context.Context, subscriberID uuid.UUID, now time.Time) (*domain.Entitlement, domain.Tier, error) {
	const op = "entitlement.get"

	rec, err := s.store.GetEntitlement(ctx, subscriberID, s.catalog.Default(), now)
	if err != nil {
		return nil, domain.Tier{}, domain.Internal(err, op, "failed to load entitlement")
	}

	tier, err := s.catalog.Get(rec.TierID)
	if err != nil {
		// A record referencing an unknown tier is a catalog integrity
		// fault; do not guess a tier for it.
		return nil, domain.Tier{}, domain.Internal(err, op, "entitlement references unknown tier")
	}

	rec, err = s.store.RolloverIfNeeded(ctx, subscriberID, tier, now)
	if err != nil {
		return nil, domain.Tier{}, domain.Internal(err, op, "failed to roll over quota window")
	}
	return rec, tier, nil
}

func (s *entitlementService) Usage(ctx context.Context, subscriberID uuid.UUID, now time.Time) (*domain.QuotaUsage, error) {
	rec, tier, err := s.Get(ctx, subscriberID, now)
	if err != nil {
		return nil, err
	}

	usage := &domain.QuotaUsage{
		TierID:    tier.ID,
		Used:      rec.LiveCount(),
		Limit:     tier.ClaimLimit,
		Unlimited: tier.Unlimited,
	}
	if reset, ok := tier.NextReset(rec.CycleAnchor); ok {
		usage.NextReset = reset
	}
	return usage, nil
}

func (s *entitlementService) SetTier(ctx context.Context, subscriberID uuid.UUID, tierID string, effectiveAt time.Time) error {
	const op = "entitlement.set_tier"

	newTier, err := s.catalog.Get(tierID)
	if err != nil {
		return err
	}

	rec, currentTier, err := s.Get(ctx, subscriberID, effectiveAt)
	if err != nil {
		return err
	}
	if rec.TierID == newTier.ID {
		return nil
	}

	// Upgrade resets the anchor so the new allowance starts immediately.
	// Downgrade keeps it; the subscriber rides out the current window.
	var anchor *time.Time
	if newTier.Outranks(currentTier) {
		at := effectiveAt
		anchor = &at
	}

	if err := s.store.SetTier(ctx, subscriberID, newTier.ID, anchor, effectiveAt); err != nil {
		return domain.Internal(err, op, "failed to set tier")
	}

	s.logger.Info("tier changed",
		"subscriber_id", subscriberID,
		"from", currentTier.ID,
		"to", newTier.ID,
		"anchor_reset", anchor != nil,
	)
	return nil
}

func (s *entitlementService) VerifyAccess(ctx context.Context, subscriberID, contentID uuid.UUID, now time.Time) error {
	const op = "entitlement.verify_access"

	rec, tier, err := s.Get(ctx, subscriberID, now)
	if err != nil {
		return err
	}

	// A live claim is the normal proof of access; an unmetered tier is
	// always entitled. Anything else means the right lapsed between token
	// issue and redemption.
	if rec.HasClaim(contentID) || tier.Unlimited {
		return nil
	}
	return domain.Forbidden(op, "No live claim for this content. Request access again.")
}

// translateStoreErr maps store sentinels onto domain errors.
func translateStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrContention):
		return domain.Contention(op)
	case errors.Is(err, store.ErrNotFound):
		return domain.NotFound(op, "entitlement", "")
	default:
		return domain.Internal(err, op, "entitlement store failure")
	}
}
