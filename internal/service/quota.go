// Package service contains the business logic layer.
//
// This file implements the quota engine: the decision function that admits
// or rejects a subscriber's request to open a content item.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/metrics"
	"github.com/DukeRupert/novella/internal/store"
	"github.com/google/uuid"
)

// =============================================================================
// Decision Types
// =============================================================================

// Outcome classifies an access evaluation.
type Outcome int

const (
	// DecisionAllow admits the request; a claim was recorded.
	DecisionAllow Outcome = iota

	// DecisionAlreadyClaimed admits the request without consuming quota;
	// the subscriber already holds a live claim. Not an error: callers
	// proceed to token issuance exactly as on allow.
	DecisionAlreadyClaimed

	// DecisionDeny rejects the request; Reason carries the cause.
	DecisionDeny
)

func (o Outcome) String() string {
	switch o {
	case DecisionAllow:
		return "allow"
	case DecisionAlreadyClaimed:
		return "already_claimed"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the quota engine's verdict plus the context a caller needs to
// explain it: current usage, the limit, and when the window resets.
type Decision struct {
	Outcome   Outcome
	Reason    string // domain error code, set on deny
	Used      int
	Limit     int
	Unlimited bool
	NextReset time.Time
}

// Granted reports whether the caller may proceed to token issuance.
func (d *Decision) Granted() bool {
	return d.Outcome == DecisionAllow || d.Outcome == DecisionAlreadyClaimed
}

// DenyError converts a deny decision into its domain error.
// Returns nil for granted decisions.
func (d *Decision) DenyError(op string) error {
	if d.Granted() {
		return nil
	}
	switch d.Reason {
	case domain.ECONTENTION:
		return domain.Contention(op)
	default:
		return domain.QuotaExceeded(op, d.Used, d.Limit, d.NextReset)
	}
}

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService is the pure decision surface for content access.
type QuotaService interface {
	// Evaluate decides whether subscriberID may open contentID at now.
	// On allow, the claim is recorded in the same atomic unit as the limit
	// check, so two concurrent requests near the boundary cannot both pass.
	Evaluate(ctx context.Context, subscriberID, contentID uuid.UUID, now time.Time) (*Decision, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store        store.EntitlementStore
	catalog      *domain.Catalog
	entitlements EntitlementService
	logger       *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(st store.EntitlementStore, catalog *domain.Catalog, entitlements EntitlementService, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:        st,
		catalog:      catalog,
		entitlements: entitlements,
		logger:       logger,
	}
}

func (s *quotaService) Evaluate(ctx context.Context, subscriberID, contentID uuid.UUID, now time.Time) (*Decision, error) {
	const op = "quota.evaluate"

	// Rollover first, so the live set this decision is made against
	// belongs to the current window.
	rec, tier, err := s.entitlements.Get(ctx, subscriberID, now)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Limit:     tier.ClaimLimit,
		Unlimited: tier.Unlimited,
		Used:      rec.LiveCount(),
	}
	if reset, ok := tier.NextReset(rec.CycleAnchor); ok {
		d.NextReset = reset
	}

	// Re-reading already-claimed content consumes no quota. This also
	// covers the downgrade edge: claims made under a higher tier stay
	// readable even when the live count exceeds the new, lower limit.
	if rec.HasClaim(contentID) {
		d.Outcome = DecisionAlreadyClaimed
		s.observe(d)
		return d, nil
	}

	rec, outcome, err := s.store.ClaimIfUnderLimit(ctx, subscriberID, contentID, tier, now)
	if err != nil {
		if errors.Is(err, store.ErrContention) {
			d.Outcome = DecisionDeny
			d.Reason = domain.ECONTENTION
			s.observe(d)
			return d, nil
		}
		return nil, translateStoreErr(err, op)
	}

	d.Used = rec.LiveCount()
	switch outcome {
	case store.ClaimAllowed:
		d.Outcome = DecisionAllow
	case store.ClaimAlreadyHeld:
		d.Outcome = DecisionAlreadyClaimed
	case store.ClaimOverLimit:
		d.Outcome = DecisionDeny
		d.Reason = domain.EQUOTA
		s.logger.Info("claim denied, quota exceeded",
			"subscriber_id", subscriberID,
			"content_id", contentID,
			"tier", tier.ID,
			"used", d.Used,
			"limit", d.Limit,
		)
	}

	s.observe(d)
	return d, nil
}

func (s *quotaService) observe(d *Decision) {
	label := d.Outcome.String()
	if d.Outcome == DecisionDeny {
		label = "deny_" + d.Reason
	}
	metrics.AccessDecisions.WithLabelValues(label).Inc()
}
