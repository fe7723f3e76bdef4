// Package store provides the durable entitlement store.
//
// This package defines an EntitlementStore interface with implementations for:
// - PostgresStore: pgx-backed storage for production
// - MemoryStore: in-process storage for tests and single-node development
//
// The store owns the two pieces of state the entitlement core depends on:
// the per-subscriber entitlement row (tier + cycle anchor) and the
// append-only claim audit trail. Claim admission is a single atomic
// operation here, so the quota decision and the claim write can never be
// split by a concurrent request.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when a subscriber has no entitlement record.
	ErrNotFound = errors.New("entitlement not found")

	// ErrContention is returned when a claim could not be committed within
	// the bounded retry budget. The caller surfaces this as a retryable
	// failure, never as a silent allow or deny.
	ErrContention = errors.New("entitlement update contention")
)

// =============================================================================
// Claim Outcomes
// =============================================================================

// ClaimOutcome is the result of an atomic claim attempt.
type ClaimOutcome int

const (
	// ClaimAllowed means the claim was appended and now counts against the
	// subscriber's window.
	ClaimAllowed ClaimOutcome = iota

	// ClaimAlreadyHeld means a live claim for this content already exists.
	// Idempotent: the record is returned unchanged.
	ClaimAlreadyHeld

	// ClaimOverLimit means admitting the claim would exceed the tier's
	// claim limit.
	ClaimOverLimit
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAllowed:
		return "allowed"
	case ClaimAlreadyHeld:
		return "already_held"
	case ClaimOverLimit:
		return "over_limit"
	default:
		return "unknown"
	}
}

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementStore defines durable operations on entitlement state.
//
// All methods are safe under concurrent calls for the same subscriber;
// GetEntitlement's default-record creation and ClaimIfUnderLimit's
// check-and-append are single atomic units.
type EntitlementStore interface {
	// GetEntitlement loads a subscriber's record with its live claims.
	// If no record exists one is created with defaultTier and a cycle
	// anchor of now; creation is idempotent under concurrent first access.
	GetEntitlement(ctx context.Context, subscriberID uuid.UUID, defaultTier domain.Tier, now time.Time) (*domain.Entitlement, error)

	// RolloverIfNeeded advances the cycle anchor across any window
	// boundaries crossed by now, logically expiring prior claims. It is
	// idempotent and safe to call on every read; a concurrent rollover of
	// the same window is applied exactly once.
	RolloverIfNeeded(ctx context.Context, subscriberID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, error)

	// ClaimIfUnderLimit atomically checks the live claim count against the
	// tier's limit and appends a claim when there is headroom. A live claim
	// for the same content returns ClaimAlreadyHeld without modification.
	// Returns ErrContention when retries against concurrent writers are
	// exhausted.
	ClaimIfUnderLimit(ctx context.Context, subscriberID, contentID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, ClaimOutcome, error)

	// SetTier changes a subscriber's tier. A non-nil anchor also resets the
	// cycle anchor (upgrade semantics); nil preserves the existing anchor
	// (downgrade semantics). Creates the record if it does not exist.
	SetTier(ctx context.Context, subscriberID uuid.UUID, tierID string, anchor *time.Time, now time.Time) error
}
