package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =============================================================================
// PostgresStore Implementation
// =============================================================================

// claimAttempts bounds the retry loop around the claim transaction.
// Exhaustion surfaces ErrContention rather than blocking the caller.
const claimAttempts = 3

// PostgresStore implements EntitlementStore on Postgres via pgx.
//
// Atomicity model: each claim runs in a transaction that locks the
// subscriber's entitlement row (SELECT ... FOR UPDATE), so the live-count
// check and the claim insert are one unit. Rollover uses a compare-and-set
// on the cycle anchor, which makes concurrent rollovers of the same window
// collapse into one.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore on an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// GetEntitlement loads a subscriber's record, creating the default record on
// first access. INSERT ... ON CONFLICT DO NOTHING makes concurrent first
// access resolve to the single existing row.
func (s *PostgresStore) GetEntitlement(ctx context.Context, subscriberID uuid.UUID, defaultTier domain.Tier, now time.Time) (*domain.Entitlement, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entitlements (subscriber_id, tier_id, cycle_anchor, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $3)
		ON CONFLICT (subscriber_id) DO NOTHING`,
		subscriberID, defaultTier.ID, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert default entitlement: %w", err)
	}
	return s.load(ctx, s.pool, subscriberID)
}

// RolloverIfNeeded advances the cycle anchor with a compare-and-set keyed on
// the anchor it read. Losing the race to another rollover is fine: the
// winner applied the same advance, so we just reload.
func (s *PostgresStore) RolloverIfNeeded(ctx context.Context, subscriberID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, error) {
	rec, err := s.load(ctx, s.pool, subscriberID)
	if err != nil {
		return nil, err
	}

	next := tier.AdvanceAnchor(rec.CycleAnchor, now)
	if next.Equal(rec.CycleAnchor) {
		return rec, nil
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE entitlements
		SET cycle_anchor = $3, updated_at = $4
		WHERE subscriber_id = $1 AND cycle_anchor = $2`,
		subscriberID, rec.CycleAnchor, next, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("advance cycle anchor: %w", err)
	}

	s.logger.Info("quota window rolled over",
		"subscriber_id", subscriberID,
		"tier", tier.ID,
		"new_anchor", next,
	)

	return s.load(ctx, s.pool, subscriberID)
}

// ClaimIfUnderLimit performs the atomic check-and-append under a row lock,
// retrying on serialization conflicts up to claimAttempts times.
func (s *PostgresStore) ClaimIfUnderLimit(ctx context.Context, subscriberID, contentID uuid.UUID, tier domain.Tier, now time.Time) (*domain.Entitlement, ClaimOutcome, error) {
	var outcome ClaimOutcome
	var lastErr error

	for attempt := 1; attempt <= claimAttempts; attempt++ {
		outcome, lastErr = s.claimOnce(ctx, subscriberID, contentID, tier, now)
		if lastErr == nil {
			rec, err := s.load(ctx, s.pool, subscriberID)
			if err != nil {
				return nil, 0, err
			}
			return rec, outcome, nil
		}
		if !isRetryable(lastErr) {
			return nil, 0, lastErr
		}
		s.logger.Debug("claim transaction conflicted, retrying",
			"subscriber_id", subscriberID,
			"content_id", contentID,
			"attempt", attempt,
		)
	}

	s.logger.Warn("claim retries exhausted",
		"subscriber_id", subscriberID,
		"content_id", contentID,
		"error", lastErr,
	)
	return nil, 0, ErrContention
}

// claimOnce runs one claim transaction.
func (s *PostgresStore) claimOnce(ctx context.Context, subscriberID, contentID uuid.UUID, tier domain.Tier, now time.Time) (ClaimOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the entitlement row; this serializes claims per subscriber.
	var anchor time.Time
	err = tx.QueryRow(ctx, `
		SELECT cycle_anchor FROM entitlements
		WHERE subscriber_id = $1
		FOR UPDATE`,
		subscriberID,
	).Scan(&anchor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock entitlement: %w", err)
	}

	var held bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE subscriber_id = $1 AND content_id = $2 AND claimed_at >= $3
		)`,
		subscriberID, contentID, anchor,
	).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("check existing claim: %w", err)
	}
	if held {
		return ClaimAlreadyHeld, tx.Commit(ctx)
	}

	if !tier.Unlimited {
		var live int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM claims
			WHERE subscriber_id = $1 AND claimed_at >= $2`,
			subscriberID, anchor,
		).Scan(&live)
		if err != nil {
			return 0, fmt.Errorf("count live claims: %w", err)
		}
		if live >= tier.ClaimLimit {
			return ClaimOverLimit, tx.Commit(ctx)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO claims (id, subscriber_id, content_id, tier_id, cycle_anchor, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), subscriberID, contentID, tier.ID, anchor, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("append claim: %w", err)
	}

	return ClaimAllowed, tx.Commit(ctx)
}

// SetTier changes the tier, optionally resetting the cycle anchor, creating
// the record if the billing push arrives before the subscriber's first read.
func (s *PostgresStore) SetTier(ctx context.Context, subscriberID uuid.UUID, tierID string, anchor *time.Time, now time.Time) error {
	if anchor != nil {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO entitlements (subscriber_id, tier_id, cycle_anchor, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (subscriber_id) DO UPDATE
			SET tier_id = EXCLUDED.tier_id, cycle_anchor = EXCLUDED.cycle_anchor, updated_at = EXCLUDED.updated_at`,
			subscriberID, tierID, anchor.UTC(), now.UTC(),
		)
		if err != nil {
			return fmt.Errorf("set tier with anchor reset: %w", err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO entitlements (subscriber_id, tier_id, cycle_anchor, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $3)
		ON CONFLICT (subscriber_id) DO UPDATE
		SET tier_id = EXCLUDED.tier_id, updated_at = EXCLUDED.updated_at`,
		subscriberID, tierID, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// load reads the entitlement row and its live claims.
func (s *PostgresStore) load(ctx context.Context, q queryer, subscriberID uuid.UUID) (*domain.Entitlement, error) {
	rec := &domain.Entitlement{SubscriberID: subscriberID}

	err := q.QueryRow(ctx, `
		SELECT tier_id, cycle_anchor, created_at, updated_at
		FROM entitlements WHERE subscriber_id = $1`,
		subscriberID,
	).Scan(&rec.TierID, &rec.CycleAnchor, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load entitlement: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, content_id, tier_id, cycle_anchor, claimed_at
		FROM claims
		WHERE subscriber_id = $1 AND claimed_at >= $2
		ORDER BY claimed_at`,
		subscriberID, rec.CycleAnchor,
	)
	if err != nil {
		return nil, fmt.Errorf("load live claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := domain.Claim{SubscriberID: subscriberID}
		if err := rows.Scan(&c.ID, &c.ContentID, &c.TierID, &c.CycleAnchor, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		rec.Claims = append(rec.Claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}

	return rec, nil
}

// isRetryable reports whether a claim transaction failed on a conflict that
// a fresh attempt can resolve (serialization failure or deadlock).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
