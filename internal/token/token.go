// Package token issues and verifies the short-lived signed credentials that
// authorize exactly one subscriber to stream exactly one content item.
//
// Tokens are stateless HMAC-signed JWTs: verification needs only the signing
// secret and a clock. When single-use mode is enabled, a small time-bounded
// nonce store additionally rejects replays. Tokens are never persisted.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// MinTTL and MaxTTL bound the token lifetime. Long enough for one
	// redirect and fetch, short enough that a leaked stream URL is of
	// little value.
	MinTTL = 60 * time.Second
	MaxTTL = 300 * time.Second

	// DefaultTTL is used when no lifetime is configured.
	DefaultTTL = 120 * time.Second

	// MinSecretBytes is the minimum HMAC secret length. 32 bytes matches
	// the HS256 hash width.
	MinSecretBytes = 32
)

// =============================================================================
// Types
// =============================================================================

// Claims is the signed token payload. The content id rides alongside the
// registered claims; the subject carries the subscriber id.
type Claims struct {
	ContentID string `json:"cid"`
	jwt.RegisteredClaims
}

// Grant is the result of a successful verification: proof that this
// subscriber may stream this content item until ExpiresAt.
type Grant struct {
	SubscriberID uuid.UUID
	ContentID    uuid.UUID
	Nonce        string
	ExpiresAt    time.Time
}

// Config configures the token service.
type Config struct {
	Secret    []byte        // HMAC signing secret, >= MinSecretBytes
	TTL       time.Duration // token lifetime, clamped to [MinTTL, MaxTTL]
	SingleUse bool          // reject a nonce presented twice
}

// Service issues and verifies access tokens. It is the only component that
// may mint or alter one.
type Service struct {
	secret    []byte
	ttl       time.Duration
	singleUse bool
	nonces    NonceStore
	logger    *slog.Logger
}

// NewService creates a token Service. nonces may be nil when SingleUse is
// disabled.
func NewService(cfg Config, nonces NonceStore, logger *slog.Logger) (*Service, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretBytes)
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL || ttl > MaxTTL {
		return nil, fmt.Errorf("token ttl %v outside allowed range [%v, %v]", ttl, MinTTL, MaxTTL)
	}
	if cfg.SingleUse && nonces == nil {
		return nil, fmt.Errorf("single-use tokens require a nonce store")
	}
	return &Service{
		secret:    cfg.Secret,
		ttl:       ttl,
		singleUse: cfg.SingleUse,
		nonces:    nonces,
		logger:    logger,
	}, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// =============================================================================
// Issue / Verify
// =============================================================================

// Issue mints a token binding subscriberID to contentID, expiring at
// now + TTL. Callers must only issue after the quota engine allowed the
// request (or reported the content already claimed).
func (s *Service) Issue(subscriberID, contentID uuid.UUID, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		ContentID: contentID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks a token's signature and expiry against now, and in
// single-use mode redeems its nonce. Every failure is fail-closed and keeps
// its distinct cause: expired, bad signature, or reused.
func (s *Service) Verify(ctx context.Context, raw string, now time.Time) (*Grant, error) {
	const op = "token.verify"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.TokenExpired(op)
		}
		// Anything else (signature mismatch, malformed token, missing
		// expiry) is indistinguishable from tampering to the caller.
		return nil, domain.BadSignature(op)
	}

	subscriberID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.BadSignature(op)
	}
	contentID, err := uuid.Parse(claims.ContentID)
	if err != nil {
		return nil, domain.BadSignature(op)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, domain.BadSignature(op)
	}

	if s.singleUse {
		fresh, err := s.nonces.Redeem(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			return nil, domain.Internal(err, op, "nonce store unavailable")
		}
		if !fresh {
			s.logger.Warn("access token replayed",
				"subscriber_id", subscriberID,
				"content_id", contentID,
			)
			return nil, domain.TokenReused(op)
		}
	}

	return &Grant{
		SubscriberID: subscriberID,
		ContentID:    contentID,
		Nonce:        claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}
