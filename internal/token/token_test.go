package token

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, singleUse bool) *Service {
	t.Helper()
	var nonces NonceStore
	if singleUse {
		ns := NewMemoryNonceStore()
		t.Cleanup(func() { ns.Close() })
		nonces = ns
	}
	svc, err := NewService(Config{Secret: testSecret, TTL: 2 * time.Minute, SingleUse: singleUse}, nonces, testLogger())
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"short secret", Config{Secret: []byte("too short"), TTL: 2 * time.Minute}, "at least 32 bytes"},
		{"ttl below minimum", Config{Secret: testSecret, TTL: 30 * time.Second}, "outside allowed range"},
		{"ttl above maximum", Config{Secret: testSecret, TTL: 10 * time.Minute}, "outside allowed range"},
		{"single use without nonce store", Config{Secret: testSecret, TTL: 2 * time.Minute, SingleUse: true}, "nonce store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.cfg, nil, testLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewServiceDefaultTTL(t *testing.T) {
	svc, err := NewService(Config{Secret: testSecret}, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t, false)
	sub, content := uuid.New(), uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	signed, expiresAt, err := svc.Issue(sub, content, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Minute), expiresAt)

	grant, err := svc.Verify(context.Background(), signed, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, sub, grant.SubscriberID)
	assert.Equal(t, content, grant.ContentID)
	assert.NotEmpty(t, grant.Nonce)
	assert.True(t, grant.ExpiresAt.Equal(expiresAt))
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(t, false)
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	signed, expiresAt, err := svc.Issue(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	// Valid right up to the expiry instant, rejected after it.
	_, err = svc.Verify(context.Background(), signed, expiresAt.Add(-time.Second))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), signed, expiresAt.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, domain.ETOKENEXPIRED, domain.ErrorCode(err))
}

func TestVerifyTamperedToken(t *testing.T) {
	svc := newTestService(t, false)
	now := time.Now()

	signed, _, err := svc.Issue(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	// Flip a character in the payload segment.
	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[3] == 'A' {
		payload[3] = 'B'
	} else {
		payload[3] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Verify(context.Background(), tampered, now)
	require.Error(t, err)
	assert.Equal(t, domain.EBADSIG, domain.ErrorCode(err))
}

func TestVerifyWrongSecret(t *testing.T) {
	svc := newTestService(t, false)
	other, err := NewService(Config{
		Secret: []byte("ffffffffffffffffffffffffffffffff"),
		TTL:    2 * time.Minute,
	}, nil, testLogger())
	require.NoError(t, err)

	now := time.Now()
	signed, _, err := other.Issue(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), signed, now)
	require.Error(t, err)
	assert.Equal(t, domain.EBADSIG, domain.ErrorCode(err))
}

func TestVerifyGarbage(t *testing.T) {
	svc := newTestService(t, false)
	_, err := svc.Verify(context.Background(), "not-a-token", time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.EBADSIG, domain.ErrorCode(err))
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	svc := newTestService(t, false)
	now := time.Now()

	claims := Claims{
		ContentID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), unsigned, now)
	require.Error(t, err)
	assert.Equal(t, domain.EBADSIG, domain.ErrorCode(err))
}

func TestVerifySingleUse(t *testing.T) {
	svc := newTestService(t, true)
	now := time.Now()

	signed, _, err := svc.Issue(uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), signed, now)
	require.NoError(t, err)

	// Second presentation is a replay.
	_, err = svc.Verify(context.Background(), signed, now.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, domain.ETOKENREUSED, domain.ErrorCode(err))
}

func TestTokensAreDistinctPerIssue(t *testing.T) {
	svc := newTestService(t, true)
	now := time.Now()
	sub, content := uuid.New(), uuid.New()

	first, _, err := svc.Issue(sub, content, now)
	require.NoError(t, err)
	second, _, err := svc.Issue(sub, content, now)
	require.NoError(t, err)
	require.NotEqual(t, first, second, "each issue must carry a fresh nonce")

	// Redeeming one token must not burn the other.
	_, err = svc.Verify(context.Background(), first, now)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), second, now)
	require.NoError(t, err)
}

func TestMemoryNonceStoreRedeem(t *testing.T) {
	s := NewMemoryNonceStore()
	defer s.Close()
	ctx := context.Background()

	fresh, err := s.Redeem(ctx, "n1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.Redeem(ctx, "n1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, fresh)

	// A different nonce is unaffected.
	fresh, err = s.Redeem(ctx, "n2", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, fresh)
}
