package token

import (
	"context"
	"sync"
	"time"
)

// NonceStore tracks redeemed token nonces until their expiry. Entries are
// short-lived (bounded by the token TTL), so the store stays small.
type NonceStore interface {
	// Redeem marks a nonce as used. It returns true on first redemption
	// and false when the nonce was already redeemed.
	Redeem(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)

	// Close releases any background resources.
	Close() error
}

// =============================================================================
// In-memory NonceStore
// =============================================================================

// MemoryNonceStore is an in-process NonceStore. A background goroutine
// prunes entries once their token has expired, at which point the stateless
// expiry check rejects the token anyway.
type MemoryNonceStore struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	closed chan struct{}
}

// NewMemoryNonceStore creates a MemoryNonceStore and starts its pruning
// loop.
func NewMemoryNonceStore() *MemoryNonceStore {
	s := &MemoryNonceStore{
		seen:   make(map[string]time.Time),
		closed: make(chan struct{}),
	}
	go s.pruneLoop()
	return s
}

func (s *MemoryNonceStore) Redeem(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.seen[nonce]; ok && time.Now().Before(exp) {
		return false, nil
	}
	s.seen[nonce] = expiresAt
	return true, nil
}

func (s *MemoryNonceStore) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-s.closed:
			return
		}
	}
}

func (s *MemoryNonceStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for nonce, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, nonce)
		}
	}
}

// Close stops the pruning goroutine.
func (s *MemoryNonceStore) Close() error {
	close(s.closed)
	return nil
}
