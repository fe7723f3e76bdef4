package content

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocator implements Locator with an in-process map. Test and
// development use only.
type MemoryLocator struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Resource
}

// NewMemoryLocator creates an empty MemoryLocator.
func NewMemoryLocator() *MemoryLocator {
	return &MemoryLocator{items: make(map[uuid.UUID]Resource)}
}

func (l *MemoryLocator) Locate(ctx context.Context, contentID uuid.UUID) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.items[contentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

func (l *MemoryLocator) Register(ctx context.Context, res *Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *res
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	l.items[res.ContentID] = stored
	return nil
}
