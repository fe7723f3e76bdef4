// Package content resolves content identifiers to physical resources.
//
// The locator is the only path from a content id to the storage key that
// holds its bytes. Registration goes through Register, never through direct
// row edits, so catalog and storage stay consistent at write time instead of
// being patched at read time.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no resource is registered for a content id.
// The stream gateway surfaces this as a data-integrity fault; it never
// substitutes a different resource.
var ErrNotFound = errors.New("content resource not found")

// Resource describes where a content item's bytes live and how to serve them.
type Resource struct {
	ContentID   uuid.UUID
	StorageKey  string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Locator maps content ids to resources.
type Locator interface {
	// Locate returns the resource for contentID, or ErrNotFound.
	Locate(ctx context.Context, contentID uuid.UUID) (*Resource, error)

	// Register records a resource for a content id. Registering an id that
	// already exists replaces its resource entry.
	Register(ctx context.Context, res *Resource) error
}
