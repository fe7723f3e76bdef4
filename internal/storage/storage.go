// Package storage provides object storage for content bytes.
//
// This package defines a Storage interface with implementations for:
// - LocalStorage: File system storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) storage for production
//
// The stream gateway is the only reader; it fetches whole objects or byte
// ranges against a storage key resolved by the content locator. There is
// deliberately no presigned-URL method: a durable URL to content bytes
// would bypass the access-token boundary.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for content object operations.
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	// Returns ErrKeyExists if the key is taken and overwrite is disabled.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the full object at the specified key.
	// The caller must close the returned reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// GetRange retrieves length bytes starting at offset. A negative length
	// reads to the end of the object. Returns ErrInvalidRange when offset
	// is past the end of the object.
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, ObjectInfo, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at the specified key. Idempotent.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it will be detected from the key's extension.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// A value of 0 means no limit; exceeding it returns ErrTooLarge.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Total object size in bytes, even for range reads
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where objects are stored.
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK; R2 accepts "auto".
	Region string
}

// Provider identifiers selected via configuration.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// =============================================================================
// Key Generation
// =============================================================================

// ContentKey generates a storage key for an ingested content item.
// Format: content/{contentID}/{uuid}.{ext}
//
// The random segment means re-ingesting an item never overwrites the bytes
// an already-registered resource points at.
func ContentKey(contentID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("content/%s/%s%s", contentID, uuid.New(), ext)
}
