package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLocator implements Locator on the content_items table.
type PostgresLocator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresLocator creates a PostgresLocator on an existing pool.
func NewPostgresLocator(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLocator {
	return &PostgresLocator{pool: pool, logger: logger}
}

func (l *PostgresLocator) Locate(ctx context.Context, contentID uuid.UUID) (*Resource, error) {
	res := &Resource{ContentID: contentID}
	err := l.pool.QueryRow(ctx, `
		SELECT storage_key, content_type, size_bytes, created_at
		FROM content_items WHERE content_id = $1`,
		contentID,
	).Scan(&res.StorageKey, &res.ContentType, &res.Size, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locate content: %w", err)
	}
	return res, nil
}

func (l *PostgresLocator) Register(ctx context.Context, res *Resource) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO content_items (content_id, storage_key, content_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (content_id) DO UPDATE
		SET storage_key = EXCLUDED.storage_key,
		    content_type = EXCLUDED.content_type,
		    size_bytes = EXCLUDED.size_bytes`,
		res.ContentID, res.StorageKey, res.ContentType, res.Size,
	)
	if err != nil {
		return fmt.Errorf("register content: %w", err)
	}

	l.logger.Info("content registered",
		"content_id", res.ContentID,
		"storage_key", res.StorageKey,
		"content_type", res.ContentType,
		"size", res.Size,
	)
	return nil
}
