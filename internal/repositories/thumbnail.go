package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

// ThumbnailRepository caches thumbnail bytes so paging back and forth does not refetch them.
//
// Only successful thumbnails are stored. Failures are cheap to reproduce and may be transient.
type ThumbnailRepository struct {
	db *sql.DB
}

// NewThumbnailRepository creates a new ThumbnailRepository with the given database connection
func NewThumbnailRepository(db *sql.DB) *ThumbnailRepository {
	return &ThumbnailRepository{db: db}
}

// Get returns the cached thumbnail for path at size, or [ErrNotFound].
func (r *ThumbnailRepository) Get(ctx context.Context, ref models.InstanceRef, path, size string) (models.Thumbnail, error) {
	query := `
		SELECT mime_type, data
		FROM thumbnails
		WHERE provider_type = ? AND instance_index = ? AND path = ? AND size = ?
	`

	var thumb models.Thumbnail
	err := r.db.QueryRowContext(ctx, query, ref.ProviderType, ref.InstanceIndex, path, size).Scan(&thumb.MimeType, &thumb.Data)
	if err == sql.ErrNoRows {
		return models.Thumbnail{}, ErrNotFound
	}
	if err != nil {
		return models.Thumbnail{}, fmt.Errorf("failed to get thumbnail: %w", err)
	}

	thumb.Success = true
	return thumb, nil
}

// Put stores a successful thumbnail, replacing any previous bytes for the same key.
func (r *ThumbnailRepository) Put(ctx context.Context, ref models.InstanceRef, path, size string, thumb models.Thumbnail) error {
	if !thumb.Success {
		return fmt.Errorf("%w: only successful thumbnails are cached", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO thumbnails (id, provider_type, instance_index, path, size, mime_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_type, instance_index, path, size)
		DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data, created_at = excluded.created_at
	`

	_, err := r.db.ExecContext(ctx, query,
		shared.GenerateID(),
		ref.ProviderType,
		ref.InstanceIndex,
		path,
		size,
		thumb.MimeType,
		thumb.Data,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache thumbnail: %w", err)
	}

	return nil
}

// Count returns the number of cached thumbnails for an instance.
func (r *ThumbnailRepository) Count(ctx context.Context, ref models.InstanceRef) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM thumbnails WHERE provider_type = ? AND instance_index = ?",
		ref.ProviderType, ref.InstanceIndex,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count thumbnails: %w", err)
	}
	return count, nil
}

// DeleteInstance drops every cached thumbnail of an instance without renumbering, e.g. before a relist.
func (r *ThumbnailRepository) DeleteInstance(ctx context.Context, ref models.InstanceRef) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM thumbnails WHERE provider_type = ? AND instance_index = ?",
		ref.ProviderType, ref.InstanceIndex,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thumbnails: %w", err)
	}
	return result.RowsAffected()
}

// RemoveInstance purges a removed instance and shifts higher indices down.
func (r *ThumbnailRepository) RemoveInstance(ctx context.Context, providerType string, removedIndex int) (int64, error) {
	return ShiftInstances(ctx, r.db, "thumbnails", providerType, removedIndex)
}
