package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/skyroll/internal/models"
)

// SnapshotRepository persists [models.ListingSnapshot] rows, one per instance.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository with the given database connection
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Record upserts the snapshot for its instance.
func (r *SnapshotRepository) Record(ctx context.Context, s models.ListingSnapshot) error {
	query := `
		INSERT INTO listing_snapshots (provider_type, instance_index, file_count, image_count, listed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider_type, instance_index)
		DO UPDATE SET file_count = excluded.file_count, image_count = excluded.image_count, listed_at = excluded.listed_at
	`

	_, err := r.db.ExecContext(ctx, query, s.ProviderType, s.InstanceIndex, s.FileCount, s.ImageCount, s.ListedAt)
	if err != nil {
		return fmt.Errorf("failed to record listing snapshot: %w", err)
	}
	return nil
}

// Get returns the snapshot of an instance, or [ErrNotFound].
func (r *SnapshotRepository) Get(ctx context.Context, ref models.InstanceRef) (*models.ListingSnapshot, error) {
	query := `
		SELECT provider_type, instance_index, file_count, image_count, listed_at
		FROM listing_snapshots
		WHERE provider_type = ? AND instance_index = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, ref.ProviderType, ref.InstanceIndex))
}

// List returns every snapshot ordered by provider type and instance index.
func (r *SnapshotRepository) List(ctx context.Context) ([]*models.ListingSnapshot, error) {
	query := `
		SELECT provider_type, instance_index, file_count, image_count, listed_at
		FROM listing_snapshots
		ORDER BY provider_type, instance_index
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.ListingSnapshot
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// RemoveInstance purges a removed instance and shifts higher indices down.
func (r *SnapshotRepository) RemoveInstance(ctx context.Context, providerType string, removedIndex int) (int64, error) {
	return ShiftInstances(ctx, r.db, "listing_snapshots", providerType, removedIndex)
}

func (r *SnapshotRepository) scanOne(row *sql.Row) (*models.ListingSnapshot, error) {
	var s models.ListingSnapshot
	err := row.Scan(&s.ProviderType, &s.InstanceIndex, &s.FileCount, &s.ImageCount, &s.ListedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}

func (r *SnapshotRepository) scanRow(rows *sql.Rows) (*models.ListingSnapshot, error) {
	var s models.ListingSnapshot
	if err := rows.Scan(&s.ProviderType, &s.InstanceIndex, &s.FileCount, &s.ImageCount, &s.ListedAt); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}
