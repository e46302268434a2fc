// package repositories provides persistence layer implementations for cached gallery data.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = fmt.Errorf("record not found")

// ShiftInstances deletes the rows of a removed instance from table and decrements the instance index of
// every higher instance of the same provider type.
//
// Indices are negated first so the shift never collides with a unique constraint on intermediate rows.
func ShiftInstances(ctx context.Context, db *sql.DB, table, providerType string, removedIndex int) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE provider_type = ? AND instance_index = ?", table),
		providerType, removedIndex,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s rows: %w", table, err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET instance_index = -instance_index WHERE provider_type = ? AND instance_index > ?", table),
		providerType, removedIndex,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to renumber %s rows: %w", table, err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET instance_index = -instance_index - 1 WHERE provider_type = ? AND instance_index < 0", table),
		providerType,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to renumber %s rows: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit renumber transaction: %w", err)
	}

	return purged, nil
}
