package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/planforge/internal/models"
)

// GetInjuries returns the user's current injury list.
func (db *DB) GetInjuries(ctx context.Context, userID int) ([]models.Injury, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT name, severity FROM user_injuries WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying injuries: %w", err)
	}
	defer rows.Close()

	var result []models.Injury
	for rows.Next() {
		var inj models.Injury
		if err := rows.Scan(&inj.Name, &inj.Severity); err != nil {
			return nil, fmt.Errorf("scanning injury: %w", err)
		}
		result = append(result, inj)
	}
	return result, rows.Err()
}

// ReplaceInjuries overwrites the user's injury list in one transaction.
func (db *DB) ReplaceInjuries(ctx context.Context, userID int, injuries []models.Injury) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning injury update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_injuries WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing injuries: %w", err)
	}
	for _, inj := range injuries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_injuries (user_id, name, severity) VALUES ($1, $2, $3)
		`, userID, inj.Name, inj.Severity); err != nil {
			return fmt.Errorf("inserting injury %q: %w", inj.Name, err)
		}
	}
	return tx.Commit(ctx)
}

// Preferences bundles the per-user selection overrides.
type Preferences struct {
	PoolPreferences    []models.PoolPreference    `json:"pool_preferences"`
	WeakPointSelection *models.WeakPointSelection `json:"weak_point_selection,omitempty"`
}

// GetPreferences returns the user's stored selection overrides. A user with
// no stored row gets the zero value.
func (db *DB) GetPreferences(ctx context.Context, userID int) (Preferences, error) {
	var p Preferences
	err := db.Pool.QueryRow(ctx, `
		SELECT pool_preferences, weak_point_selection
		FROM user_preferences WHERE user_id = $1
	`, userID).Scan(&p.PoolPreferences, &p.WeakPointSelection)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("querying preferences: %w", err)
	}
	return p, nil
}

// SavePreferences stores the user's selection overrides, replacing any prior
// row.
func (db *DB) SavePreferences(ctx context.Context, userID int, p Preferences) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, pool_preferences, weak_point_selection)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			pool_preferences = $2, weak_point_selection = $3, updated_at = NOW()
	`, userID, p.PoolPreferences, p.WeakPointSelection)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}
