package storage

import (
	"context"
	"fmt"

	"github.com/claude/planforge/internal/models"
)

// ListMuscleGroups returns the full muscle group catalog ordered by id.
func (db *DB) ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, slug FROM muscle_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying muscle groups: %w", err)
	}
	defer rows.Close()

	var result []models.MuscleGroup
	for rows.Next() {
		var mg models.MuscleGroup
		if err := rows.Scan(&mg.ID, &mg.Name, &mg.Slug); err != nil {
			return nil, fmt.Errorf("scanning muscle group: %w", err)
		}
		result = append(result, mg)
	}
	return result, rows.Err()
}

// UpsertMuscleGroup inserts or updates a muscle group by slug and returns its id.
func (db *DB) UpsertMuscleGroup(ctx context.Context, mg models.MuscleGroup) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO muscle_groups (name, slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = $1
		RETURNING id
	`, mg.Name, mg.Slug).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting muscle group %q: %w", mg.Slug, err)
	}
	return id, nil
}

// ListExercises returns the full exercise catalog ordered by name.
func (db *DB) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, movement_pattern, equipment,
		       primary_muscle_ids, secondary_muscle_ids, tags, contraindications
		FROM exercises ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []models.Exercise
	for rows.Next() {
		var ex models.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.MovementPattern, &ex.Equipment,
			&ex.PrimaryMuscleIDs, &ex.SecondaryMuscleIDs, &ex.Tags, &ex.Contraindications); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, ex)
	}
	return result, rows.Err()
}

// UpsertExercise inserts or updates an exercise by name and returns its id.
func (db *DB) UpsertExercise(ctx context.Context, ex models.Exercise) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO exercises (name, movement_pattern, equipment,
			primary_muscle_ids, secondary_muscle_ids, tags, contraindications)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			movement_pattern = $2, equipment = $3,
			primary_muscle_ids = $4, secondary_muscle_ids = $5,
			tags = $6, contraindications = $7
		RETURNING id
	`, ex.Name, ex.MovementPattern, ex.Equipment,
		ex.PrimaryMuscleIDs, ex.SecondaryMuscleIDs, ex.Tags, ex.Contraindications).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting exercise %q: %w", ex.Name, err)
	}
	return id, nil
}
