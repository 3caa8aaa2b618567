package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/planforge/internal/models"
)

// ErrActiveProgramExists signals that the user already has an active program
// and the caller did not confirm overwriting it.
var ErrActiveProgramExists = errors.New("active program already exists")

// GetActiveProgram returns the user's current program snapshot, or
// pgx.ErrNoRows when none is active.
func (db *DB) GetActiveProgram(ctx context.Context, userID int) (models.ActiveProgramSnapshot, error) {
	var snap models.ActiveProgramSnapshot
	err := db.Pool.QueryRow(ctx,
		`SELECT snapshot FROM active_programs WHERE user_id = $1`, userID).Scan(&snap)
	if err != nil {
		return models.ActiveProgramSnapshot{}, fmt.Errorf("querying active program: %w", err)
	}
	return snap, nil
}

// SaveActiveProgram stores a program snapshot and its calendar rows in one
// transaction. Unless overwrite is set, an existing program for the user
// aborts with ErrActiveProgramExists.
func (db *DB) SaveActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot, overwrite bool) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning program save: %w", err)
	}
	defer tx.Rollback(ctx)

	if !overwrite {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM active_programs WHERE user_id = $1)`,
			snap.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking active program: %w", err)
		}
		if exists {
			return ErrActiveProgramExists
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO active_programs (user_id, plan_id, seed, snapshot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = $2, seed = $3, snapshot = $4, updated_at = NOW()
	`, snap.UserID, snap.PlanID, snap.Seed, snap); err != nil {
		return fmt.Errorf("saving active program: %w", err)
	}

	if err := replacePlannedSessions(ctx, tx, snap); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateActiveProgram replaces an existing snapshot after adaptation. The
// calendar rows are rewritten to match.
func (db *DB) UpdateActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot) error {
	return db.SaveActiveProgram(ctx, snap, true)
}

// ListActiveProgramUsers returns the IDs of all users with an active program,
// for the weekly adaptation sweep.
func (db *DB) ListActiveProgramUsers(ctx context.Context) ([]int, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id FROM active_programs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing active program users: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteActiveProgram removes the user's program and its calendar rows.
func (db *DB) DeleteActiveProgram(ctx context.Context, userID int) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning program delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM planned_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting planned sessions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM active_programs WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting active program: %w", err)
	}
	return tx.Commit(ctx)
}

func replacePlannedSessions(ctx context.Context, tx pgx.Tx, snap models.ActiveProgramSnapshot) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM planned_sessions WHERE user_id = $1`, snap.UserID); err != nil {
		return fmt.Errorf("clearing planned sessions: %w", err)
	}
	for _, s := range snap.Schedule {
		if _, err := tx.Exec(ctx, `
			INSERT INTO planned_sessions
				(user_id, plan_id, session_date, week_index, session_key, label, template_id, focus)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, snap.UserID, snap.PlanID, s.Date, s.WeekIndex,
			s.ProgramSessionKey, s.Label, s.TemplateID, s.Focus); err != nil {
			return fmt.Errorf("inserting planned session: %w", err)
		}
	}
	return nil
}

// QueryPlannedSessions retrieves the calendar in a date range.
func (db *DB) QueryPlannedSessions(ctx context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT session_date, week_index, session_key, label, template_id, focus
		FROM planned_sessions
		WHERE user_id = $1 AND session_date >= $2 AND session_date < $3
		ORDER BY session_date ASC
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying planned sessions: %w", err)
	}
	defer rows.Close()

	var result []models.PlannedSession
	for rows.Next() {
		var s models.PlannedSession
		if err := rows.Scan(&s.Date, &s.WeekIndex, &s.ProgramSessionKey,
			&s.Label, &s.TemplateID, &s.Focus); err != nil {
			return nil, fmt.Errorf("scanning planned session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
