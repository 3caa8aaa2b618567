package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/claude/planforge/internal/engine/adapt"
	"github.com/claude/planforge/internal/models"
)

// InsertLoggedSets batch-inserts performance log rows. Returns count inserted.
// Re-sent rows are ignored via the uniqueness constraint.
func (db *DB) InsertLoggedSets(ctx context.Context, rows []models.LoggedSetRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO logged_sets (user_id, exercise_name, session_date,
		set_number, reps, weight_kg, rpe, rir, pain) VALUES `
	args := make([]any, 0, len(rows)*9)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 9
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args, r.UserID, r.ExerciseName, r.SessionDate,
			r.SetNumber, r.Reps, r.WeightKg, r.RPE, r.RIR, r.Pain)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting logged sets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryLoggedSets retrieves logged sets in a date range.
func (db *DB) QueryLoggedSets(ctx context.Context, userID int, start, end time.Time) ([]models.LoggedSetRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id, exercise_name, session_date, set_number, reps, weight_kg, rpe, rir, pain
		FROM logged_sets
		WHERE user_id = $1 AND session_date >= $2 AND session_date < $3
		ORDER BY session_date ASC, exercise_name ASC, set_number ASC
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying logged sets: %w", err)
	}
	defer rows.Close()

	var result []models.LoggedSetRow
	for rows.Next() {
		var r models.LoggedSetRow
		if err := rows.Scan(&r.UserID, &r.ExerciseName, &r.SessionDate, &r.SetNumber,
			&r.Reps, &r.WeightKg, &r.RPE, &r.RIR, &r.Pain); err != nil {
			return nil, fmt.Errorf("scanning logged set: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// AggregateSamples collapses raw set rows into per-exercise, per-session
// performance samples: mean RPE/RIR, worst pain, total sets.
func AggregateSamples(rows []models.LoggedSetRow) []models.PerformanceSample {
	type bucket struct {
		key     string
		date    time.Time
		sets    int
		rpeSum  float64
		rpeN    int
		rirSum  float64
		rirN    int
		maxPain *float64
	}

	buckets := map[string]*bucket{}
	for _, r := range rows {
		key := adapt.ExerciseKey(r.ExerciseName)
		day := r.SessionDate.Truncate(24 * time.Hour)
		id := key + "|" + day.Format("2006-01-02")

		b, ok := buckets[id]
		if !ok {
			b = &bucket{key: key, date: day}
			buckets[id] = b
		}
		b.sets++
		if r.RPE != nil {
			b.rpeSum += *r.RPE
			b.rpeN++
		}
		if r.RIR != nil {
			b.rirSum += *r.RIR
			b.rirN++
		}
		if r.Pain != nil && (b.maxPain == nil || *r.Pain > *b.maxPain) {
			pain := *r.Pain
			b.maxPain = &pain
		}
	}

	out := make([]models.PerformanceSample, 0, len(buckets))
	for _, b := range buckets {
		s := models.PerformanceSample{
			ExerciseKey: b.key,
			Sets:        b.sets,
			SessionDate: b.date,
			Pain:        b.maxPain,
		}
		if b.rpeN > 0 {
			avg := b.rpeSum / float64(b.rpeN)
			s.AvgRPE = &avg
		}
		if b.rirN > 0 {
			avg := b.rirSum / float64(b.rirN)
			s.AvgRIR = &avg
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SessionDate.Equal(out[j].SessionDate) {
			return out[i].SessionDate.Before(out[j].SessionDate)
		}
		return out[i].ExerciseKey < out[j].ExerciseKey
	})
	return out
}

// SamplesSince returns aggregated performance samples for sets logged on or
// after the given date.
func (db *DB) SamplesSince(ctx context.Context, userID int, since time.Time) ([]models.PerformanceSample, error) {
	rows, err := db.QueryLoggedSets(ctx, userID, since, since.AddDate(10, 0, 0))
	if err != nil {
		return nil, err
	}
	return AggregateSamples(rows), nil
}

// WeeklyVolumeHistory returns the user's observed weekly set totals, oldest
// first, for the fatigue check.
func (db *DB) WeeklyVolumeHistory(ctx context.Context, userID int, since time.Time) ([]adapt.WeekVolume, error) {
	rows, err := db.QueryLoggedSets(ctx, userID, since, since.AddDate(10, 0, 0))
	if err != nil {
		return nil, err
	}
	return adapt.WeeklyVolumes(AggregateSamples(rows)), nil
}
