package models

import "time"

// LoggedSetRow is a row ready for insertion into the logged_sets table.
type LoggedSetRow struct {
	UserID       int
	ExerciseName string
	SessionDate  time.Time
	SetNumber    int
	Reps         int
	WeightKg     *float64
	RPE          *float64
	RIR          *float64
	Pain         *float64
}
