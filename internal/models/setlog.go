package models

import "time"

// LogSession is one training session parsed from a set-log export.
type LogSession struct {
	Name      string        `json:"name"`
	Date      time.Time     `json:"date"`
	Duration  string        `json:"duration"`
	Exercises []LogExercise `json:"exercises"`
}

// LogExercise is one exercise within a logged session.
type LogExercise struct {
	Number     int      `json:"number"`
	Name       string   `json:"name"`
	Equipment  string   `json:"equipment,omitempty"`
	TargetReps int      `json:"target_reps"`
	Sets       []LogSet `json:"sets"`
}

// LogSet is a single performed set. IsBodyweightPlus marks "+N" loads where
// WeightKg is the added load on top of bodyweight.
type LogSet struct {
	Number           int     `json:"number"`
	WeightKg         float64 `json:"weight_kg"`
	IsBodyweightPlus bool    `json:"is_bodyweight_plus,omitempty"`
	Reps             int     `json:"reps"`
	RIR              float64 `json:"rir"`
	IsWarmup         bool    `json:"is_warmup,omitempty"`
}
