package models

import (
	"time"

	"github.com/google/uuid"
)

// Skip reasons attached to a ResolvedSlot when no exercise qualified.
const (
	SkipNoPool         = "no_pool"
	SkipNoCandidate    = "no_candidate"
	SkipNoMatch        = "no_match"
	SkipRecoveryBudget = "recovery_budget"
	SkipRecoveryHold   = "recovery_hold"
)

// ResolvedSlot is a SlotDescriptor bound to a concrete exercise, or carrying
// a skip reason when none qualified. It is never silently empty.
type ResolvedSlot struct {
	SlotKey         string   `json:"slot_key"`
	PoolKey         string   `json:"pool_key,omitempty"`
	ExerciseID      *int     `json:"exercise_id"`
	ExerciseName    string   `json:"exercise_name,omitempty"`
	MovementPattern string   `json:"movement_pattern,omitempty"`
	MuscleGroupIDs  []int    `json:"muscle_group_ids,omitempty"`
	Sets            int      `json:"sets"`
	Reps            string   `json:"reps,omitempty"`
	RPE             float64  `json:"rpe,omitempty"`
	RIR             float64  `json:"rir,omitempty"`
	Optional        bool     `json:"optional,omitempty"`
	SkipReason      string   `json:"skip_reason,omitempty"`
	AppliedRules    []string `json:"applied_rules,omitempty"`
}

// Skipped reports whether the slot was resolved to nothing.
func (s ResolvedSlot) Skipped() bool { return s.SkipReason != "" }

// SessionPlan is one training day relative to week 0.
type SessionPlan struct {
	TemplateID        string         `json:"template_id"`
	ProgramSessionKey string         `json:"program_session_key"`
	Focus             string         `json:"focus,omitempty"`
	Label             string         `json:"label"`
	WeekOffset        int            `json:"week_offset"`
	Slots             []ResolvedSlot `json:"slots"`
}

// PlannedSession is a SessionPlan bound to a concrete calendar date.
type PlannedSession struct {
	Date              time.Time `json:"date"`
	Label             string    `json:"label"`
	ProgramSessionKey string    `json:"program_session_key"`
	TemplateID        string    `json:"template_id"`
	Focus             string    `json:"focus,omitempty"`
	WeekIndex         int       `json:"week_index"`
}

// PerformanceSample aggregates the logged sets for one exercise in one
// session.
type PerformanceSample struct {
	ExerciseKey string    `json:"exercise_key"`
	AvgRPE      *float64  `json:"avg_rpe,omitempty"`
	AvgRIR      *float64  `json:"avg_rir,omitempty"`
	Pain        *float64  `json:"pain,omitempty"`
	Sets        int       `json:"sets"`
	SessionDate time.Time `json:"session_date"`
}

// PerformanceEntry is the rolling per-exercise memory across weeks.
type PerformanceEntry struct {
	AvgRPE      *float64  `json:"avg_rpe,omitempty"`
	AvgRIR      *float64  `json:"avg_rir,omitempty"`
	Pain        *float64  `json:"pain,omitempty"`
	LastSession time.Time `json:"last_session"`
	Samples     int       `json:"samples"`
}

// PerformanceCache maps exercise keys to their rolling performance memory.
// New samples win per field but prior values carry forward when a field is
// absent.
type PerformanceCache map[string]PerformanceEntry

// ProgramSelection names one template in a generation request, optionally
// overriding its declared mixing weight.
type ProgramSelection struct {
	TemplateID     string   `json:"template_id"`
	WeightOverride *float64 `json:"weight_override,omitempty"`
}

// PoolPreference carries per-pool user overrides: banned names are removed
// from candidate lists, a pinned name short-circuits selection, preferred
// names rank first in deterministic ordering.
type PoolPreference struct {
	PoolKey   string   `json:"pool_key"`
	Banned    []string `json:"banned,omitempty"`
	Pinned    string   `json:"pinned,omitempty"`
	Preferred []string `json:"preferred,omitempty"`
}

// WeakPointSelection names up to two weak-point menu options chosen by the
// user. Option2 is subject to a recovery hold under severe injuries.
type WeakPointSelection struct {
	Option1 string `json:"option1,omitempty"`
	Option2 string `json:"option2,omitempty"`
}

// ActiveProgramSnapshot is the durable state of a user's current program run.
type ActiveProgramSnapshot struct {
	UserID           int              `json:"user_id"`
	Seed             string           `json:"seed"`
	PlanID           uuid.UUID        `json:"plan_id"`
	WeekKey          string           `json:"week_key"`
	RestartCount     int              `json:"restart_count"`
	SelectedPrograms []ProgramSelection `json:"selected_programs"`
	Injuries         []Injury         `json:"injuries,omitempty"`
	Schedule         []PlannedSession `json:"schedule"`
	SessionPlans     []SessionPlan    `json:"session_plans"`
	WeekRules        []WeekRule       `json:"week_rules"`
	WeekCursor       int              `json:"week_cursor"`
	Performance      PerformanceCache `json:"performance,omitempty"`
	DecisionLog      []string         `json:"decision_log,omitempty"`
	// Request is the generation input the snapshot was built from, kept so
	// adaptation can regenerate weeks under the same constraints.
	Request GenerationRequest `json:"request"`
}

// GenerationRequest is the input contract for program generation.
type GenerationRequest struct {
	UserID             int                 `json:"user_id"`
	Injuries           []Injury            `json:"injuries,omitempty"`
	FatigueProfile     string              `json:"fatigue_profile"`
	EquipmentProfile   []string            `json:"equipment_profile,omitempty"`
	SelectedPrograms   []ProgramSelection  `json:"selected_programs"`
	DaysPerWeek        int                 `json:"days_per_week"`
	MaxSessionMinutes  int                 `json:"max_session_minutes,omitempty"`
	PreferredDays      []string            `json:"preferred_days,omitempty"`
	PoolPreferences    []PoolPreference    `json:"pool_preferences,omitempty"`
	WeakPointSelection *WeakPointSelection `json:"weak_point_selection,omitempty"`
	ConfirmOverwrite   bool                `json:"confirm_overwrite,omitempty"`
}

// Warning types surfaced in a generation preview.
const (
	WarnUnderTarget     = "under_target"
	WarnRecoveryLoad    = "recovery_load"
	WarnInjuryReduction = "injury_reduction"
)

// Warning is a human-readable preview warning.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MuscleGroupSets is one row of the preview's weekly volume table.
type MuscleGroupSets struct {
	MuscleGroup string `json:"muscleGroup"`
	Sets        int    `json:"sets"`
}

// Preview is the output contract shown before a schedule is committed.
type Preview struct {
	Seed         string            `json:"seed"`
	WeeklySets   []MuscleGroupSets `json:"weeklySets"`
	RecoveryLoad int               `json:"recoveryLoad"`
	Warnings     []Warning         `json:"warnings"`
	RemovedSlots int               `json:"removedSlots"`
}
