package models

// Phase is a named block of weeks sharing one progression policy.
type Phase struct {
	Name             string   `json:"name"`
	Weeks            int      `json:"weeks"`
	VolumeMultiplier *float64 `json:"volume_multiplier,omitempty"`
	RPEFloor         *float64 `json:"rpe_floor,omitempty"`
	RPECeiling       *float64 `json:"rpe_ceiling,omitempty"`
	Deload           bool     `json:"deload,omitempty"`
}

// WeekRule is one week's progression policy after phase expansion.
type WeekRule struct {
	Week             int      `json:"week"`
	VolumeMultiplier *float64 `json:"volume_multiplier,omitempty"`
	RPEFloor         *float64 `json:"rpe_floor,omitempty"`
	RPECeiling       *float64 `json:"rpe_ceiling,omitempty"`
	Deload           bool     `json:"deload"`
	Note             string   `json:"note,omitempty"`
}

// SlotDescriptor is an abstract exercise requirement inside a session
// template, before a concrete exercise is chosen.
type SlotDescriptor struct {
	SlotKey         string   `json:"slot_key"`
	PoolKey         string   `json:"pool_key,omitempty"`
	MovementPattern string   `json:"movement_pattern,omitempty"`
	TargetMuscleIDs []int    `json:"target_muscles,omitempty"`
	Sets            int      `json:"sets"`
	RepsHint        string   `json:"reps_hint,omitempty"`
	RPEHint         float64  `json:"rpe_hint,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Optional        bool     `json:"optional,omitempty"`
	Required        bool     `json:"required,omitempty"`
}

// SessionTemplate is one training day inside a pool-based template.
type SessionTemplate struct {
	SessionKey string           `json:"session_key"`
	Label      string           `json:"label"`
	Focus      string           `json:"focus,omitempty"`
	Slots      []SlotDescriptor `json:"slots"`
}

// WeakPointOption is one entry of a pool-based template's weak-point menu.
type WeakPointOption struct {
	Key   string         `json:"key"`
	Label string         `json:"label"`
	Slot  SlotDescriptor `json:"slot"`
}

// PoolTemplate is the pool-based template shape: named exercise pools plus
// slot-driven sessions and an explicit weak-point menu.
type PoolTemplate struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	WeeksPerCycle int               `json:"weeks_per_cycle,omitempty"`
	Pools         []ExercisePool    `json:"pools"`
	Sessions      []SessionTemplate `json:"sessions"`
	WeakPointMenu []WeakPointOption `json:"weak_point_menu,omitempty"`
	Phases        []Phase           `json:"phases,omitempty"`
	WeekRules     []WeekRule        `json:"week_rules,omitempty"`
}

// SlotBlueprint is a reusable slot request inside a program-mixing template.
type SlotBlueprint struct {
	SlotKey         string  `json:"slot_key"`
	MovementPattern string  `json:"movement_pattern"`
	PoolKey         string  `json:"pool_key,omitempty"`
	TargetMuscleIDs []int   `json:"target_muscles,omitempty"`
	Sets            int     `json:"sets"`
	MinSets         int     `json:"min_sets"`
	MaxSets         int     `json:"max_sets"`
	Priority        float64 `json:"priority"`
	Required        bool    `json:"required,omitempty"`
	RepsHint        string  `json:"reps_hint,omitempty"`
	RPEHint         float64 `json:"rpe_hint,omitempty"`
	RecoveryCost    float64 `json:"recovery_cost,omitempty"`
}

// SelectionPolicy tunes the scored softmax exercise pick. Zero values fall
// back to allocator defaults.
type SelectionPolicy struct {
	TopK               int     `json:"top_k,omitempty"`
	SoftmaxTemperature float64 `json:"softmax_temperature,omitempty"`
	NoveltyPenalty     float64 `json:"novelty_penalty,omitempty"`
}

// VolumeTargets are weekly set-volume goals keyed by movement pattern and by
// muscle group slug.
type VolumeTargets struct {
	ByPattern map[string]float64 `json:"by_pattern,omitempty"`
	ByMuscle  map[string]float64 `json:"by_muscle,omitempty"`
}

// MixingTemplate is the program-mixing template shape: weekly volume goals,
// reusable slot blueprints, and a selection policy, blended across programs
// by weight.
type MixingTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Weight     float64         `json:"weight"`
	Targets    VolumeTargets   `json:"volume_targets"`
	Blueprints []SlotBlueprint `json:"slot_blueprints"`
	Policy     SelectionPolicy `json:"selection_policy,omitempty"`
	Phases     []Phase         `json:"phases,omitempty"`
	WeekRules  []WeekRule      `json:"week_rules,omitempty"`
}

// LegacySlot is a pre-resolved static slot in a legacy session list.
type LegacySlot struct {
	SlotKey      string  `json:"slot_key"`
	ExerciseName string  `json:"exercise_name"`
	Sets         int     `json:"sets"`
	Reps         string  `json:"reps,omitempty"`
	RPE          float64 `json:"rpe,omitempty"`
}

// LegacySession is one pre-resolved training day in a legacy template.
type LegacySession struct {
	SessionKey string       `json:"session_key"`
	Label      string       `json:"label"`
	Focus      string       `json:"focus,omitempty"`
	Slots      []LegacySlot `json:"slots"`
}

// LegacyTemplate is the oldest template shape: a flat list of sessions with
// static slots and no pools.
type LegacyTemplate struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Sessions  []LegacySession `json:"sessions"`
	WeekRules []WeekRule      `json:"week_rules,omitempty"`
}
