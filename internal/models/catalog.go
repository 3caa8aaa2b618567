package models

// MuscleGroup is a catalog entry for a trainable muscle group.
type MuscleGroup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ContraindicationRule excludes an exercise for users whose injury severity
// on any listed muscle group meets one of the thresholds. Replace means the
// resolver should prefer an alternative; Avoid means the exercise is out.
type ContraindicationRule struct {
	MuscleGroupIDs     []int `json:"muscle_group_ids"`
	ReplaceSeverityMin int   `json:"replace_severity_min"`
	AvoidSeverityMin   int   `json:"avoid_severity_min"`
}

// Exercise is a catalog exercise with its movement classification and
// muscle assignments.
type Exercise struct {
	ID                 int                    `json:"id"`
	Name               string                 `json:"name"`
	MovementPattern    string                 `json:"movement_pattern"`
	Equipment          []string               `json:"equipment"`
	PrimaryMuscleIDs   []int                  `json:"primary_muscle_ids"`
	SecondaryMuscleIDs []int                  `json:"secondary_muscle_ids"`
	Tags               []string               `json:"tags"`
	Contraindications  []ContraindicationRule `json:"contraindications,omitempty"`
}

// HasTag reports whether the exercise carries the given tag.
func (e Exercise) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MuscleIDs returns primary and secondary muscle group IDs combined,
// primaries first.
func (e Exercise) MuscleIDs() []int {
	ids := make([]int, 0, len(e.PrimaryMuscleIDs)+len(e.SecondaryMuscleIDs))
	ids = append(ids, e.PrimaryMuscleIDs...)
	ids = append(ids, e.SecondaryMuscleIDs...)
	return ids
}

// SelectionQuery describes which catalog exercises belong to a pool.
type SelectionQuery struct {
	MovementPattern string   `json:"movement_pattern,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Equipment       []string `json:"equipment,omitempty"`
}

// ExercisePool is a named, queryable bucket of candidate exercises.
type ExercisePool struct {
	PoolKey              string         `json:"pool_key"`
	Query                SelectionQuery `json:"selection_query"`
	FallbackPoolKeys     []string       `json:"fallback_pool_keys,omitempty"`
	DefaultExerciseNames []string       `json:"default_exercise_names,omitempty"`
}

// Matches reports whether an exercise satisfies the pool's selection query.
func (q SelectionQuery) Matches(e Exercise) bool {
	if q.MovementPattern != "" && q.MovementPattern != e.MovementPattern {
		return false
	}
	for _, tag := range q.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	if len(q.Equipment) > 0 {
		if !intersects(q.Equipment, e.Equipment) && !contains(e.Equipment, "bodyweight") {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
