// Package resolve binds abstract slot descriptors to concrete catalog
// exercises through a multi-stage filter pipeline. Resolution never fails:
// a slot that survives no filter degrades to a skip reason.
package resolve

import (
	"sort"
	"strings"

	"github.com/claude/planforge/internal/engine/seed"
	"github.com/claude/planforge/internal/models"
)

// Resolver holds the call-scoped candidate indexes and constraints for one
// generation run. It is not shared across invocations.
type Resolver struct {
	rng       *seed.RNG
	pools     map[string]models.ExercisePool
	byPool    map[string][]models.Exercise
	byPattern map[string][]models.Exercise
	equipment map[string]bool
	severity  map[int]int
	prefs     map[string]models.PoolPreference
	// globalBanned collects names from preferences with an empty pool key,
	// applied to every pool (pain bans from the adaptation pass).
	globalBanned []string

	// InjuryExclusions counts candidates dropped by contraindication rules,
	// feeding the injury_reduction preview warning.
	InjuryExclusions int
}

// New builds a resolver for one generation run. The exercise indexes are
// computed once here and owned by this resolver.
func New(rng *seed.RNG, pools []models.ExercisePool, exercises []models.Exercise,
	equipment map[string]bool, severity map[int]int, prefs []models.PoolPreference) *Resolver {

	r := &Resolver{
		rng:       rng,
		pools:     make(map[string]models.ExercisePool, len(pools)),
		byPool:    make(map[string][]models.Exercise, len(pools)),
		byPattern: map[string][]models.Exercise{},
		equipment: equipment,
		severity:  severity,
		prefs:     make(map[string]models.PoolPreference, len(prefs)),
	}
	for _, p := range pools {
		r.pools[p.PoolKey] = p
	}
	for _, pref := range prefs {
		if pref.PoolKey == "" {
			r.globalBanned = append(r.globalBanned, pref.Banned...)
			continue
		}
		r.prefs[pref.PoolKey] = pref
	}
	for _, ex := range exercises {
		if ex.MovementPattern != "" {
			r.byPattern[ex.MovementPattern] = append(r.byPattern[ex.MovementPattern], ex)
		}
		for _, p := range pools {
			if p.Query.Matches(ex) {
				r.byPool[p.PoolKey] = append(r.byPool[p.PoolKey], ex)
			}
		}
	}
	return r
}

// Resolve runs the filter pipeline for one slot across its pool fallback
// chain and returns a ResolvedSlot, with a skip reason when nothing
// qualified.
func (r *Resolver) Resolve(slot models.SlotDescriptor) models.ResolvedSlot {
	chain, ok := r.poolChain(slot)
	if !ok {
		return skipped(slot, models.SkipNoPool)
	}

	lastReason := models.SkipNoMatch
	for _, poolKey := range chain {
		ex, reason := r.tryPool(slot, poolKey)
		if reason == "" {
			return r.bind(slot, poolKey, ex)
		}
		lastReason = reason
	}
	return skipped(slot, lastReason)
}

// poolChain returns the pool keys to try in order. A slot without a pool key
// falls back to a pattern-wide virtual pool.
func (r *Resolver) poolChain(slot models.SlotDescriptor) ([]string, bool) {
	if slot.PoolKey == "" {
		if slot.MovementPattern == "" {
			return nil, false
		}
		return []string{"pattern:" + slot.MovementPattern}, true
	}
	pool, ok := r.pools[slot.PoolKey]
	if !ok {
		return nil, false
	}
	chain := []string{pool.PoolKey}
	for _, fb := range pool.FallbackPoolKeys {
		if _, ok := r.pools[fb]; ok {
			chain = append(chain, fb)
		}
	}
	return chain, true
}

func (r *Resolver) candidates(poolKey string) []models.Exercise {
	if pattern, ok := strings.CutPrefix(poolKey, "pattern:"); ok {
		return r.byPattern[pattern]
	}
	return r.byPool[poolKey]
}

// tryPool runs the filter stages for one pool. An empty reason means ex is
// the pick.
func (r *Resolver) tryPool(slot models.SlotDescriptor, poolKey string) (models.Exercise, string) {
	base := r.candidates(poolKey)
	if len(base) == 0 {
		return models.Exercise{}, poolKey + "_empty"
	}

	// Stage 1: equipment compatibility. Bodyweight is always available and
	// an exercise with no declared equipment counts as bodyweight.
	survivors := base[:0:0]
	for _, ex := range base {
		if r.equipmentOK(ex) {
			survivors = append(survivors, ex)
		}
	}
	if len(survivors) == 0 {
		return models.Exercise{}, models.SkipNoCandidate
	}

	// Stage 2: contraindication severity thresholds.
	kept := survivors[:0:0]
	for _, ex := range survivors {
		if r.contraindicated(ex) {
			r.InjuryExclusions++
			continue
		}
		kept = append(kept, ex)
	}
	survivors = kept
	if len(survivors) == 0 {
		return models.Exercise{}, models.SkipNoCandidate
	}

	// Stage 3: banned names out, pinned name short-circuits.
	pref := r.prefs[slot.PoolKey]
	if len(pref.Banned) > 0 || len(r.globalBanned) > 0 {
		kept = survivors[:0:0]
		for _, ex := range survivors {
			if containsName(pref.Banned, ex.Name) || containsName(r.globalBanned, ex.Name) {
				continue
			}
			kept = append(kept, ex)
		}
		survivors = kept
		if len(survivors) == 0 {
			return models.Exercise{}, models.SkipNoCandidate
		}
	}
	if pref.Pinned != "" {
		for _, ex := range survivors {
			if ex.Name == pref.Pinned {
				return ex, ""
			}
		}
	}

	// Stage 4: slot tags must all be present.
	if len(slot.Tags) > 0 {
		kept = survivors[:0:0]
		for _, ex := range survivors {
			if hasAllTags(ex, slot.Tags) {
				kept = append(kept, ex)
			}
		}
		survivors = kept
		if len(survivors) == 0 {
			return models.Exercise{}, poolKey + "_tag_mismatch"
		}
	}

	// Stage 5: target-muscle overlap on primary or secondary assignment.
	if len(slot.TargetMuscleIDs) > 0 {
		kept = survivors[:0:0]
		for _, ex := range survivors {
			if intersectsInt(ex.MuscleIDs(), slot.TargetMuscleIDs) {
				kept = append(kept, ex)
			}
		}
		survivors = kept
		if len(survivors) == 0 {
			return models.Exercise{}, poolKey + "_muscle_mismatch"
		}
	}

	// Stage 6: deterministic ordered pick.
	pool := r.pools[poolKey]
	r.orderCandidates(survivors, pref.Preferred, pool.DefaultExerciseNames)
	idx := r.rng.Intn("slot:"+slot.SlotKey, len(survivors))
	return survivors[idx], ""
}

// orderCandidates sorts by explicit preferred-name priority, then pool
// default-name order, then alphabetically, so the seeded index is applied to
// a stable ordering.
func (r *Resolver) orderCandidates(xs []models.Exercise, preferred, defaults []string) {
	rank := func(names []string, name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return len(names)
	}
	sort.SliceStable(xs, func(i, j int) bool {
		pi, pj := rank(preferred, xs[i].Name), rank(preferred, xs[j].Name)
		if pi != pj {
			return pi < pj
		}
		di, dj := rank(defaults, xs[i].Name), rank(defaults, xs[j].Name)
		if di != dj {
			return di < dj
		}
		return xs[i].Name < xs[j].Name
	})
}

func (r *Resolver) equipmentOK(ex models.Exercise) bool {
	if len(ex.Equipment) == 0 {
		return true
	}
	for _, eq := range ex.Equipment {
		if r.equipment[eq] {
			return true
		}
	}
	return false
}

func (r *Resolver) contraindicated(ex models.Exercise) bool {
	for _, rule := range ex.Contraindications {
		for _, mg := range rule.MuscleGroupIDs {
			sev := r.severity[mg]
			if sev == 0 {
				continue
			}
			if rule.AvoidSeverityMin > 0 && sev >= rule.AvoidSeverityMin {
				return true
			}
			if rule.ReplaceSeverityMin > 0 && sev >= rule.ReplaceSeverityMin {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) bind(slot models.SlotDescriptor, poolKey string, ex models.Exercise) models.ResolvedSlot {
	id := ex.ID
	rs := models.ResolvedSlot{
		SlotKey:         slot.SlotKey,
		PoolKey:         poolKey,
		ExerciseID:      &id,
		ExerciseName:    ex.Name,
		MovementPattern: ex.MovementPattern,
		MuscleGroupIDs:  ex.MuscleIDs(),
		Sets:            slot.Sets,
		Reps:            slot.RepsHint,
		RPE:             slot.RPEHint,
		Optional:        slot.Optional,
	}
	if rs.RPE > 0 {
		rs.RIR = 10 - rs.RPE
	}
	return rs
}

func skipped(slot models.SlotDescriptor, reason string) models.ResolvedSlot {
	return models.ResolvedSlot{
		SlotKey:    slot.SlotKey,
		PoolKey:    slot.PoolKey,
		Sets:       slot.Sets,
		Reps:       slot.RepsHint,
		RPE:        slot.RPEHint,
		Optional:   slot.Optional,
		SkipReason: reason,
	}
}

// ResolveWeakPoint resolves the user's weak-point menu picks. Under any
// injury of severity >= 4 all weak-point work is held (recovery_hold); a
// second option is also held when none is configured.
func (r *Resolver) ResolveWeakPoint(menu []models.WeakPointOption, sel *models.WeakPointSelection, maxSeverity int) []models.ResolvedSlot {
	if sel == nil || sel.Option1 == "" {
		return nil
	}
	byKey := make(map[string]models.WeakPointOption, len(menu))
	for _, opt := range menu {
		byKey[opt.Key] = opt
	}

	var out []models.ResolvedSlot

	if opt, ok := byKey[sel.Option1]; ok {
		if maxSeverity >= 4 {
			out = append(out, skipped(opt.Slot, models.SkipRecoveryHold))
		} else {
			out = append(out, r.Resolve(opt.Slot))
		}
	}

	opt2, configured := byKey[sel.Option2]
	if sel.Option2 == "" || !configured {
		hold := models.ResolvedSlot{SlotKey: "weak_point_2", SkipReason: models.SkipRecoveryHold}
		out = append(out, hold)
		return out
	}
	if maxSeverity >= 4 {
		out = append(out, skipped(opt2.Slot, models.SkipRecoveryHold))
		return out
	}
	out = append(out, r.Resolve(opt2.Slot))
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func hasAllTags(ex models.Exercise, tags []string) bool {
	for _, t := range tags {
		if !ex.HasTag(t) {
			return false
		}
	}
	return true
}

func intersectsInt(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
