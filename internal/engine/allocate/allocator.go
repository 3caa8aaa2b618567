// Package allocate distributes weekly volume targets across training days
// for blended program-mixing templates, rationing sets within a recovery
// budget and picking exercises through a scored softmax.
package allocate

import (
	"fmt"
	"maps"
	"math"
	"sort"

	"github.com/claude/planforge/internal/engine/seed"
	"github.com/claude/planforge/internal/models"
)

// Params are the allocator tuning constants. The shipped defaults are not
// load-bearing invariants; callers may override them.
type Params struct {
	// BaseBudget maps a fatigue profile to the weekly recovery budget before
	// scaling by days/week and session length.
	BaseBudget map[string]float64
	// DefaultSetCost is the per-set recovery cost for blueprints that do not
	// declare one.
	DefaultSetCost float64
	// DefaultTopK, DefaultTemperature, and DefaultNoveltyPenalty back the
	// selection policy when templates leave fields unset.
	DefaultTopK           int
	DefaultTemperature    float64
	DefaultNoveltyPenalty float64
	// NoiseScale bounds the seeded tie-breaking noise added to scores.
	NoiseScale float64
	// DaysBaseline and MinutesBaseline anchor the budget scaling ratios.
	DaysBaseline    float64
	MinutesBaseline float64
}

// DefaultParams returns the shipped tuning constants.
func DefaultParams() Params {
	return Params{
		BaseBudget:            map[string]float64{"low": 40, "medium": 55, "high": 70},
		DefaultSetCost:        1.0,
		DefaultTopK:           3,
		DefaultTemperature:    0.6,
		DefaultNoveltyPenalty: 0.35,
		NoiseScale:            0.05,
		DaysBaseline:          3,
		MinutesBaseline:       60,
	}
}

// Program is one selected mixing template with its effective blend weight.
type Program struct {
	Template *models.MixingTemplate
	Weight   float64
}

// Input carries everything one allocation run needs. All state is
// call-scoped.
type Input struct {
	Programs          []Program
	DaysPerWeek       int
	FatigueProfile    string
	MaxSessionMinutes int
	Exercises         []models.Exercise
	MuscleGroups      []models.MuscleGroup
	Equipment         map[string]bool
	Severity          map[int]int
	Prefs             []models.PoolPreference
}

// Result is the allocated week: one slot list per training day plus the
// bookkeeping the preview consumes.
type Result struct {
	Days             [][]models.ResolvedSlot
	RemovedSlots     int
	InjuryExclusions int
	Budget           float64
	SpentCost        float64
	GrantedByMuscle  map[int]int
	TargetByMuscle   map[string]float64
	RemainingMuscle  map[string]float64
	RemainingPattern map[string]float64
	Log              []string
}

// RecoveryLoad is the 0-100 utilization of the recovery budget.
func (r *Result) RecoveryLoad() int {
	if r.Budget <= 0 {
		return 0
	}
	load := int(math.Round(100 * r.SpentCost / r.Budget))
	if load < 0 {
		load = 0
	}
	if load > 100 {
		load = 100
	}
	return load
}

type slotRequest struct {
	program  *models.MixingTemplate
	bp       models.SlotBlueprint
	key      string
	sets     int
	priority float64
}

// Allocate runs the weekly demand allocation for one seeded week.
func Allocate(rng *seed.RNG, p Params, in Input) *Result {
	res := &Result{
		Days:            make([][]models.ResolvedSlot, in.DaysPerWeek),
		GrantedByMuscle: map[int]int{},
	}

	targetPattern, targetMuscle := aggregateTargets(in.Programs)
	res.TargetByMuscle = targetMuscle
	remainingPattern := maps.Clone(targetPattern)
	remainingMuscle := maps.Clone(targetMuscle)

	requests := buildRequests(rng, in.Programs)
	res.Budget = WeeklyBudget(p, in.DaysPerWeek, in.FatigueProfile, in.MaxSessionMinutes)
	policy := aggregatePolicy(p, in.Programs)

	muscleSlug := make(map[int]string, len(in.MuscleGroups))
	for _, g := range in.MuscleGroups {
		muscleSlug[g.ID] = g.Slug
	}

	usage := map[string]int{}
	dayCost := make([]float64, in.DaysPerWeek)

	for _, req := range requests {
		day := cheapestDay(dayCost)
		costPerSet := req.bp.RecoveryCost
		if costPerSet <= 0 {
			costPerSet = p.DefaultSetCost
		}

		grant := req.sets
		if affordable := int((res.Budget - res.SpentCost) / costPerSet); affordable < grant {
			grant = affordable
		}
		if demand, ok := remainingPattern[req.bp.MovementPattern]; ok {
			if demandCap := int(math.Ceil(demand)); demandCap < grant {
				grant = demandCap
			}
		}

		if grant <= 0 {
			if req.bp.Required {
				res.Days[day] = append(res.Days[day], removedSlot(req.bp, models.SkipRecoveryBudget))
				res.RemovedSlots++
				res.Log = append(res.Log, fmt.Sprintf("Removed required slot %s: recovery budget exhausted", req.key))
			}
			continue
		}

		ex, ok := pickExercise(rng, p, policy, req, in, usage, remainingPattern, remainingMuscle, targetPattern, targetMuscle, muscleSlug, res)
		if !ok {
			res.Days[day] = append(res.Days[day], removedSlot(req.bp, models.SkipNoCandidate))
			res.RemovedSlots++
			continue
		}

		slot := bindSlot(req.bp, ex, grant)
		res.Days[day] = append(res.Days[day], slot)
		usage[ex.Name]++
		res.SpentCost += float64(grant) * costPerSet
		dayCost[day] += float64(grant) * costPerSet

		if _, ok := remainingPattern[ex.MovementPattern]; ok {
			remainingPattern[ex.MovementPattern] = math.Max(0, remainingPattern[ex.MovementPattern]-float64(grant))
		}
		for _, mg := range ex.PrimaryMuscleIDs {
			res.GrantedByMuscle[mg] += grant
			if slug, ok := muscleSlug[mg]; ok {
				if _, tracked := remainingMuscle[slug]; tracked {
					remainingMuscle[slug] = math.Max(0, remainingMuscle[slug]-float64(grant))
				}
			}
		}
	}

	res.RemainingMuscle = remainingMuscle
	res.RemainingPattern = remainingPattern
	return res
}

// aggregateTargets sums each program's weekly volume goals scaled by blend
// weight.
func aggregateTargets(programs []Program) (byPattern, byMuscle map[string]float64) {
	byPattern = map[string]float64{}
	byMuscle = map[string]float64{}
	for _, prog := range programs {
		for pattern, sets := range prog.Template.Targets.ByPattern {
			byPattern[pattern] += sets * prog.Weight
		}
		for muscle, sets := range prog.Template.Targets.ByMuscle {
			byMuscle[muscle] += sets * prog.Weight
		}
	}
	return byPattern, byMuscle
}

// buildRequests scales each blueprint by program weight, clamps to the
// declared set range, and applies a seeded 0/+1 jitter. Requests come back
// ordered by priority (stable on key for determinism).
func buildRequests(rng *seed.RNG, programs []Program) []slotRequest {
	var out []slotRequest
	for _, prog := range programs {
		for _, bp := range prog.Template.Blueprints {
			key := prog.Template.ID + "_" + bp.SlotKey
			sets := int(math.Round(float64(bp.Sets)*prog.Weight)) + rng.Jitter("jitter:"+key)
			if bp.MaxSets > 0 && sets > bp.MaxSets {
				sets = bp.MaxSets
			}
			if sets < bp.MinSets {
				sets = bp.MinSets
			}
			out = append(out, slotRequest{
				program:  prog.Template,
				bp:       bp,
				key:      key,
				sets:     sets,
				priority: bp.Priority,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].key < out[j].key
	})
	return out
}

// WeeklyBudget derives the recovery ceiling from the fatigue profile, scaled
// by days/week and the session-length ratio.
func WeeklyBudget(p Params, daysPerWeek int, fatigue string, maxSessionMinutes int) float64 {
	base, ok := p.BaseBudget[fatigue]
	if !ok {
		base = p.BaseBudget["medium"]
	}
	minutes := float64(maxSessionMinutes)
	if minutes == 0 {
		minutes = p.MinutesBaseline
	}
	return base * (float64(daysPerWeek) / p.DaysBaseline) * (minutes / p.MinutesBaseline)
}

// aggregatePolicy blends each program's selection policy, weight-averaged,
// falling back to defaults for unset fields.
func aggregatePolicy(p Params, programs []Program) models.SelectionPolicy {
	var topK, temp, novelty, weight float64
	for _, prog := range programs {
		w := prog.Weight
		weight += w
		pol := prog.Template.Policy
		k := float64(pol.TopK)
		if pol.TopK == 0 {
			k = float64(p.DefaultTopK)
		}
		t := pol.SoftmaxTemperature
		if t == 0 {
			t = p.DefaultTemperature
		}
		n := pol.NoveltyPenalty
		if n == 0 {
			n = p.DefaultNoveltyPenalty
		}
		topK += k * w
		temp += t * w
		novelty += n * w
	}
	if weight == 0 {
		return models.SelectionPolicy{TopK: p.DefaultTopK, SoftmaxTemperature: p.DefaultTemperature, NoveltyPenalty: p.DefaultNoveltyPenalty}
	}
	return models.SelectionPolicy{
		TopK:               int(math.Round(topK / weight)),
		SoftmaxTemperature: temp / weight,
		NoveltyPenalty:     novelty / weight,
	}
}

type scored struct {
	ex    models.Exercise
	score float64
}

// pickExercise scores the candidate pool for a granted slot and samples the
// top-K via softmax with a seeded roll. A pinned preference among the top-K
// is taken deterministically.
func pickExercise(rng *seed.RNG, p Params, policy models.SelectionPolicy, req slotRequest, in Input,
	usage map[string]int, remainingPattern, remainingMuscle, targetPattern, targetMuscle map[string]float64,
	muscleSlug map[int]string, res *Result) (models.Exercise, bool) {

	var pinned string
	var banned []string
	for _, pref := range in.Prefs {
		// An empty pool key is a global ban (pain bans from adaptation).
		if pref.PoolKey == "" {
			banned = append(banned, pref.Banned...)
			continue
		}
		if pref.PoolKey == req.bp.PoolKey {
			pinned = pref.Pinned
			banned = append(banned, pref.Banned...)
		}
	}

	var candidates []scored
	for _, ex := range in.Exercises {
		if ex.MovementPattern != req.bp.MovementPattern {
			continue
		}
		if !equipmentOK(ex, in.Equipment) {
			continue
		}
		if contraindicated(ex, in.Severity) {
			res.InjuryExclusions++
			continue
		}
		if containsName(banned, ex.Name) {
			continue
		}
		if len(req.bp.TargetMuscleIDs) > 0 && !intersectsInt(ex.MuscleIDs(), req.bp.TargetMuscleIDs) {
			continue
		}

		coverage := 1 + patternCoverage(ex, remainingPattern, targetPattern) + muscleCoverage(ex, remainingMuscle, targetMuscle, muscleSlug)
		score := req.priority*coverage -
			policy.NoveltyPenalty*float64(usage[ex.Name]) +
			p.NoiseScale*rng.Next("noise:"+req.key+":"+ex.Name)
		candidates = append(candidates, scored{ex: ex, score: score})
	}
	if len(candidates) == 0 {
		return models.Exercise{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ex.Name < candidates[j].ex.Name
	})

	topK := policy.TopK
	if topK <= 0 {
		topK = p.DefaultTopK
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	top := candidates[:topK]

	if pinned != "" {
		for _, c := range top {
			if c.ex.Name == pinned {
				return c.ex, true
			}
		}
	}

	return softmaxSample(rng, req.key, top, policy.SoftmaxTemperature), true
}

// softmaxSample draws from the top candidates proportionally to
// exp(score/temperature), using a seeded roll.
func softmaxSample(rng *seed.RNG, key string, top []scored, temperature float64) models.Exercise {
	if temperature <= 0 {
		return top[0].ex
	}
	max := top[0].score
	total := 0.0
	weights := make([]float64, len(top))
	for i, c := range top {
		w := math.Exp((c.score - max) / temperature)
		weights[i] = w
		total += w
	}
	roll := rng.Next("softmax:"+key) * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if roll < acc {
			return top[i].ex
		}
	}
	return top[len(top)-1].ex
}

func patternCoverage(ex models.Exercise, remaining, target map[string]float64) float64 {
	t, ok := target[ex.MovementPattern]
	if !ok || t <= 0 {
		return 0
	}
	return clamp01(remaining[ex.MovementPattern] / t)
}

func muscleCoverage(ex models.Exercise, remaining, target map[string]float64, muscleSlug map[int]string) float64 {
	if len(ex.PrimaryMuscleIDs) == 0 {
		return 0
	}
	sum, n := 0.0, 0
	for _, mg := range ex.PrimaryMuscleIDs {
		slug, ok := muscleSlug[mg]
		if !ok {
			continue
		}
		t, ok := target[slug]
		if !ok || t <= 0 {
			continue
		}
		sum += clamp01(remaining[slug] / t)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func bindSlot(bp models.SlotBlueprint, ex models.Exercise, sets int) models.ResolvedSlot {
	id := ex.ID
	rs := models.ResolvedSlot{
		SlotKey:         bp.SlotKey,
		PoolKey:         bp.PoolKey,
		ExerciseID:      &id,
		ExerciseName:    ex.Name,
		MovementPattern: ex.MovementPattern,
		MuscleGroupIDs:  ex.MuscleIDs(),
		Sets:            sets,
		Reps:            bp.RepsHint,
		RPE:             bp.RPEHint,
	}
	if rs.RPE > 0 {
		rs.RIR = 10 - rs.RPE
	}
	return rs
}

func removedSlot(bp models.SlotBlueprint, reason string) models.ResolvedSlot {
	return models.ResolvedSlot{
		SlotKey:         bp.SlotKey,
		PoolKey:         bp.PoolKey,
		MovementPattern: bp.MovementPattern,
		Reps:            bp.RepsHint,
		RPE:             bp.RPEHint,
		SkipReason:      reason,
	}
}

func cheapestDay(costs []float64) int {
	day := 0
	for i, c := range costs {
		if c < costs[day] {
			day = i
		}
	}
	return day
}

func equipmentOK(ex models.Exercise, equipment map[string]bool) bool {
	if len(ex.Equipment) == 0 {
		return true
	}
	for _, eq := range ex.Equipment {
		if equipment[eq] {
			return true
		}
	}
	return false
}

func contraindicated(ex models.Exercise, severity map[int]int) bool {
	for _, rule := range ex.Contraindications {
		for _, mg := range rule.MuscleGroupIDs {
			sev := severity[mg]
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

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
