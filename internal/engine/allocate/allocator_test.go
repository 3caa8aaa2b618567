package allocate

import (
	"testing"

	"github.com/claude/planforge/internal/engine/seed"
	"github.com/claude/planforge/internal/models"
)

const (
	quads = 1
	chest = 2
	lats  = 3
)

func mixExercises() []models.Exercise {
	return []models.Exercise{
		{ID: 1, Name: "Back Squat", MovementPattern: "squat", Equipment: []string{"barbell"}, PrimaryMuscleIDs: []int{quads}},
		{ID: 2, Name: "Leg Press", MovementPattern: "squat", Equipment: []string{"machine"}, PrimaryMuscleIDs: []int{quads}},
		{ID: 3, Name: "Bench Press", MovementPattern: "horizontal_push", Equipment: []string{"barbell", "bench"}, PrimaryMuscleIDs: []int{chest}},
		{ID: 4, Name: "Push-Up", MovementPattern: "horizontal_push", Equipment: []string{"bodyweight"}, PrimaryMuscleIDs: []int{chest}},
		{ID: 5, Name: "Barbell Row", MovementPattern: "horizontal_pull", Equipment: []string{"barbell"}, PrimaryMuscleIDs: []int{lats}},
	}
}

func mixGroups() []models.MuscleGroup {
	return []models.MuscleGroup{
		{ID: quads, Name: "Quadriceps", Slug: "quadriceps"},
		{ID: chest, Name: "Chest", Slug: "chest"},
		{ID: lats, Name: "Lats", Slug: "lats"},
	}
}

func mixTemplate() *models.MixingTemplate {
	return &models.MixingTemplate{
		ID:     "mix_a",
		Name:   "Mix A",
		Weight: 1,
		Targets: models.VolumeTargets{
			ByPattern: map[string]float64{"squat": 10, "horizontal_push": 8, "horizontal_pull": 8},
			ByMuscle:  map[string]float64{"quadriceps": 10, "chest": 8, "lats": 8},
		},
		Blueprints: []models.SlotBlueprint{
			{SlotKey: "squat_main", MovementPattern: "squat", Sets: 4, MinSets: 2, MaxSets: 5, Priority: 3, Required: true, RPEHint: 8},
			{SlotKey: "push_main", MovementPattern: "horizontal_push", Sets: 4, MinSets: 2, MaxSets: 5, Priority: 2.5, Required: true, RPEHint: 8},
			{SlotKey: "pull_main", MovementPattern: "horizontal_pull", Sets: 4, MinSets: 2, MaxSets: 5, Priority: 2.5, Required: true, RPEHint: 7.5},
		},
	}
}

func mixInput(days int, fatigue string) Input {
	return Input{
		Programs:       []Program{{Template: mixTemplate(), Weight: 1}},
		DaysPerWeek:    days,
		FatigueProfile: fatigue,
		Exercises:      mixExercises(),
		MuscleGroups:   mixGroups(),
		Equipment:      models.ExpandEquipment([]string{"commercial-gym"}),
	}
}

func TestAllocateDeterministic(t *testing.T) {
	a := Allocate(seed.NewRNG("feedface01234567"), DefaultParams(), mixInput(3, "medium"))
	b := Allocate(seed.NewRNG("feedface01234567"), DefaultParams(), mixInput(3, "medium"))

	if len(a.Days) != 3 || len(b.Days) != 3 {
		t.Fatalf("days = %d/%d, want 3", len(a.Days), len(b.Days))
	}
	for d := range a.Days {
		if len(a.Days[d]) != len(b.Days[d]) {
			t.Fatalf("day %d slot count differs: %d vs %d", d, len(a.Days[d]), len(b.Days[d]))
		}
		for i := range a.Days[d] {
			if a.Days[d][i].ExerciseName != b.Days[d][i].ExerciseName {
				t.Errorf("day %d slot %d exercise differs: %q vs %q",
					d, i, a.Days[d][i].ExerciseName, b.Days[d][i].ExerciseName)
			}
			if a.Days[d][i].Sets != b.Days[d][i].Sets {
				t.Errorf("day %d slot %d sets differ: %d vs %d", d, i, a.Days[d][i].Sets, b.Days[d][i].Sets)
			}
		}
	}
}

func TestAllocateGrantsWithinBudget(t *testing.T) {
	res := Allocate(seed.NewRNG("feedface01234567"), DefaultParams(), mixInput(3, "medium"))
	if res.SpentCost > res.Budget {
		t.Errorf("spent %v exceeds budget %v", res.SpentCost, res.Budget)
	}
	if res.RecoveryLoad() < 0 || res.RecoveryLoad() > 100 {
		t.Errorf("recovery load = %d, want 0-100", res.RecoveryLoad())
	}
	granted := 0
	for _, day := range res.Days {
		for _, slot := range day {
			if !slot.Skipped() {
				granted += slot.Sets
			}
		}
	}
	if granted == 0 {
		t.Error("no sets granted under a normal budget")
	}
}

func TestAllocateBudgetExhaustion(t *testing.T) {
	p := DefaultParams()
	p.BaseBudget = map[string]float64{"low": 2, "medium": 2, "high": 2}
	res := Allocate(seed.NewRNG("feedface01234567"), p, mixInput(2, "low"))

	if res.RemovedSlots == 0 {
		t.Fatal("expected removed required slots under a starved budget")
	}
	var sawReason bool
	for _, day := range res.Days {
		for _, slot := range day {
			if slot.SkipReason == models.SkipRecoveryBudget {
				sawReason = true
			}
		}
	}
	if !sawReason {
		t.Errorf("no slot carries skip reason %q", models.SkipRecoveryBudget)
	}
}

func TestAllocateOptionalSlotOmittedSilently(t *testing.T) {
	tpl := mixTemplate()
	for i := range tpl.Blueprints {
		tpl.Blueprints[i].Required = false
	}
	p := DefaultParams()
	p.BaseBudget = map[string]float64{"medium": 0.5}
	in := mixInput(2, "medium")
	in.Programs = []Program{{Template: tpl, Weight: 1}}

	res := Allocate(seed.NewRNG("feedface01234567"), p, in)
	if res.RemovedSlots != 0 {
		t.Errorf("removed = %d, want 0 for optional slots", res.RemovedSlots)
	}
}

func TestAllocateSetsWithinBlueprintRange(t *testing.T) {
	res := Allocate(seed.NewRNG("feedface01234567"), DefaultParams(), mixInput(4, "high"))
	for _, day := range res.Days {
		for _, slot := range day {
			if slot.Skipped() {
				continue
			}
			if slot.Sets < 1 || slot.Sets > 5 {
				t.Errorf("slot %s sets = %d, outside blueprint range", slot.SlotKey, slot.Sets)
			}
		}
	}
}

func TestAllocatePinnedPreference(t *testing.T) {
	tpl := mixTemplate()
	tpl.Blueprints[0].PoolKey = "squat_quad"
	in := mixInput(3, "medium")
	in.Programs = []Program{{Template: tpl, Weight: 1}}
	in.Prefs = []models.PoolPreference{{PoolKey: "squat_quad", Pinned: "Leg Press"}}

	res := Allocate(seed.NewRNG("feedface01234567"), DefaultParams(), in)
	var found bool
	for _, day := range res.Days {
		for _, slot := range day {
			if slot.SlotKey == "squat_main" {
				found = true
				if slot.ExerciseName != "Leg Press" {
					t.Errorf("squat_main = %q, want pinned Leg Press", slot.ExerciseName)
				}
			}
		}
	}
	if !found {
		t.Fatal("squat_main slot not allocated")
	}
}

func TestWeeklyBudgetScaling(t *testing.T) {
	p := DefaultParams()
	base := WeeklyBudget(p, 3, "medium", 0)
	moreDays := WeeklyBudget(p, 5, "medium", 0)
	if moreDays <= base {
		t.Errorf("budget should grow with days: %v vs %v", moreDays, base)
	}
	shortSessions := WeeklyBudget(p, 3, "medium", 30)
	if shortSessions >= base {
		t.Errorf("budget should shrink with shorter sessions: %v vs %v", shortSessions, base)
	}
	unknown := WeeklyBudget(p, 3, "unheard-of", 0)
	if unknown != base {
		t.Errorf("unknown fatigue profile should fall back to medium: %v vs %v", unknown, base)
	}
}

func TestAggregatePolicyWeighted(t *testing.T) {
	a := mixTemplate()
	a.Policy = models.SelectionPolicy{TopK: 2, SoftmaxTemperature: 0.4, NoveltyPenalty: 0.2}
	b := mixTemplate()
	b.ID = "mix_b"
	b.Policy = models.SelectionPolicy{TopK: 4, SoftmaxTemperature: 0.8, NoveltyPenalty: 0.6}

	pol := aggregatePolicy(DefaultParams(), []Program{
		{Template: a, Weight: 1},
		{Template: b, Weight: 1},
	})
	if pol.TopK != 3 {
		t.Errorf("topK = %d, want 3", pol.TopK)
	}
	if pol.SoftmaxTemperature < 0.59 || pol.SoftmaxTemperature > 0.61 {
		t.Errorf("temperature = %v, want ~0.6", pol.SoftmaxTemperature)
	}
}
