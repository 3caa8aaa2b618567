package adapt

import (
	"testing"
	"time"

	"github.com/claude/planforge/internal/models"
)

func f(v float64) *float64 { return &v }

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestExerciseKey(t *testing.T) {
	if got := ExerciseKey(" Back Squat "); got != "back_squat" {
		t.Errorf("key = %q, want back_squat", got)
	}
}

func TestMergeCacheCarryForward(t *testing.T) {
	cache := models.PerformanceCache{
		"back_squat": {AvgRPE: f(8.5), Pain: f(3), LastSession: day(2), Samples: 1},
	}
	merged := MergeCache(cache, []models.PerformanceSample{
		{ExerciseKey: "back_squat", AvgRPE: f(9), Sets: 4, SessionDate: day(9)},
	})

	entry := merged["back_squat"]
	if entry.AvgRPE == nil || *entry.AvgRPE != 9 {
		t.Errorf("avg rpe = %v, want updated to 9", entry.AvgRPE)
	}
	if entry.Pain == nil || *entry.Pain != 3 {
		t.Errorf("pain = %v, want carried forward 3", entry.Pain)
	}
	if !entry.LastSession.Equal(day(9)) {
		t.Errorf("last session = %v, want %v", entry.LastSession, day(9))
	}
	if entry.Samples != 2 {
		t.Errorf("samples = %d, want 2", entry.Samples)
	}

	// Original cache untouched.
	if *cache["back_squat"].AvgRPE != 8.5 {
		t.Error("merge mutated the input cache")
	}
}

func planWith(rpe float64) []models.SessionPlan {
	id := 1
	return []models.SessionPlan{{
		ProgramSessionKey: "lower_a",
		Slots: []models.ResolvedSlot{{
			SlotKey:      "main_squat",
			ExerciseID:   &id,
			ExerciseName: "Back Squat",
			Sets:         4,
			RPE:          rpe,
		}},
	}}
}

func TestAutoRegulateOvershoot(t *testing.T) {
	cache := models.PerformanceCache{"back_squat": {AvgRPE: f(8.6)}}
	adj := AutoRegulate(planWith(8), cache)
	got, ok := adj["lower_a_main_squat"]
	if !ok {
		t.Fatal("no adjustment for overshoot")
	}
	if got.RPEDelta != -0.5 {
		t.Errorf("rpe delta = %v, want -0.5", got.RPEDelta)
	}
}

func TestAutoRegulateUndershoot(t *testing.T) {
	cache := models.PerformanceCache{"back_squat": {AvgRPE: f(6.5)}}
	adj := AutoRegulate(planWith(8), cache)
	if got := adj["lower_a_main_squat"]; got.RPEDelta != 0.5 {
		t.Errorf("rpe delta = %v, want +0.5", got.RPEDelta)
	}
}

func TestAutoRegulateDeadZone(t *testing.T) {
	for _, avg := range []float64{7.2, 8.0, 8.4} {
		cache := models.PerformanceCache{"back_squat": {AvgRPE: f(avg)}}
		if adj := AutoRegulate(planWith(8), cache); len(adj) != 0 {
			t.Errorf("avg %v: unexpected adjustment %v", avg, adj)
		}
	}
}

func TestWeeklyVolumes(t *testing.T) {
	samples := []models.PerformanceSample{
		{ExerciseKey: "a", Sets: 10, SessionDate: day(2)},  // week of Mar 2
		{ExerciseKey: "b", Sets: 6, SessionDate: day(4)},   // same week
		{ExerciseKey: "a", Sets: 12, SessionDate: day(9)},  // week of Mar 9
		{ExerciseKey: "a", Sets: 30, SessionDate: day(17)}, // week of Mar 16
	}
	vols := WeeklyVolumes(samples)
	if len(vols) != 3 {
		t.Fatalf("weeks = %d, want 3", len(vols))
	}
	if vols[0].Sets != 16 || vols[1].Sets != 12 || vols[2].Sets != 30 {
		t.Errorf("volumes = %+v", vols)
	}
}

func TestFatigueFlag(t *testing.T) {
	cases := []struct {
		name string
		hist []WeekVolume
		want bool
	}{
		{"spike", []WeekVolume{{Sets: 16}, {Sets: 12}, {Sets: 30}}, true},
		{"steady", []WeekVolume{{Sets: 16}, {Sets: 12}, {Sets: 14}}, false},
		{"exact ratio not flagged", []WeekVolume{{Sets: 16}, {Sets: 20}}, false},
		{"single week", []WeekVolume{{Sets: 40}}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FatigueFlag(tc.hist); got != tc.want {
				t.Errorf("FatigueFlag = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAdjustForFatigue(t *testing.T) {
	rule := models.WeekRule{Week: 3, VolumeMultiplier: f(1.0)}
	got := AdjustForFatigue(rule)
	if !got.Deload {
		t.Error("deload not forced")
	}
	if *got.VolumeMultiplier != 0.75 {
		t.Errorf("multiplier = %v, want 0.75", *got.VolumeMultiplier)
	}

	// Stacks on an existing multiplier.
	got = AdjustForFatigue(models.WeekRule{VolumeMultiplier: f(0.8)})
	if *got.VolumeMultiplier != 0.6 {
		t.Errorf("multiplier = %v, want 0.6", *got.VolumeMultiplier)
	}
}

func TestPainBans(t *testing.T) {
	cache := models.PerformanceCache{
		"back_squat":  {Pain: f(8)},
		"bench_press": {Pain: f(2)},
		"deadlift":    {Pain: f(7)},
	}
	names := map[string]string{"back_squat": "Back Squat", "bench_press": "Bench Press", "deadlift": "Deadlift"}

	prefs, logs := PainBans(cache, names)
	if len(prefs) != 1 {
		t.Fatalf("prefs = %d, want 1 global entry", len(prefs))
	}
	if prefs[0].PoolKey != "" {
		t.Errorf("pool key = %q, want global", prefs[0].PoolKey)
	}
	want := []string{"Back Squat", "Deadlift"}
	if len(prefs[0].Banned) != 2 || prefs[0].Banned[0] != want[0] || prefs[0].Banned[1] != want[1] {
		t.Errorf("banned = %v, want %v", prefs[0].Banned, want)
	}
	if len(logs) != 2 {
		t.Errorf("logs = %v, want 2 entries", logs)
	}
}

func TestPainBansEmpty(t *testing.T) {
	prefs, logs := PainBans(models.PerformanceCache{"x": {Pain: f(1)}}, map[string]string{"x": "X"})
	if prefs != nil || logs != nil {
		t.Errorf("prefs = %v logs = %v, want nil", prefs, logs)
	}
}
