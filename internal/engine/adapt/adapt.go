// Package adapt closes the loop between logged performance and next week's
// plan: it maintains the rolling performance cache, derives per-exercise
// auto-regulation deltas, and detects fatigue spikes that force a deload.
package adapt

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/claude/planforge/internal/engine/weekrule"
	"github.com/claude/planforge/internal/models"
)

const (
	// overshootMargin triggers a back-off when logged RPE exceeds the target
	// by more than this.
	overshootMargin = 0.5
	// undershootMargin triggers a push when logged RPE undershoots the
	// target by more than this.
	undershootMargin = 1.0
	rpeStep          = 0.5

	// fatigueRatio flags a volume spike when the latest week exceeds the
	// prior average by this factor.
	fatigueRatio = 1.25
	// fatigueDeloadFactor further reduces the forced deload week's volume.
	fatigueDeloadFactor = 0.75

	// painBanThreshold is the pain score at which an exercise is banned for
	// the next generation pass.
	painBanThreshold = 7
	// PainBanLabel marks pool-preference bans originating from pain reports.
	PainBanLabel = "painful"
)

// ExerciseKey normalizes an exercise name into the key used by performance
// samples and the cache.
func ExerciseKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// MergeCache folds new samples into the cache. New values win per field;
// fields absent from a sample carry forward from the prior entry.
func MergeCache(cache models.PerformanceCache, samples []models.PerformanceSample) models.PerformanceCache {
	out := make(models.PerformanceCache, len(cache)+len(samples))
	maps.Copy(out, cache)

	for _, s := range samples {
		entry := out[s.ExerciseKey]
		if s.AvgRPE != nil {
			entry.AvgRPE = s.AvgRPE
		}
		if s.AvgRIR != nil {
			entry.AvgRIR = s.AvgRIR
		}
		if s.Pain != nil {
			entry.Pain = s.Pain
		}
		if s.SessionDate.After(entry.LastSession) {
			entry.LastSession = s.SessionDate
		}
		entry.Samples++
		out[s.ExerciseKey] = entry
	}
	return out
}

// AutoRegulate compares cached average RPE against each planned slot's
// target and returns the adjustment map keyed by session and slot key.
// Overshoot by more than 0.5 backs the target off; undershoot by more than
// 1.0 pushes it up. The dead zone between leaves the slot alone.
func AutoRegulate(plans []models.SessionPlan, cache models.PerformanceCache) map[string]weekrule.Adjustment {
	out := map[string]weekrule.Adjustment{}
	for _, plan := range plans {
		for _, slot := range plan.Slots {
			if slot.Skipped() || slot.RPE <= 0 {
				continue
			}
			entry, ok := cache[ExerciseKey(slot.ExerciseName)]
			if !ok || entry.AvgRPE == nil {
				continue
			}
			diff := *entry.AvgRPE - slot.RPE
			switch {
			case diff > overshootMargin:
				out[weekrule.Key(plan.ProgramSessionKey, slot.SlotKey)] = weekrule.Adjustment{RPEDelta: -rpeStep}
			case diff < -undershootMargin:
				out[weekrule.Key(plan.ProgramSessionKey, slot.SlotKey)] = weekrule.Adjustment{RPEDelta: +rpeStep}
			}
		}
	}
	return out
}

// WeekVolume is one observed week's total logged sets.
type WeekVolume struct {
	WeekKey string
	Sets    int
}

// WeeklyVolumes buckets samples into Monday-aligned weeks, ordered oldest
// first.
func WeeklyVolumes(samples []models.PerformanceSample) []WeekVolume {
	byWeek := map[string]int{}
	for _, s := range samples {
		key := startOfWeek(s.SessionDate).Format("2006-01-02")
		byWeek[key] += s.Sets
	}
	keys := make([]string, 0, len(byWeek))
	for k := range byWeek {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]WeekVolume, 0, len(keys))
	for _, k := range keys {
		out = append(out, WeekVolume{WeekKey: k, Sets: byWeek[k]})
	}
	return out
}

// FatigueFlag reports whether the most recent week's volume spiked past
// 1.25x the average of all prior weeks. At least two observed weeks are
// required.
func FatigueFlag(history []WeekVolume) bool {
	if len(history) < 2 {
		return false
	}
	latest := history[len(history)-1]
	prior := history[:len(history)-1]
	sum := 0
	for _, w := range prior {
		sum += w.Sets
	}
	avg := float64(sum) / float64(len(prior))
	return float64(latest.Sets) > fatigueRatio*avg
}

// AdjustForFatigue forces a soft deload onto a week rule: deload set and the
// volume multiplier reduced by a further 0.75x.
func AdjustForFatigue(rule models.WeekRule) models.WeekRule {
	mult := 1.0
	if rule.VolumeMultiplier != nil {
		mult = *rule.VolumeMultiplier
	}
	mult *= fatigueDeloadFactor
	rule.VolumeMultiplier = &mult
	rule.Deload = true
	if rule.Note == "" {
		rule.Note = "fatigue deload"
	}
	return rule
}

// PainBans returns pool preferences banning every exercise whose latest pain
// sample meets the threshold, labeled for the decision log.
func PainBans(cache models.PerformanceCache, nameByKey map[string]string) ([]models.PoolPreference, []string) {
	var banned []string
	for key, entry := range cache {
		if entry.Pain == nil || *entry.Pain < painBanThreshold {
			continue
		}
		name, ok := nameByKey[key]
		if !ok {
			continue
		}
		banned = append(banned, name)
	}
	if len(banned) == 0 {
		return nil, nil
	}
	sort.Strings(banned)

	prefs := []models.PoolPreference{{PoolKey: "", Banned: banned}}
	logs := make([]string, 0, len(banned))
	for _, name := range banned {
		logs = append(logs, fmt.Sprintf("Banned %q as %s for next generation", name, PainBanLabel))
	}
	return prefs, logs
}

func startOfWeek(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
