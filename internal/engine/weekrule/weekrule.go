// Package weekrule expands a template's phase structure into per-week
// progression rules and applies them, together with auto-regulation deltas,
// to resolved slots.
package weekrule

import (
	"fmt"
	"math"

	"github.com/claude/planforge/internal/models"
)

// DefaultCycleWeeks is the length of the fallback progression cycle: four
// full weeks followed by a deload.
const DefaultCycleWeeks = 5

const (
	deloadVolumeFactor = 0.6
	defaultDeloadCeil  = 7.5
	rpeMin             = 5
	rpeMax             = 10
)

// Expand produces exactly `weeks` rules from a phase list, a flat rule list,
// or neither. A declared list shorter than the window repeats its last rule
// with an updated week number.
func Expand(phases []models.Phase, flat []models.WeekRule, weeks int) []models.WeekRule {
	if weeks <= 0 {
		return nil
	}

	var declared []models.WeekRule
	switch {
	case len(phases) > 0:
		week := 1
		for _, ph := range phases {
			n := ph.Weeks
			if n <= 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				declared = append(declared, models.WeekRule{
					Week:             week,
					VolumeMultiplier: ph.VolumeMultiplier,
					RPEFloor:         ph.RPEFloor,
					RPECeiling:       ph.RPECeiling,
					Deload:           ph.Deload,
					Note:             ph.Name,
				})
				week++
			}
		}
	case len(flat) > 0:
		declared = append(declared, flat...)
		for i := range declared {
			declared[i].Week = i + 1
		}
	default:
		return defaultCycle(weeks)
	}

	out := make([]models.WeekRule, 0, weeks)
	for w := 0; w < weeks; w++ {
		var rule models.WeekRule
		if w < len(declared) {
			rule = declared[w]
		} else {
			rule = declared[len(declared)-1]
		}
		rule.Week = w + 1
		out = append(out, rule)
	}
	return out
}

// defaultCycle is the fallback when a template declares no progression:
// weeks 1-4 at full volume, week 5 a 0.75x deload capped at RPE 7.5, the
// pattern repeating for longer windows.
func defaultCycle(weeks int) []models.WeekRule {
	full := 1.0
	deloadMult := 0.75
	ceil := defaultDeloadCeil

	out := make([]models.WeekRule, 0, weeks)
	for w := 1; w <= weeks; w++ {
		if w%DefaultCycleWeeks == 0 {
			out = append(out, models.WeekRule{
				Week:             w,
				VolumeMultiplier: &deloadMult,
				RPECeiling:       &ceil,
				Deload:           true,
				Note:             "deload",
			})
			continue
		}
		out = append(out, models.WeekRule{Week: w, VolumeMultiplier: &full})
	}
	return out
}

// Adjustment is one slot's auto-regulation delta, keyed by
// program_session_key + "_" + slot_key.
type Adjustment struct {
	SetScale float64 `json:"set_scale,omitempty"`
	RPEDelta float64 `json:"rpe_delta,omitempty"`
}

// Key builds the auto-regulation map key for a slot.
func Key(programSessionKey, slotKey string) string {
	return programSessionKey + "_" + slotKey
}

// Apply transforms a resolved slot under a week rule. Every transformation
// appends an audit tag to applied_rules. Skipped slots pass through
// untouched.
func Apply(slot models.ResolvedSlot, rule models.WeekRule) models.ResolvedSlot {
	if slot.Skipped() {
		return slot
	}

	if rule.VolumeMultiplier != nil && *rule.VolumeMultiplier != 1 {
		slot.Sets = scaleSets(slot.Sets, *rule.VolumeMultiplier)
		slot.AppliedRules = append(slot.AppliedRules, fmt.Sprintf("volume_x%.2f", *rule.VolumeMultiplier))
	}

	if rule.Deload {
		slot.Sets = scaleSets(slot.Sets, deloadVolumeFactor)
		ceil := defaultDeloadCeil
		if rule.RPECeiling != nil {
			ceil = *rule.RPECeiling
		}
		if slot.RPE > ceil {
			slot.RPE = ceil
		}
		slot.AppliedRules = append(slot.AppliedRules, "deload")
	}

	if rule.RPEFloor != nil && rule.RPECeiling != nil && slot.RPE > 0 {
		clamped := math.Min(math.Max(slot.RPE, *rule.RPEFloor), *rule.RPECeiling)
		if clamped != slot.RPE {
			slot.RPE = clamped
			slot.AppliedRules = append(slot.AppliedRules, "rpe_clamp")
		}
	}

	if slot.RPE > 0 {
		slot.RIR = 10 - slot.RPE
	}
	return slot
}

// ApplyAutoReg applies a per-slot auto-regulation adjustment after the week
// rule clamps. Final RPE stays within [5,10].
func ApplyAutoReg(slot models.ResolvedSlot, adj Adjustment) models.ResolvedSlot {
	if slot.Skipped() {
		return slot
	}

	if adj.SetScale != 0 && adj.SetScale != 1 {
		slot.Sets = scaleSets(slot.Sets, adj.SetScale)
		slot.AppliedRules = append(slot.AppliedRules, fmt.Sprintf("auto_reg_sets_x%.2f", adj.SetScale))
	}
	if adj.RPEDelta != 0 && slot.RPE > 0 {
		slot.RPE = math.Min(math.Max(slot.RPE+adj.RPEDelta, rpeMin), rpeMax)
		slot.RIR = 10 - slot.RPE
		slot.AppliedRules = append(slot.AppliedRules, fmt.Sprintf("auto_reg_rpe_%+.1f", adj.RPEDelta))
	}
	return slot
}

// scaleSets multiplies and rounds a set count, never dropping below one set.
func scaleSets(sets int, factor float64) int {
	scaled := int(math.Round(float64(sets) * factor))
	if scaled < 1 {
		return 1
	}
	return scaled
}
