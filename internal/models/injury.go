package models

import (
	"sort"
	"strconv"
	"strings"
)

// Injury is a user-reported injury with a 1-5 severity.
type Injury struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Severity int    `json:"severity"`
	Notes    string `json:"notes,omitempty"`
}

// injuryKeywords maps substrings of injury names to the muscle group slugs
// they affect. Matching is case-insensitive substring matching.
var injuryKeywords = map[string][]string{
	"knee":     {"quadriceps", "hamstrings", "calves"},
	"shoulder": {"front_delts", "side_delts", "rear_delts", "chest"},
	"elbow":    {"biceps", "triceps", "forearms"},
	"wrist":    {"forearms"},
	"back":     {"lower_back", "lats"},
	"lumbar":   {"lower_back"},
	"hip":      {"glutes", "hip_flexors"},
	"ankle":    {"calves"},
	"neck":     {"traps"},
	"hamstring": {"hamstrings"},
	"groin":    {"adductors"},
}

// SeverityByMuscle maps injuries onto muscle group IDs via keyword matching
// against injury names. Where several injuries touch the same muscle, the
// highest severity wins.
func SeverityByMuscle(injuries []Injury, groups []MuscleGroup) map[int]int {
	bySlug := make(map[string]int, len(groups))
	for _, g := range groups {
		bySlug[g.Slug] = g.ID
	}

	out := map[int]int{}
	for _, inj := range injuries {
		name := strings.ToLower(inj.Name)
		for keyword, slugs := range injuryKeywords {
			if !strings.Contains(name, keyword) {
				continue
			}
			for _, slug := range slugs {
				id, ok := bySlug[slug]
				if !ok {
					continue
				}
				if inj.Severity > out[id] {
					out[id] = inj.Severity
				}
			}
		}
	}
	return out
}

// MaxSeverity returns the highest severity across all injuries, 0 when none.
func MaxSeverity(injuries []Injury) int {
	max := 0
	for _, inj := range injuries {
		if inj.Severity > max {
			max = inj.Severity
		}
	}
	return max
}

// InjuryFingerprint produces a short stable string summarizing the injury
// set, used when deriving weekly seeds so a changed injury picture reshuffles
// selection.
func InjuryFingerprint(injuries []Injury) string {
	if len(injuries) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(injuries))
	for _, inj := range injuries {
		parts = append(parts, strings.ToLower(strings.ReplaceAll(inj.Name, " ", "_"))+":"+strconv.Itoa(inj.Severity))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
