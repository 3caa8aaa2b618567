// Package normalize classifies raw program template payloads into one of the
// supported structural shapes and validates required fields. Downstream code
// matches on the resulting tag and never re-inspects raw payloads.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claude/planforge/internal/models"
)

// Kind tags the structural shape of a template payload.
type Kind int

const (
	KindPoolBased Kind = iota // pools + slot-driven sessions + weak-point menu
	KindMixing                // weekly volume goals + slot blueprints + selection policy
	KindLegacy                // pre-resolved session list with static slots
)

func (k Kind) String() string {
	switch k {
	case KindPoolBased:
		return "pool_based"
	case KindMixing:
		return "mixing"
	case KindLegacy:
		return "legacy"
	}
	return "unknown"
}

// Normalized is the tagged result of template normalization. Exactly one of
// the shape pointers is set, matching Kind.
type Normalized struct {
	Kind   Kind
	Pool   *models.PoolTemplate
	Mixing *models.MixingTemplate
	Legacy *models.LegacyTemplate
}

// ID returns the template id regardless of shape.
func (n Normalized) ID() string {
	switch n.Kind {
	case KindPoolBased:
		return n.Pool.ID
	case KindMixing:
		return n.Mixing.ID
	case KindLegacy:
		return n.Legacy.ID
	}
	return ""
}

// ValidationError aggregates every invalid field found across a template
// batch. A malformed template is never partially accepted.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template validation failed: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(templateID, format string, args ...any) {
	e.Problems = append(e.Problems, templateID+": "+fmt.Sprintf(format, args...))
}

// Template pairs a template id with its raw payload as stored.
type Template struct {
	ID      string
	Payload json.RawMessage
}

// DetectKind probes a raw payload for the distinguishing keys of each shape.
// Pools win over sessions so a pool-based template with sessions is not
// misread as legacy.
func DetectKind(raw json.RawMessage) (Kind, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("parsing template payload: %w", err)
	}
	if _, ok := probe["pools"]; ok {
		return KindPoolBased, nil
	}
	if _, ok := probe["slot_blueprints"]; ok {
		return KindMixing, nil
	}
	if _, ok := probe["volume_targets"]; ok {
		return KindMixing, nil
	}
	if _, ok := probe["sessions"]; ok {
		return KindLegacy, nil
	}
	return 0, fmt.Errorf("unrecognized template shape (no pools, slot_blueprints, or sessions)")
}

// All normalizes a batch of templates. Either every template normalizes
// cleanly or a single *ValidationError enumerating every problem across the
// batch is returned.
func All(templates []Template) ([]Normalized, error) {
	verr := &ValidationError{}
	out := make([]Normalized, 0, len(templates))

	for _, t := range templates {
		kind, err := DetectKind(t.Payload)
		if err != nil {
			verr.add(t.ID, "%v", err)
			continue
		}

		var n Normalized
		switch kind {
		case KindPoolBased:
			n = normalizePool(t, verr)
		case KindMixing:
			n = normalizeMixing(t, verr)
		case KindLegacy:
			n = normalizeLegacy(t, verr)
		}
		out = append(out, n)
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return out, nil
}

func normalizePool(t Template, verr *ValidationError) Normalized {
	var tpl models.PoolTemplate
	if err := json.Unmarshal(t.Payload, &tpl); err != nil {
		verr.add(t.ID, "decoding pool-based template: %v", err)
		return Normalized{}
	}
	if tpl.ID == "" {
		tpl.ID = t.ID
	}
	if len(tpl.Pools) == 0 {
		verr.add(t.ID, "pools must not be empty")
	}
	if len(tpl.Sessions) == 0 {
		verr.add(t.ID, "sessions must not be empty")
	}
	poolKeys := map[string]bool{}
	for i, p := range tpl.Pools {
		if p.PoolKey == "" {
			verr.add(t.ID, "pools[%d].pool_key is required", i)
			continue
		}
		if poolKeys[p.PoolKey] {
			verr.add(t.ID, "duplicate pool_key %q", p.PoolKey)
		}
		poolKeys[p.PoolKey] = true
	}
	for i, s := range tpl.Sessions {
		if s.SessionKey == "" {
			verr.add(t.ID, "sessions[%d].session_key is required", i)
		}
		if len(s.Slots) == 0 {
			verr.add(t.ID, "sessions[%d].slots must not be empty", i)
		}
		for j, slot := range s.Slots {
			if slot.SlotKey == "" {
				verr.add(t.ID, "sessions[%d].slots[%d].slot_key is required", i, j)
			}
			if slot.PoolKey == "" && slot.MovementPattern == "" {
				verr.add(t.ID, "sessions[%d].slots[%d]: pool_key or movement_pattern is required", i, j)
			}
			if slot.PoolKey != "" && !poolKeys[slot.PoolKey] {
				verr.add(t.ID, "sessions[%d].slots[%d]: unknown pool_key %q", i, j, slot.PoolKey)
			}
			if slot.Sets <= 0 {
				verr.add(t.ID, "sessions[%d].slots[%d].sets must be positive", i, j)
			}
		}
	}
	for i, wp := range tpl.WeakPointMenu {
		if wp.Key == "" {
			verr.add(t.ID, "weak_point_menu[%d].key is required", i)
		}
		if wp.Slot.SlotKey == "" {
			verr.add(t.ID, "weak_point_menu[%d].slot.slot_key is required", i)
		}
	}
	return Normalized{Kind: KindPoolBased, Pool: &tpl}
}

func normalizeMixing(t Template, verr *ValidationError) Normalized {
	var tpl models.MixingTemplate
	if err := json.Unmarshal(t.Payload, &tpl); err != nil {
		verr.add(t.ID, "decoding mixing template: %v", err)
		return Normalized{}
	}
	if tpl.ID == "" {
		tpl.ID = t.ID
	}
	if tpl.Weight < 0 {
		verr.add(t.ID, "weight must not be negative")
	}
	if tpl.Weight == 0 {
		tpl.Weight = 1
	}
	if len(tpl.Targets.ByPattern) == 0 && len(tpl.Targets.ByMuscle) == 0 {
		verr.add(t.ID, "volume_targets must declare at least one pattern or muscle goal")
	}
	if len(tpl.Blueprints) == 0 {
		verr.add(t.ID, "slot_blueprints must not be empty")
	}
	for i, bp := range tpl.Blueprints {
		if bp.SlotKey == "" {
			verr.add(t.ID, "slot_blueprints[%d].slot_key is required", i)
		}
		if bp.MovementPattern == "" {
			verr.add(t.ID, "slot_blueprints[%d].movement_pattern is required", i)
		}
		if bp.MinSets < 0 || bp.MaxSets < bp.MinSets {
			verr.add(t.ID, "slot_blueprints[%d]: min_sets/max_sets range invalid", i)
		}
		if bp.Sets <= 0 {
			verr.add(t.ID, "slot_blueprints[%d].sets must be positive", i)
		}
	}
	return Normalized{Kind: KindMixing, Mixing: &tpl}
}

func normalizeLegacy(t Template, verr *ValidationError) Normalized {
	var tpl models.LegacyTemplate
	if err := json.Unmarshal(t.Payload, &tpl); err != nil {
		verr.add(t.ID, "decoding legacy template: %v", err)
		return Normalized{}
	}
	if tpl.ID == "" {
		tpl.ID = t.ID
	}
	if len(tpl.Sessions) == 0 {
		verr.add(t.ID, "sessions must not be empty")
	}
	for i, s := range tpl.Sessions {
		if s.SessionKey == "" {
			verr.add(t.ID, "sessions[%d].session_key is required", i)
		}
		for j, slot := range s.Slots {
			if slot.ExerciseName == "" {
				verr.add(t.ID, "sessions[%d].slots[%d].exercise_name is required", i, j)
			}
			if slot.Sets <= 0 {
				verr.add(t.ID, "sessions[%d].slots[%d].sets must be positive", i, j)
			}
		}
	}
	return Normalized{Kind: KindLegacy, Legacy: &tpl}
}
