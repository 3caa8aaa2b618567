// Package engine turns a user's training constraints and declarative
// program templates into a concrete multi-week schedule, and adapts that
// schedule week over week from logged performance. Every function is a pure
// mapping from (inputs, seed, prior state) to (outputs, decision log): no
// I/O, no clocks, no host randomness.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/claude/planforge/internal/engine/adapt"
	"github.com/claude/planforge/internal/engine/allocate"
	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/engine/resolve"
	"github.com/claude/planforge/internal/engine/schedule"
	"github.com/claude/planforge/internal/engine/seed"
	"github.com/claude/planforge/internal/engine/weekrule"
	"github.com/claude/planforge/internal/models"
)

// DefaultBuildWeeks is the schedule window when no template declares a
// longer phase structure.
const DefaultBuildWeeks = 5

// recoveryLoadWarnAt is the preview load above which a recovery warning is
// emitted.
const recoveryLoadWarnAt = 90

// planNamespace anchors deterministic plan ids: the same seed always maps to
// the same plan id.
var planNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("planforge/plan"))

// Catalog is the read-only lookup data one invocation works against.
type Catalog struct {
	Exercises    []models.Exercise
	MuscleGroups []models.MuscleGroup
	Templates    []normalize.Template
}

// Options carry the caller-supplied reference date and tuning overrides.
type Options struct {
	// Today anchors week 0 of the schedule. Required.
	Today time.Time
	// Weeks overrides the build window; zero means the template's declared
	// phase length or DefaultBuildWeeks, whichever is longer.
	Weeks int
	// Alloc overrides the allocator tuning constants; zero value means
	// defaults.
	Alloc *allocate.Params
}

func (o Options) allocParams() allocate.Params {
	if o.Alloc != nil {
		return *o.Alloc
	}
	return allocate.DefaultParams()
}

// Result is a full generation outcome: the preview, the composed schedule,
// the per-week session plans, and the durable snapshot.
type Result struct {
	Preview      models.Preview
	SessionPlans []models.SessionPlan
	Schedule     []models.PlannedSession
	Snapshot     models.ActiveProgramSnapshot
	DecisionLog  []string
}

// Generate runs the full pipeline: normalize templates, derive the seed,
// resolve or allocate each week, apply week rules, and compose the calendar.
func Generate(req models.GenerationRequest, cat Catalog, opts Options) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	selected, err := selectTemplates(req, cat)
	if err != nil {
		return nil, err
	}

	g, err := newGenerator(req, cat, opts, selected)
	if err != nil {
		return nil, err
	}

	weeks := g.weeks
	rules := g.rules

	var plans []models.SessionPlan
	var week0Alloc *allocate.Result
	for w := 0; w < weeks; w++ {
		weekPlans, allocRes := g.buildWeek(w, rules[w], req.PoolPreferences, nil)
		plans = append(plans, weekPlans...)
		if w == 0 {
			week0Alloc = allocRes
		}
	}

	sched := schedule.Compose(plans, req.PreferredDays, req.DaysPerWeek, opts.Today)
	weekKey := schedule.WeekKey(sched)

	preview := g.preview(plans, week0Alloc)
	log := append([]string{
		fmt.Sprintf("Derived seed %s", g.baseSeed),
		fmt.Sprintf("Expanded %d week rules", len(rules)),
		fmt.Sprintf("Composed %d sessions across %d weeks", len(sched), weeks),
	}, g.log...)
	if preview.RemovedSlots > 0 {
		log = append(log, fmt.Sprintf("Removed slots: %d", preview.RemovedSlots))
	}

	snapshot := models.ActiveProgramSnapshot{
		UserID:           req.UserID,
		Seed:             g.baseSeed,
		PlanID:           uuid.NewSHA1(planNamespace, []byte(g.baseSeed)),
		WeekKey:          weekKey,
		SelectedPrograms: req.SelectedPrograms,
		Injuries:         req.Injuries,
		Schedule:         sched,
		SessionPlans:     plans,
		WeekRules:        rules,
		WeekCursor:       0,
		Performance:      models.PerformanceCache{},
		DecisionLog:      log,
		Request:          req,
	}

	return &Result{
		Preview:      preview,
		SessionPlans: plans,
		Schedule:     sched,
		Snapshot:     snapshot,
		DecisionLog:  log,
	}, nil
}

// Preview runs generation without producing a schedule commitment; it is the
// same pipeline, so the committed schedule always matches its preview.
func Preview(req models.GenerationRequest, cat Catalog, opts Options) (*models.Preview, error) {
	res, err := Generate(req, cat, opts)
	if err != nil {
		return nil, err
	}
	return &res.Preview, nil
}

// AdaptInput carries the performance feedback for one adaptation call.
type AdaptInput struct {
	// NewSamples are the per-exercise aggregates logged since the previous
	// adaptation.
	NewSamples []models.PerformanceSample
	// History is the full observed weekly volume series, oldest first.
	History []adapt.WeekVolume
}

// AdaptResult is the outcome of one weekly adaptation call.
type AdaptResult struct {
	Snapshot      models.ActiveProgramSnapshot
	WeekPlans     []models.SessionPlan
	Sessions      []models.PlannedSession
	DecisionLog   []string
	FatigueDeload bool
	AutoRegSlots  int
}

// AdaptNextWeek advances the week cursor, merges performance feedback, and
// regenerates exactly one week under the (possibly fatigue-adjusted) week
// rule, pain bans, and auto-regulation deltas.
func AdaptNextWeek(snap models.ActiveProgramSnapshot, cat Catalog, in AdaptInput, opts Options) (*AdaptResult, error) {
	req := snap.Request

	// Re-anchor on the program's stored week key: both the regenerated
	// dates and the weekly selection seed derive from it, so the outcome
	// is the same no matter when the adaptation actually runs.
	if t, err := time.Parse("2006-01-02", snap.WeekKey); err == nil {
		opts.Today = t
	}

	selected, err := selectTemplates(req, cat)
	if err != nil {
		return nil, fmt.Errorf("adapting program: %w", err)
	}
	g, err := newGenerator(req, cat, opts, selected)
	if err != nil {
		return nil, err
	}

	cursor := snap.WeekCursor + 1
	cache := adapt.MergeCache(snap.Performance, in.NewSamples)

	autoreg := adapt.AutoRegulate(plansAtWeek(snap.SessionPlans, snap.WeekCursor), cache)

	rules := append([]models.WeekRule(nil), snap.WeekRules...)
	if cursor >= len(rules) {
		rules = weekrule.Expand(g.phases, g.flatRules, cursor+1)
	}
	rule := rules[cursor]

	var log []string
	log = append(log, fmt.Sprintf("Auto-reg slots: %d", len(autoreg)))

	fatigued := adapt.FatigueFlag(in.History)
	if fatigued {
		rule = adapt.AdjustForFatigue(rule)
		rules[cursor] = rule
		log = append(log, "Inserted soft deload from fatigue flag")
	}

	nameByKey := make(map[string]string, len(cat.Exercises))
	for _, ex := range cat.Exercises {
		nameByKey[adapt.ExerciseKey(ex.Name)] = ex.Name
	}
	painPrefs, painLogs := adapt.PainBans(cache, nameByKey)
	log = append(log, painLogs...)

	prefs := append(append([]models.PoolPreference(nil), req.PoolPreferences...), painPrefs...)
	weekPlans, _ := g.buildWeek(cursor, rule, prefs, autoreg)

	// Compose only the regenerated week.
	sessions := schedule.Compose(weekPlans, req.PreferredDays, req.DaysPerWeek, opts.Today)

	log = append(log, fmt.Sprintf("Week cursor advanced to %d", cursor))

	updated := snap
	updated.WeekCursor = cursor
	updated.Performance = cache
	updated.WeekRules = rules
	updated.SessionPlans = replaceWeekPlans(snap.SessionPlans, cursor, weekPlans)
	updated.Schedule = replaceWeekSessions(snap.Schedule, cursor, sessions)
	updated.DecisionLog = append(append([]string(nil), snap.DecisionLog...), log...)

	return &AdaptResult{
		Snapshot:      updated,
		WeekPlans:     weekPlans,
		Sessions:      sessions,
		DecisionLog:   log,
		FatigueDeload: fatigued,
		AutoRegSlots:  len(autoreg),
	}, nil
}

// Restart resets a program run. A soft restart rewinds the week cursor but
// keeps performance memory; a hard restart clears it. Both bump the restart
// counter.
func Restart(snap models.ActiveProgramSnapshot, hard bool) models.ActiveProgramSnapshot {
	snap.RestartCount++
	snap.WeekCursor = 0
	if hard {
		snap.Performance = models.PerformanceCache{}
		snap.DecisionLog = nil
	}
	snap.DecisionLog = append(snap.DecisionLog, fmt.Sprintf("Program restarted (hard=%v), restart #%d", hard, snap.RestartCount))
	return snap
}

// --- internals ---

type generator struct {
	req      models.GenerationRequest
	cat      Catalog
	opts     Options
	baseSeed string

	mixing []allocate.Program // set when the selection is program-mixing
	pool   []*models.PoolTemplate
	legacy []*models.LegacyTemplate

	phases    []models.Phase
	flatRules []models.WeekRule
	weeks     int
	rules     []models.WeekRule

	exByID   map[int]models.Exercise
	exByName map[string]models.Exercise
	groups   map[int]models.MuscleGroup
	severity map[int]int
	equip    map[string]bool

	injuryExclusions int
	log              []string
}

func validateRequest(req models.GenerationRequest) error {
	if req.DaysPerWeek < 2 || req.DaysPerWeek > 5 {
		return fmt.Errorf("days_per_week must be 2-5, got %d", req.DaysPerWeek)
	}
	switch req.FatigueProfile {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("fatigue_profile must be low, medium, or high, got %q", req.FatigueProfile)
	}
	if len(req.SelectedPrograms) == 0 {
		return fmt.Errorf("selected_programs must not be empty")
	}
	if req.MaxSessionMinutes != 0 && (req.MaxSessionMinutes < 20 || req.MaxSessionMinutes > 180) {
		return fmt.Errorf("max_session_minutes must be 20-180, got %d", req.MaxSessionMinutes)
	}
	return nil
}

func selectTemplates(req models.GenerationRequest, cat Catalog) ([]normalize.Normalized, error) {
	byID := make(map[string]normalize.Template, len(cat.Templates))
	for _, t := range cat.Templates {
		byID[t.ID] = t
	}
	var raw []normalize.Template
	for _, sel := range req.SelectedPrograms {
		t, ok := byID[sel.TemplateID]
		if !ok {
			return nil, fmt.Errorf("template missing: %s", sel.TemplateID)
		}
		raw = append(raw, t)
	}
	return normalize.All(raw)
}

func newGenerator(req models.GenerationRequest, cat Catalog, opts Options, selected []normalize.Normalized) (*generator, error) {
	g := &generator{
		req:      req,
		cat:      cat,
		opts:     opts,
		exByID:   make(map[int]models.Exercise, len(cat.Exercises)),
		exByName: make(map[string]models.Exercise, len(cat.Exercises)),
		groups:   make(map[int]models.MuscleGroup, len(cat.MuscleGroups)),
		severity: models.SeverityByMuscle(req.Injuries, cat.MuscleGroups),
		equip:    models.ExpandEquipment(req.EquipmentProfile),
	}
	for _, ex := range cat.Exercises {
		g.exByID[ex.ID] = ex
		g.exByName[ex.Name] = ex
	}
	for _, mg := range cat.MuscleGroups {
		g.groups[mg.ID] = mg
	}

	templateIDs := make([]string, 0, len(selected))
	declaredWeeks := 0
	for i, n := range selected {
		templateIDs = append(templateIDs, n.ID())
		switch n.Kind {
		case normalize.KindMixing:
			weight := n.Mixing.Weight
			if ov := req.SelectedPrograms[i].WeightOverride; ov != nil {
				weight = *ov
			}
			g.mixing = append(g.mixing, allocate.Program{Template: n.Mixing, Weight: weight})
			g.adoptRules(n.Mixing.Phases, n.Mixing.WeekRules)
		case normalize.KindPoolBased:
			g.pool = append(g.pool, n.Pool)
			g.adoptRules(n.Pool.Phases, n.Pool.WeekRules)
			if n.Pool.WeeksPerCycle > declaredWeeks {
				declaredWeeks = n.Pool.WeeksPerCycle
			}
		case normalize.KindLegacy:
			g.legacy = append(g.legacy, n.Legacy)
			g.adoptRules(nil, n.Legacy.WeekRules)
		}
	}
	if len(g.mixing) > 0 && (len(g.pool) > 0 || len(g.legacy) > 0) {
		return nil, fmt.Errorf("mixing templates cannot be blended with pool-based or legacy templates")
	}

	g.baseSeed = seed.Derive(seed.Inputs{
		UserID:        req.UserID,
		TemplateIDs:   templateIDs,
		DaysPerWeek:   req.DaysPerWeek,
		Fatigue:       req.FatigueProfile,
		PreferredDays: req.PreferredDays,
		Equipment:     req.EquipmentProfile,
	})

	g.weeks = opts.Weeks
	if g.weeks <= 0 {
		g.weeks = DefaultBuildWeeks
		if total := totalPhaseWeeks(g.phases); total > g.weeks {
			g.weeks = total
		}
		if declaredWeeks > g.weeks {
			g.weeks = declaredWeeks
		}
	}
	g.rules = weekrule.Expand(g.phases, g.flatRules, g.weeks)
	return g, nil
}

// adoptRules keeps the first declared phase/rule structure across the
// selected templates.
func (g *generator) adoptRules(phases []models.Phase, flat []models.WeekRule) {
	if len(g.phases) == 0 && len(g.flatRules) == 0 {
		g.phases = phases
		g.flatRules = flat
	}
}

func totalPhaseWeeks(phases []models.Phase) int {
	total := 0
	for _, ph := range phases {
		if ph.Weeks > 0 {
			total += ph.Weeks
		} else {
			total++
		}
	}
	return total
}

// buildWeek produces the session plans for one week offset with the given
// rule, preferences, and auto-regulation map. The allocator result is
// non-nil only on the mixing path.
func (g *generator) buildWeek(w int, rule models.WeekRule, prefs []models.PoolPreference, autoreg map[string]weekrule.Adjustment) ([]models.SessionPlan, *allocate.Result) {
	var plans []models.SessionPlan
	var allocRes *allocate.Result

	if len(g.mixing) > 0 {
		plans, allocRes = g.buildMixingWeek(w, prefs)
	} else {
		plans = g.buildStaticWeek(w, prefs)
	}

	for i := range plans {
		for j := range plans[i].Slots {
			slot := weekrule.Apply(plans[i].Slots[j], rule)
			if adj, ok := autoreg[weekrule.Key(plans[i].ProgramSessionKey, slot.SlotKey)]; ok {
				slot = weekrule.ApplyAutoReg(slot, adj)
			}
			plans[i].Slots[j] = slot
		}
	}
	return plans, allocRes
}

// buildMixingWeek runs the demand allocator under a weekly seed, so each
// week (and each injury change) reshuffles selection.
func (g *generator) buildMixingWeek(w int, prefs []models.PoolPreference) ([]models.SessionPlan, *allocate.Result) {
	weekStart := schedule.StartOfWeek(g.opts.Today).AddDate(0, 0, 7*w).Format("2006-01-02")
	weekly := seed.DeriveWeekly(g.baseSeed, weekStart, models.InjuryFingerprint(g.req.Injuries))
	rng := seed.NewRNG(weekly)

	res := allocate.Allocate(rng, g.opts.allocParams(), allocate.Input{
		Programs:          g.mixing,
		DaysPerWeek:       g.req.DaysPerWeek,
		FatigueProfile:    g.req.FatigueProfile,
		MaxSessionMinutes: g.req.MaxSessionMinutes,
		Exercises:         g.cat.Exercises,
		MuscleGroups:      g.cat.MuscleGroups,
		Equipment:         g.equip,
		Severity:          g.severity,
		Prefs:             prefs,
	})
	g.injuryExclusions += res.InjuryExclusions
	g.log = append(g.log, res.Log...)

	templateID := g.mixing[0].Template.ID
	plans := make([]models.SessionPlan, 0, len(res.Days))
	for d, slots := range res.Days {
		plans = append(plans, models.SessionPlan{
			TemplateID:        templateID,
			ProgramSessionKey: fmt.Sprintf("mixed_day_%d", d+1),
			Label:             fmt.Sprintf("Day %d", d+1),
			Focus:             "mixed",
			WeekOffset:        w,
			Slots:             slots,
		})
	}
	return plans, res
}

// buildStaticWeek resolves pool-based and legacy sessions. Selection uses
// the base seed so exercise choices stay stable across weeks.
func (g *generator) buildStaticWeek(w int, prefs []models.PoolPreference) []models.SessionPlan {
	rng := seed.NewRNG(g.baseSeed)

	var plans []models.SessionPlan
	for _, tpl := range g.pool {
		resolver := resolve.New(rng, tpl.Pools, g.cat.Exercises, g.equip, g.severity, prefs)
		for _, session := range tpl.Sessions {
			slots := make([]models.ResolvedSlot, 0, len(session.Slots))
			for _, sd := range session.Slots {
				slots = append(slots, resolver.Resolve(sd))
			}
			plans = append(plans, models.SessionPlan{
				TemplateID:        tpl.ID,
				ProgramSessionKey: session.SessionKey,
				Label:             session.Label,
				Focus:             session.Focus,
				WeekOffset:        w,
				Slots:             slots,
			})
		}

		// Weak-point work rides along on the first session of the week.
		wpSlots := resolver.ResolveWeakPoint(tpl.WeakPointMenu, g.req.WeakPointSelection, models.MaxSeverity(g.req.Injuries))
		if len(wpSlots) > 0 && len(plans) > 0 {
			plans[0].Slots = append(plans[0].Slots, wpSlots...)
		}
		g.injuryExclusions += resolver.InjuryExclusions
	}

	for _, tpl := range g.legacy {
		for _, session := range tpl.Sessions {
			slots := make([]models.ResolvedSlot, 0, len(session.Slots))
			for _, ls := range session.Slots {
				slots = append(slots, g.bindLegacy(ls))
			}
			plans = append(plans, models.SessionPlan{
				TemplateID:        tpl.ID,
				ProgramSessionKey: session.SessionKey,
				Label:             session.Label,
				Focus:             session.Focus,
				WeekOffset:        w,
				Slots:             slots,
			})
		}
	}

	// A week holds at most days_per_week sessions.
	if len(plans) > g.req.DaysPerWeek {
		plans = plans[:g.req.DaysPerWeek]
	}
	return plans
}

// bindLegacy attaches catalog identity to a static legacy slot when the
// exercise name is known; the name is kept either way.
func (g *generator) bindLegacy(ls models.LegacySlot) models.ResolvedSlot {
	rs := models.ResolvedSlot{
		SlotKey:      ls.SlotKey,
		ExerciseName: ls.ExerciseName,
		Sets:         ls.Sets,
		Reps:         ls.Reps,
		RPE:          ls.RPE,
	}
	if ex, ok := g.exByName[ls.ExerciseName]; ok {
		id := ex.ID
		rs.ExerciseID = &id
		rs.MovementPattern = ex.MovementPattern
		rs.MuscleGroupIDs = ex.MuscleIDs()
	}
	if rs.RPE > 0 {
		rs.RIR = 10 - rs.RPE
	}
	return rs
}

// preview summarizes week 0: weekly sets per muscle group, recovery load,
// removed slots, and warnings.
func (g *generator) preview(plans []models.SessionPlan, allocRes *allocate.Result) models.Preview {
	week0 := plansAtWeek(plans, 0)

	removed := 0
	totalSets := 0
	setsByMuscle := map[int]int{}
	for _, plan := range week0 {
		for _, slot := range plan.Slots {
			if slot.Skipped() {
				removed++
				continue
			}
			totalSets += slot.Sets
			if slot.ExerciseID != nil {
				if ex, ok := g.exByID[*slot.ExerciseID]; ok {
					for _, mg := range ex.PrimaryMuscleIDs {
						setsByMuscle[mg] += slot.Sets
					}
				}
			}
		}
	}

	weekly := make([]models.MuscleGroupSets, 0, len(setsByMuscle))
	for mg, sets := range setsByMuscle {
		name := g.groups[mg].Name
		if name == "" {
			name = fmt.Sprintf("muscle_%d", mg)
		}
		weekly = append(weekly, models.MuscleGroupSets{MuscleGroup: name, Sets: sets})
	}
	sort.Slice(weekly, func(i, j int) bool {
		if weekly[i].Sets != weekly[j].Sets {
			return weekly[i].Sets > weekly[j].Sets
		}
		return weekly[i].MuscleGroup < weekly[j].MuscleGroup
	})

	var load int
	var warnings []models.Warning
	if allocRes != nil {
		load = allocRes.RecoveryLoad()
		var under []string
		for muscle, remaining := range allocRes.RemainingMuscle {
			if remaining >= 1 {
				under = append(under, fmt.Sprintf("%s (%.0f sets short)", muscle, remaining))
			}
		}
		sort.Strings(under)
		for _, u := range under {
			warnings = append(warnings, models.Warning{
				Type:    models.WarnUnderTarget,
				Message: "Weekly volume target missed for " + u,
			})
		}
	} else {
		params := g.opts.allocParams()
		budget := allocate.WeeklyBudget(params, g.req.DaysPerWeek, g.req.FatigueProfile, g.req.MaxSessionMinutes)
		if budget > 0 {
			load = int(float64(totalSets) * params.DefaultSetCost / budget * 100)
			if load > 100 {
				load = 100
			}
		}
	}

	if load >= recoveryLoadWarnAt {
		warnings = append(warnings, models.Warning{
			Type:    models.WarnRecoveryLoad,
			Message: fmt.Sprintf("Planned volume uses %d%% of the weekly recovery budget", load),
		})
	}
	if g.injuryExclusions > 0 {
		warnings = append(warnings, models.Warning{
			Type:    models.WarnInjuryReduction,
			Message: fmt.Sprintf("%d exercise options excluded due to reported injuries", g.injuryExclusions),
		})
	}

	return models.Preview{
		Seed:         g.baseSeed,
		WeeklySets:   weekly,
		RecoveryLoad: load,
		Warnings:     warnings,
		RemovedSlots: removed,
	}
}

func plansAtWeek(plans []models.SessionPlan, week int) []models.SessionPlan {
	var out []models.SessionPlan
	for _, p := range plans {
		if p.WeekOffset == week {
			out = append(out, p)
		}
	}
	return out
}

func replaceWeekPlans(plans []models.SessionPlan, week int, replacement []models.SessionPlan) []models.SessionPlan {
	out := make([]models.SessionPlan, 0, len(plans)+len(replacement))
	for _, p := range plans {
		if p.WeekOffset != week {
			out = append(out, p)
		}
	}
	return append(out, replacement...)
}

func replaceWeekSessions(sessions []models.PlannedSession, week int, replacement []models.PlannedSession) []models.PlannedSession {
	out := make([]models.PlannedSession, 0, len(sessions)+len(replacement))
	for _, s := range sessions {
		if s.WeekIndex != week {
			out = append(out, s)
		}
	}
	out = append(out, replacement...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
