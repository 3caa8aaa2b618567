package mcp

import (
	"context"
	"time"

	"github.com/claude/planforge/internal/engine"
	"github.com/claude/planforge/internal/engine/adapt"
	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/models"
	"github.com/claude/planforge/internal/storage"
)

// AdaptOutcome is the result of one weekly adaptation, shaped like the REST
// adapt response so both local and remote sources produce the same JSON.
type AdaptOutcome struct {
	WeekCursor    int                     `json:"week_cursor"`
	FatigueDeload bool                    `json:"fatigue_deload"`
	AutoRegSlots  int                     `json:"auto_reg_slots"`
	Sessions      []models.PlannedSession `json:"sessions"`
	DecisionLog   []string                `json:"decision_log"`
}

// DataSource abstracts the engine and catalog for MCP tools. Local (direct
// database plus engine) and HTTPClient (remote via REST API) satisfy it.
type DataSource interface {
	ListExercises(ctx context.Context) ([]models.Exercise, error)
	ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error)
	ActiveProgram(ctx context.Context, userID int) (models.ActiveProgramSnapshot, error)
	PlannedSessions(ctx context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error)
	PreviewProgram(ctx context.Context, userID int, req models.GenerationRequest) (*models.Preview, error)
	AdaptNextWeek(ctx context.Context, userID int) (*AdaptOutcome, error)
}

// Store is the persistence surface the local source needs. *storage.DB
// implements it.
type Store interface {
	ListExercises(ctx context.Context) ([]models.Exercise, error)
	ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error)
	ListTemplates(ctx context.Context) ([]normalize.Template, error)
	GetActiveProgram(ctx context.Context, userID int) (models.ActiveProgramSnapshot, error)
	UpdateActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot) error
	QueryPlannedSessions(ctx context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error)
	GetInjuries(ctx context.Context, userID int) ([]models.Injury, error)
	GetPreferences(ctx context.Context, userID int) (storage.Preferences, error)
	SamplesSince(ctx context.Context, userID int, since time.Time) ([]models.PerformanceSample, error)
	WeeklyVolumeHistory(ctx context.Context, userID int, since time.Time) ([]adapt.WeekVolume, error)
}

var _ Store = (*storage.DB)(nil)

// Local runs the engine against the database directly. Used when the MCP
// server shares a process with the REST server.
type Local struct {
	db         Store
	buildWeeks int
	now        func() time.Time
}

var _ DataSource = (*Local)(nil)

// NewLocal creates a Local source. buildWeeks of zero falls back to the
// engine default window.
func NewLocal(db Store, buildWeeks int) *Local {
	return &Local{db: db, buildWeeks: buildWeeks, now: time.Now}
}

func (l *Local) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	return l.db.ListExercises(ctx)
}

func (l *Local) ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error) {
	return l.db.ListMuscleGroups(ctx)
}

func (l *Local) ActiveProgram(ctx context.Context, userID int) (models.ActiveProgramSnapshot, error) {
	return l.db.GetActiveProgram(ctx, userID)
}

func (l *Local) PlannedSessions(ctx context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error) {
	return l.db.QueryPlannedSessions(ctx, userID, start, end)
}

func (l *Local) catalog(ctx context.Context) (engine.Catalog, error) {
	exercises, err := l.db.ListExercises(ctx)
	if err != nil {
		return engine.Catalog{}, err
	}
	groups, err := l.db.ListMuscleGroups(ctx)
	if err != nil {
		return engine.Catalog{}, err
	}
	templates, err := l.db.ListTemplates(ctx)
	if err != nil {
		return engine.Catalog{}, err
	}
	return engine.Catalog{Exercises: exercises, MuscleGroups: groups, Templates: templates}, nil
}

func (l *Local) PreviewProgram(ctx context.Context, userID int, req models.GenerationRequest) (*models.Preview, error) {
	req.UserID = userID
	if req.Injuries == nil {
		injuries, err := l.db.GetInjuries(ctx, userID)
		if err != nil {
			return nil, err
		}
		req.Injuries = injuries
	}
	if req.PoolPreferences == nil || req.WeakPointSelection == nil {
		prefs, err := l.db.GetPreferences(ctx, userID)
		if err != nil {
			return nil, err
		}
		if req.PoolPreferences == nil {
			req.PoolPreferences = prefs.PoolPreferences
		}
		if req.WeakPointSelection == nil {
			req.WeakPointSelection = prefs.WeakPointSelection
		}
	}

	cat, err := l.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Preview(req, cat, engine.Options{Today: l.now(), Weeks: l.buildWeeks})
}

func (l *Local) AdaptNextWeek(ctx context.Context, userID int) (*AdaptOutcome, error) {
	snap, err := l.db.GetActiveProgram(ctx, userID)
	if err != nil {
		return nil, err
	}
	cat, err := l.catalog(ctx)
	if err != nil {
		return nil, err
	}

	// Feedback window opens at the start of the week the cursor points at.
	anchor := l.now().AddDate(0, 0, -7)
	historyStart := anchor
	if t, err := time.Parse("2006-01-02", snap.WeekKey); err == nil {
		anchor = t.AddDate(0, 0, 7*snap.WeekCursor)
		historyStart = t
	}
	samples, err := l.db.SamplesSince(ctx, userID, anchor)
	if err != nil {
		return nil, err
	}
	history, err := l.db.WeeklyVolumeHistory(ctx, userID, historyStart)
	if err != nil {
		return nil, err
	}

	out, err := engine.AdaptNextWeek(snap, cat, engine.AdaptInput{NewSamples: samples, History: history}, engine.Options{Today: l.now(), Weeks: l.buildWeeks})
	if err != nil {
		return nil, err
	}
	if err := l.db.UpdateActiveProgram(ctx, out.Snapshot); err != nil {
		return nil, err
	}
	return &AdaptOutcome{
		WeekCursor:    out.Snapshot.WeekCursor,
		FatigueDeload: out.FatigueDeload,
		AutoRegSlots:  out.AutoRegSlots,
		Sessions:      out.Sessions,
		DecisionLog:   out.DecisionLog,
	}, nil
}
