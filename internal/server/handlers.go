package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/planforge/internal/engine"
	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/models"
	"github.com/claude/planforge/internal/storage"
)

// loadCatalog gathers everything one engine invocation reads.
func (s *Server) loadCatalog(r *http.Request) (engine.Catalog, error) {
	exercises, err := s.db.ListExercises(r.Context())
	if err != nil {
		return engine.Catalog{}, err
	}
	groups, err := s.db.ListMuscleGroups(r.Context())
	if err != nil {
		return engine.Catalog{}, err
	}
	templates, err := s.db.ListTemplates(r.Context())
	if err != nil {
		return engine.Catalog{}, err
	}
	return engine.Catalog{Exercises: exercises, MuscleGroups: groups, Templates: templates}, nil
}

// decodeRequest reads a GenerationRequest body and fills injuries and
// preferences from stored profile data when the request leaves them empty.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, uid int) (models.GenerationRequest, bool) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return req, false
	}
	req.UserID = uid

	if req.Injuries == nil {
		injuries, err := s.db.GetInjuries(r.Context(), uid)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return req, false
		}
		req.Injuries = injuries
	}
	if req.PoolPreferences == nil || req.WeakPointSelection == nil {
		prefs, err := s.db.GetPreferences(r.Context(), uid)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return req, false
		}
		if req.PoolPreferences == nil {
			req.PoolPreferences = prefs.PoolPreferences
		}
		if req.WeakPointSelection == nil {
			req.WeakPointSelection = prefs.WeakPointSelection
		}
	}
	return req, true
}

func (s *Server) engineOptions() engine.Options {
	return engine.Options{Today: s.now(), Weeks: s.buildWeeks}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	req, ok := s.decodeRequest(w, r, uid)
	if !ok {
		return
	}

	cat, err := s.loadCatalog(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	preview, err := engine.Preview(req, cat, s.engineOptions())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	req, ok := s.decodeRequest(w, r, uid)
	if !ok {
		return
	}

	cat, err := s.loadCatalog(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	res, err := engine.Generate(req, cat, s.engineOptions())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := s.db.SaveActiveProgram(r.Context(), res.Snapshot, req.ConfirmOverwrite); err != nil {
		if errors.Is(err, storage.ErrActiveProgramExists) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "an active program exists; set confirm_overwrite to replace it",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.log.Info("program generated",
		"user_id", uid,
		"plan_id", res.Snapshot.PlanID,
		"seed", res.Snapshot.Seed,
		"sessions", len(res.Schedule),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":  res.Snapshot.PlanID,
		"seed":     res.Snapshot.Seed,
		"week_key": res.Snapshot.WeekKey,
		"preview":  res.Preview,
		"schedule": res.Schedule,
	})
}

func (s *Server) handleAdapt(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	snap, err := s.db.GetActiveProgram(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active program"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	cat, err := s.loadCatalog(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	in, err := s.adaptInput(r, uid, snap)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out, err := engine.AdaptNextWeek(snap, cat, in, s.engineOptions())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := s.db.UpdateActiveProgram(r.Context(), out.Snapshot); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.log.Info("program adapted",
		"user_id", uid,
		"week_cursor", out.Snapshot.WeekCursor,
		"fatigue_deload", out.FatigueDeload,
		"auto_reg_slots", out.AutoRegSlots,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"week_cursor":    out.Snapshot.WeekCursor,
		"fatigue_deload": out.FatigueDeload,
		"auto_reg_slots": out.AutoRegSlots,
		"sessions":       out.Sessions,
		"decision_log":   out.DecisionLog,
	})
}

// adaptInput gathers the performance feedback window for one adaptation:
// samples from the current week and the full weekly volume history.
func (s *Server) adaptInput(r *http.Request, uid int, snap models.ActiveProgramSnapshot) (engine.AdaptInput, error) {
	anchor := s.now().AddDate(0, 0, -7)
	if t, err := time.Parse("2006-01-02", snap.WeekKey); err == nil {
		anchor = t.AddDate(0, 0, 7*snap.WeekCursor)
	}

	samples, err := s.db.SamplesSince(r.Context(), uid, anchor)
	if err != nil {
		return engine.AdaptInput{}, err
	}

	historyStart := anchor
	if t, err := time.Parse("2006-01-02", snap.WeekKey); err == nil {
		historyStart = t
	}
	history, err := s.db.WeeklyVolumeHistory(r.Context(), uid, historyStart)
	if err != nil {
		return engine.AdaptInput{}, err
	}
	return engine.AdaptInput{NewSamples: samples, History: history}, nil
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var body struct {
		Hard bool `json:"hard"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}

	snap, err := s.db.GetActiveProgram(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active program"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	restarted := engine.Restart(snap, body.Hard)
	if err := s.db.UpdateActiveProgram(r.Context(), restarted); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_cursor":   restarted.WeekCursor,
		"restart_count": restarted.RestartCount,
		"hard":          body.Hard,
	})
}

func (s *Server) handleActiveProgram(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	snap, err := s.db.GetActiveProgram(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active program"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteActiveProgram(r.Context(), uid); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r, s.now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sessions, err := s.db.QueryPlannedSessions(r.Context(), uid, start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// writeEngineError maps engine failures to status codes: validation problems
// are the client's fault, anything else is ours.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *normalize.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "template validation failed",
			"problems": verr.Problems,
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request, now func() time.Time) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: the next 4 weeks
		start = now().AddDate(0, 0, -1)
		end = start.AddDate(0, 0, 29)
		return
	}

	start, err = time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endStr == "" {
		end = start.AddDate(0, 0, 29)
		return
	}
	end, err = time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	// End of day for date-only
	end = end.Add(24 * time.Hour)
	return
}
