package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/ingest"
	"github.com/claude/planforge/internal/models"
	"github.com/claude/planforge/internal/storage"
)

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := s.db.ListExercises(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (s *Server) handleListMuscleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.db.ListMuscleGroups(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// templateSummary is the listing shape: id, detected kind, and validity.
type templateSummary struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.db.ListTemplates(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]templateSummary, 0, len(templates))
	for _, t := range templates {
		sum := templateSummary{ID: t.ID}
		kind, err := normalize.DetectKind(t.Payload)
		if err != nil {
			sum.Kind = "unknown"
			sum.Error = err.Error()
			out = append(out, sum)
			continue
		}
		sum.Kind = kind.String()
		if _, err := normalize.All([]normalize.Template{t}); err != nil {
			sum.Error = err.Error()
		} else {
			sum.Valid = true
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	// Reject payloads that would never normalize.
	if _, err := normalize.All([]normalize.Template{{ID: id, Payload: payload}}); err != nil {
		writeEngineError(w, err)
		return
	}

	var named struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(payload, &named)

	if err := s.db.UpsertTemplate(r.Context(), id, named.Name, payload); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "id": id})
}

func (s *Server) handleGetInjuries(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	injuries, err := s.db.GetInjuries(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, injuries)
}

func (s *Server) handlePutInjuries(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var injuries []models.Injury
	if err := json.NewDecoder(r.Body).Decode(&injuries); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	for _, inj := range injuries {
		if inj.Name == "" || inj.Severity < 1 || inj.Severity > 10 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "injuries need a name and severity 1-10",
			})
			return
		}
	}
	if err := s.db.ReplaceInjuries(r.Context(), uid, injuries); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "count": len(injuries)})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	prefs, err := s.db.GetPreferences(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var prefs storage.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.db.SavePreferences(r.Context(), uid, prefs); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// ingestSetsRequest is the JSON body for logging performed sets.
type ingestSetsRequest struct {
	Sets []struct {
		ExerciseName string   `json:"exercise_name"`
		SessionDate  string   `json:"session_date"` // YYYY-MM-DD
		SetNumber    int      `json:"set_number"`
		Reps         int      `json:"reps"`
		WeightKg     *float64 `json:"weight_kg,omitempty"`
		RPE          *float64 `json:"rpe,omitempty"`
		RIR          *float64 `json:"rir,omitempty"`
		Pain         *float64 `json:"pain,omitempty"`
	} `json:"sets"`
}

func (s *Server) handleIngestSets(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req ingestSetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Sets) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sets must not be empty"})
		return
	}

	rows := make([]models.LoggedSetRow, 0, len(req.Sets))
	for i, set := range req.Sets {
		if set.ExerciseName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sets[" + strconv.Itoa(i) + "].exercise_name is required"})
			return
		}
		day, err := time.Parse("2006-01-02", set.SessionDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session_date (YYYY-MM-DD): " + err.Error()})
			return
		}
		rows = append(rows, models.LoggedSetRow{
			UserID:       uid,
			ExerciseName: set.ExerciseName,
			SessionDate:  day,
			SetNumber:    set.SetNumber,
			Reps:         set.Reps,
			WeightKg:     set.WeightKg,
			RPE:          set.RPE,
			RIR:          set.RIR,
			Pain:         set.Pain,
		})
	}

	inserted, err := s.db.InsertLoggedSets(r.Context(), rows)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": len(rows), "inserted": inserted})
}

// handleIngestSetsCSV accepts a raw set-log CSV export as the request body
// and stores its working sets.
func (s *Server) handleIngestSetsCSV(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	sessions, err := ingest.Parse(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set log: " + err.Error()})
		return
	}
	rows := ingest.ToLoggedSets(uid, sessions)
	if len(rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no working sets found in export"})
		return
	}

	inserted, err := s.db.InsertLoggedSets(r.Context(), rows)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": len(sessions),
		"received": len(rows),
		"inserted": inserted,
	})
}
