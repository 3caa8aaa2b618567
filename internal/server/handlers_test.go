package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/planforge/internal/engine/adapt"
	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/models"
	"github.com/claude/planforge/internal/storage"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	exercises []models.Exercise
	groups    []models.MuscleGroup
	templates []normalize.Template

	users     map[string]int
	programs  map[int]models.ActiveProgramSnapshot
	injuries  map[int][]models.Injury
	prefs     map[int]storage.Preferences
	sets      []models.LoggedSetRow
	samples   []models.PerformanceSample
	history   []adapt.WeekVolume
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		exercises: []models.Exercise{
			{ID: 1, Name: "Back Squat", MovementPattern: "squat", Equipment: []string{"barbell"}, PrimaryMuscleIDs: []int{1}},
			{ID: 2, Name: "Leg Press", MovementPattern: "squat", Equipment: []string{"machine"}, PrimaryMuscleIDs: []int{1}},
			{ID: 3, Name: "Bench Press", MovementPattern: "horizontal_push", Equipment: []string{"barbell", "bench"}, PrimaryMuscleIDs: []int{2}},
			{ID: 4, Name: "Push-Up", MovementPattern: "horizontal_push", Equipment: []string{"bodyweight"}, PrimaryMuscleIDs: []int{2}},
		},
		groups: []models.MuscleGroup{
			{ID: 1, Name: "Quadriceps", Slug: "quadriceps"},
			{ID: 2, Name: "Chest", Slug: "chest"},
		},
		templates: []normalize.Template{
			{ID: "basic", Payload: json.RawMessage(`{
				"id": "basic",
				"pools": [
					{"pool_key": "squat_pool", "selection_query": {"movement_pattern": "squat"}},
					{"pool_key": "push_pool", "selection_query": {"movement_pattern": "horizontal_push"}}
				],
				"sessions": [
					{"session_key": "day_a", "label": "Day A", "slots": [
						{"slot_key": "s1", "pool_key": "squat_pool", "sets": 3, "rpe_hint": 8},
						{"slot_key": "s2", "pool_key": "push_pool", "sets": 3, "rpe_hint": 8}
					]}
				]
			}`)},
		},
		users:    map[string]int{},
		programs: map[int]models.ActiveProgramSnapshot{},
		injuries: map[int][]models.Injury{},
		prefs:    map[int]storage.Preferences{},
	}
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	if id, ok := f.users[login]; ok {
		return id, nil
	}
	id := len(f.users) + 1
	f.users[login] = id
	return id, nil
}

func (f *fakeStore) ListExercises(context.Context) ([]models.Exercise, error) {
	return f.exercises, nil
}

func (f *fakeStore) ListMuscleGroups(context.Context) ([]models.MuscleGroup, error) {
	return f.groups, nil
}

func (f *fakeStore) ListTemplates(context.Context) ([]normalize.Template, error) {
	return f.templates, nil
}

func (f *fakeStore) UpsertTemplate(_ context.Context, id, _ string, payload json.RawMessage) error {
	for i, t := range f.templates {
		if t.ID == id {
			f.templates[i].Payload = payload
			return nil
		}
	}
	f.templates = append(f.templates, normalize.Template{ID: id, Payload: payload})
	return nil
}

func (f *fakeStore) GetActiveProgram(_ context.Context, userID int) (models.ActiveProgramSnapshot, error) {
	snap, ok := f.programs[userID]
	if !ok {
		return models.ActiveProgramSnapshot{}, fmt.Errorf("querying active program: %w", pgx.ErrNoRows)
	}
	return snap, nil
}

func (f *fakeStore) SaveActiveProgram(_ context.Context, snap models.ActiveProgramSnapshot, overwrite bool) error {
	if _, exists := f.programs[snap.UserID]; exists && !overwrite {
		return storage.ErrActiveProgramExists
	}
	f.programs[snap.UserID] = snap
	return nil
}

func (f *fakeStore) UpdateActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot) error {
	return f.SaveActiveProgram(ctx, snap, true)
}

func (f *fakeStore) DeleteActiveProgram(_ context.Context, userID int) error {
	delete(f.programs, userID)
	return nil
}

func (f *fakeStore) QueryPlannedSessions(_ context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error) {
	snap, ok := f.programs[userID]
	if !ok {
		return nil, nil
	}
	var out []models.PlannedSession
	for _, s := range snap.Schedule {
		if !s.Date.Before(start) && s.Date.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetInjuries(_ context.Context, userID int) ([]models.Injury, error) {
	return f.injuries[userID], nil
}

func (f *fakeStore) ReplaceInjuries(_ context.Context, userID int, injuries []models.Injury) error {
	f.injuries[userID] = injuries
	return nil
}

func (f *fakeStore) GetPreferences(_ context.Context, userID int) (storage.Preferences, error) {
	return f.prefs[userID], nil
}

func (f *fakeStore) SavePreferences(_ context.Context, userID int, p storage.Preferences) error {
	f.prefs[userID] = p
	return nil
}

func (f *fakeStore) InsertLoggedSets(_ context.Context, rows []models.LoggedSetRow) (int64, error) {
	f.sets = append(f.sets, rows...)
	return int64(len(rows)), nil
}

func (f *fakeStore) SamplesSince(context.Context, int, time.Time) ([]models.PerformanceSample, error) {
	return f.samples, nil
}

func (f *fakeStore) WeeklyVolumeHistory(context.Context, int, time.Time) ([]adapt.WeekVolume, error) {
	return f.history, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(newFakeStore(), "test-key", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }
	return s
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func generateBody() map[string]any {
	return map[string]any{
		"fatigue_profile":   "medium",
		"days_per_week":     2,
		"equipment_profile": []string{"commercial-gym"},
		"selected_programs": []map[string]any{{"template_id": "basic"}},
		"preferred_days":    []string{"monday", "thursday"},
	}
}

func TestHandlePreview(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/programs/preview", generateBody())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var pv models.Preview
	if err := json.NewDecoder(rec.Body).Decode(&pv); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if pv.Seed == "" {
		t.Error("preview seed empty")
	}
	if len(pv.WeeklySets) == 0 {
		t.Error("preview has no weekly sets")
	}
}

func TestHandleGenerateAndConflict(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/programs/generate", generateBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		PlanID  string `json:"plan_id"`
		Seed    string `json:"seed"`
		WeekKey string `json:"week_key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.PlanID == "" || resp.Seed == "" || resp.WeekKey == "" {
		t.Errorf("incomplete response: %+v", resp)
	}

	// Second generate without confirmation conflicts.
	rec = postJSON(t, s, "/api/v1/programs/generate", generateBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	// With confirmation it succeeds.
	body := generateBody()
	body["confirm_overwrite"] = true
	rec = postJSON(t, s, "/api/v1/programs/generate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestHandleGenerateValidation(t *testing.T) {
	s := newTestServer(t)
	body := generateBody()
	body["days_per_week"] = 9
	rec := postJSON(t, s, "/api/v1/programs/generate", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleAdapt(t *testing.T) {
	s := newTestServer(t)
	if rec := postJSON(t, s, "/api/v1/programs/generate", generateBody()); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d: %s", rec.Code, rec.Body)
	}

	rec := postJSON(t, s, "/api/v1/programs/adapt", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		WeekCursor int `json:"week_cursor"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.WeekCursor != 1 {
		t.Errorf("week_cursor = %d, want 1", resp.WeekCursor)
	}
}

func TestHandleAdaptNoProgram(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/programs/adapt", map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleActiveProgramNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/programs/active", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleRestart(t *testing.T) {
	s := newTestServer(t)
	if rec := postJSON(t, s, "/api/v1/programs/generate", generateBody()); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d: %s", rec.Code, rec.Body)
	}

	rec := postJSON(t, s, "/api/v1/programs/restart", map[string]any{"hard": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		RestartCount int  `json:"restart_count"`
		Hard         bool `json:"hard"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.RestartCount != 1 || !resp.Hard {
		t.Errorf("restart response = %+v", resp)
	}
}

func TestHandleIngestSets(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s, "/api/v1/sets", map[string]any{
		"sets": []map[string]any{
			{"exercise_name": "Back Squat", "session_date": "2026-03-02", "set_number": 1, "reps": 5, "rpe": 8.0},
			{"exercise_name": "Back Squat", "session_date": "2026-03-02", "set_number": 2, "reps": 5, "rpe": 8.5},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Received int   `json:"received"`
		Inserted int64 `json:"inserted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Received != 2 || resp.Inserted != 2 {
		t.Errorf("response = %+v, want 2/2", resp)
	}
}

func TestHandleIngestSetsValidation(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/sets", map[string]any{"sets": []map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty sets status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, s, "/api/v1/sets", map[string]any{
		"sets": []map[string]any{{"exercise_name": "X", "session_date": "not-a-date"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestHandleIngestSetsCSV(t *testing.T) {
	s := newTestServer(t)
	csv := `"Lower A";"2026-03-02 18:10 h";"0:55 hr"
"1. Back Squat · Barbell · 5 reps";"WU1 · 60 kg · 5 reps"
#;KG;REPS;RIR
1;100;5;2
2;100;5;1
`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sets/csv", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Sessions int   `json:"sessions"`
		Received int   `json:"received"`
		Inserted int64 `json:"inserted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Sessions != 1 || resp.Received != 2 || resp.Inserted != 2 {
		t.Errorf("response = %+v, want 1 session and 2 working sets", resp)
	}

	// An export with no working sets is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sets/csv", strings.NewReader(""))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty export status = %d, want 400", rec.Code)
	}
}

func TestHandlePutInjuries(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/injuries",
		bytes.NewReader([]byte(`[{"name": "knee pain", "severity": 5}]`)))
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/injuries",
		bytes.NewReader([]byte(`[{"name": "", "severity": 99}]`)))
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid injury status = %d, want 400", rec.Code)
	}
}

func TestHandleUpsertTemplateAuth(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"id": "t2", "pools": [{"pool_key": "p", "selection_query": {}}], "sessions": [{"session_key": "a", "slots": [{"slot_key": "s", "pool_key": "p", "sets": 3}]}]}`)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/templates/t2", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/templates/t2", bytes.NewReader(payload))
	req.Header.Set("X-API-Key", "test-key")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestHandleUpsertTemplateInvalid(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/templates/bad",
		bytes.NewReader([]byte(`{"pools": [], "sessions": []}`)))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
}

func TestHandleSchedule(t *testing.T) {
	s := newTestServer(t)
	if rec := postJSON(t, s, "/api/v1/programs/generate", generateBody()); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d: %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?start=2026-03-01&end=2026-04-15", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var sessions []models.PlannedSession
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(sessions) == 0 {
		t.Error("no planned sessions returned")
	}
}

func TestHandleMe(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
}
