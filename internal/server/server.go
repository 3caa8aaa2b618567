package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"tailscale.com/client/tailscale"

	"github.com/claude/planforge/internal/engine/adapt"
	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/models"
	"github.com/claude/planforge/internal/storage"
)

// Store is the persistence surface the handlers depend on. *storage.DB
// implements it; tests substitute a fake.
type Store interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)

	ListExercises(ctx context.Context) ([]models.Exercise, error)
	ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error)
	ListTemplates(ctx context.Context) ([]normalize.Template, error)
	UpsertTemplate(ctx context.Context, id, name string, payload json.RawMessage) error

	GetActiveProgram(ctx context.Context, userID int) (models.ActiveProgramSnapshot, error)
	SaveActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot, overwrite bool) error
	UpdateActiveProgram(ctx context.Context, snap models.ActiveProgramSnapshot) error
	DeleteActiveProgram(ctx context.Context, userID int) error
	QueryPlannedSessions(ctx context.Context, userID int, start, end time.Time) ([]models.PlannedSession, error)

	GetInjuries(ctx context.Context, userID int) ([]models.Injury, error)
	ReplaceInjuries(ctx context.Context, userID int, injuries []models.Injury) error
	GetPreferences(ctx context.Context, userID int) (storage.Preferences, error)
	SavePreferences(ctx context.Context, userID int, p storage.Preferences) error

	InsertLoggedSets(ctx context.Context, rows []models.LoggedSetRow) (int64, error)
	SamplesSince(ctx context.Context, userID int, since time.Time) ([]models.PerformanceSample, error)
	WeeklyVolumeHistory(ctx context.Context, userID int, since time.Time) ([]adapt.WeekVolume, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db         Store
	log        *slog.Logger
	apiKey     string
	buildWeeks int
	now        func() time.Time
	whois      *tailscale.LocalClient
	router     chi.Router
}

// New creates a new Server with all routes configured. buildWeeks of zero
// falls back to the engine default window.
func New(db Store, apiKey string, buildWeeks int, log *slog.Logger) *Server {
	s := &Server{
		db:         db,
		log:        log,
		apiKey:     apiKey,
		buildWeeks: buildWeeks,
		now:        time.Now,
		router:     chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/api/v1/health", s.handleHealth)
	s.router.Get("/api/v1/me", s.handleMe)

	// Catalog (read-only, no auth — tsnet handles access)
	s.router.Get("/api/v1/exercises", s.handleListExercises)
	s.router.Get("/api/v1/muscle-groups", s.handleListMuscleGroups)
	s.router.Get("/api/v1/templates", s.handleListTemplates)

	// Catalog writes (API key required)
	s.router.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Put("/templates/{id}", s.handleUpsertTemplate)
	})

	// Program lifecycle, per-user state
	s.router.Group(func(r chi.Router) {
		r.Use(s.ResolveUser)

		r.Post("/api/v1/programs/preview", s.handlePreview)
		r.Post("/api/v1/programs/generate", s.handleGenerate)
		r.Post("/api/v1/programs/adapt", s.handleAdapt)
		r.Post("/api/v1/programs/restart", s.handleRestart)
		r.Get("/api/v1/programs/active", s.handleActiveProgram)
		r.Delete("/api/v1/programs/active", s.handleDeleteProgram)
		r.Get("/api/v1/schedule", s.handleSchedule)

		r.Get("/api/v1/injuries", s.handleGetInjuries)
		r.Put("/api/v1/injuries", s.handlePutInjuries)
		r.Get("/api/v1/preferences", s.handleGetPreferences)
		r.Put("/api/v1/preferences", s.handlePutPreferences)

		r.Post("/api/v1/sets", s.handleIngestSets)
		r.Post("/api/v1/sets/csv", s.handleIngestSetsCSV)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
