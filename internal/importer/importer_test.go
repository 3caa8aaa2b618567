package importer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/claude/planforge/internal/models"
)

type fakeStore struct {
	groups    []models.MuscleGroup
	exercises []models.Exercise
	templates map[string]json.RawMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{templates: make(map[string]json.RawMessage)}
}

func (f *fakeStore) UpsertMuscleGroup(_ context.Context, mg models.MuscleGroup) (int, error) {
	f.groups = append(f.groups, mg)
	return len(f.groups), nil
}

func (f *fakeStore) UpsertExercise(_ context.Context, ex models.Exercise) (int, error) {
	f.exercises = append(f.exercises, ex)
	return len(f.exercises), nil
}

func (f *fakeStore) UpsertTemplate(_ context.Context, id, _ string, payload json.RawMessage) error {
	f.templates[id] = payload
	return nil
}

const validTemplate = `{
  "id": "upper_lower",
  "name": "Upper/Lower",
  "pools": [
    {"pool_key": "squat_pool", "selection_query": {"movement_pattern": "squat"}}
  ],
  "sessions": [
    {
      "session_key": "lower_a", "label": "Lower A", "focus": "lower",
      "slots": [
        {"slot_key": "main_squat", "pool_key": "squat_pool", "sets": 4, "rpe_hint": 8}
      ]
    }
  ]
}`

func writeCatalogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	groups := `[{"name": "Quadriceps", "slug": "quadriceps"}, {"name": "Chest", "slug": "chest"}]`
	if err := os.WriteFile(filepath.Join(dir, "muscle_groups.json"), []byte(groups), 0o644); err != nil {
		t.Fatal(err)
	}

	exercises := `[{"name": "Back Squat", "movement_pattern": "squat", "equipment": ["barbell"], "primary_muscle_ids": [1]}]`
	if err := os.WriteFile(filepath.Join(dir, "exercises.json"), []byte(exercises), 0o644); err != nil {
		t.Fatal(err)
	}

	tmplDir := filepath.Join(dir, "templates")
	if err := os.Mkdir(tmplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmplDir, "upper_lower.json"), []byte(validTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// TestImport verifies a full catalog directory is loaded.
func TestImport(t *testing.T) {
	store := newFakeStore()
	imp := New(store, slog.Default(), false)

	stats, err := imp.Import(context.Background(), writeCatalogDir(t))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if stats.MuscleGroups != 2 {
		t.Errorf("muscle groups = %d, want 2", stats.MuscleGroups)
	}
	if stats.Exercises != 1 {
		t.Errorf("exercises = %d, want 1", stats.Exercises)
	}
	if stats.Templates != 1 {
		t.Errorf("templates = %d, want 1", stats.Templates)
	}
	if _, ok := store.templates["upper_lower"]; !ok {
		t.Error("template upper_lower not stored")
	}
}

// TestImportDryRun verifies nothing is written in dry-run mode but stats
// still count.
func TestImportDryRun(t *testing.T) {
	store := newFakeStore()
	imp := New(store, slog.Default(), true)

	stats, err := imp.Import(context.Background(), writeCatalogDir(t))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if stats.Templates != 1 || stats.Exercises != 1 || stats.MuscleGroups != 2 {
		t.Errorf("stats = %+v, want counts despite dry run", stats)
	}
	if len(store.groups) != 0 || len(store.exercises) != 0 || len(store.templates) != 0 {
		t.Error("dry run wrote to the store")
	}
}

// TestImportMissingFiles verifies missing catalog files are skipped quietly.
func TestImportMissingFiles(t *testing.T) {
	store := newFakeStore()
	imp := New(store, slog.Default(), false)

	stats, err := imp.Import(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.FilesSkipped != 3 {
		t.Errorf("files skipped = %d, want 3", stats.FilesSkipped)
	}
}

// TestImportRejectsInvalidTemplate verifies a template that fails validation
// is recorded but does not abort the run.
func TestImportRejectsInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	tmplDir := filepath.Join(dir, "templates")
	if err := os.Mkdir(tmplDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// A pool-based template whose slot points at a pool that does not exist.
	bad := `{
	  "id": "broken",
	  "pools": [{"pool_key": "squat_pool", "selection_query": {"movement_pattern": "squat"}}],
	  "sessions": [
	    {"session_key": "a", "label": "A", "slots": [{"slot_key": "s1", "pool_key": "missing_pool", "sets": 3}]}
	  ]
	}`
	if err := os.WriteFile(filepath.Join(tmplDir, "broken.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmplDir, "upper_lower.json"), []byte(validTemplate), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	imp := New(store, slog.Default(), false)
	stats, err := imp.Import(context.Background(), dir)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if stats.Templates != 1 {
		t.Errorf("templates = %d, want 1", stats.Templates)
	}
	if stats.FilesErrored != 1 {
		t.Errorf("files errored = %d, want 1", stats.FilesErrored)
	}
	if len(stats.RejectedTemplates) != 1 || stats.RejectedTemplates[0] != "broken" {
		t.Errorf("rejected = %v, want [broken]", stats.RejectedTemplates)
	}
	if _, ok := store.templates["broken"]; ok {
		t.Error("invalid template was stored")
	}
}

// TestTemplateIdentity verifies payload fields win over the filename.
func TestTemplateIdentity(t *testing.T) {
	id, name := templateIdentity("file.json", []byte(`{"id": "real_id", "name": "Real Name"}`))
	if id != "real_id" || name != "Real Name" {
		t.Errorf("identity = %q/%q, want real_id/Real Name", id, name)
	}

	id, name = templateIdentity("fallback.json", []byte(`{}`))
	if id != "fallback" || name != "fallback" {
		t.Errorf("identity = %q/%q, want fallback/fallback", id, name)
	}
}
