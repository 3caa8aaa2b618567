// Package importer loads a catalog directory (muscle groups, exercises,
// program templates) into the database.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/planforge/internal/engine/normalize"
	"github.com/claude/planforge/internal/models"
)

// Store is the subset of the database the importer writes through.
type Store interface {
	UpsertMuscleGroup(ctx context.Context, mg models.MuscleGroup) (int, error)
	UpsertExercise(ctx context.Context, ex models.Exercise) (int, error)
	UpsertTemplate(ctx context.Context, id, name string, payload json.RawMessage) error
}

// Stats counts what one import run did.
type Stats struct {
	MuscleGroups      int
	Exercises         int
	Templates         int
	FilesSkipped      int
	FilesErrored      int
	RejectedTemplates []string
}

// Importer walks a catalog directory and upserts its contents.
type Importer struct {
	db     Store
	log    *slog.Logger
	dryRun bool
}

// New creates an Importer. In dry-run mode everything is parsed and
// validated but nothing is written.
func New(db Store, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{db: db, log: log, dryRun: dryRun}
}

// Import loads dir/muscle_groups.json, dir/exercises.json, and every
// dir/templates/*.json. Muscle groups go first so exercise files can refer
// to their ids. Missing files are skipped, not errors.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	stats := &Stats{}

	if err := imp.importMuscleGroups(ctx, filepath.Join(dir, "muscle_groups.json"), stats); err != nil {
		return stats, err
	}
	if err := imp.importExercises(ctx, filepath.Join(dir, "exercises.json"), stats); err != nil {
		return stats, err
	}
	if err := imp.importTemplates(ctx, filepath.Join(dir, "templates"), stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (imp *Importer) importMuscleGroups(ctx context.Context, path string, stats *Stats) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		imp.log.Info("no muscle group file, skipping", "path", path)
		stats.FilesSkipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var groups []models.MuscleGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, mg := range groups {
		if mg.Slug == "" || mg.Name == "" {
			return fmt.Errorf("%s: muscle group needs name and slug", path)
		}
		if !imp.dryRun {
			if _, err := imp.db.UpsertMuscleGroup(ctx, mg); err != nil {
				return err
			}
		}
		stats.MuscleGroups++
	}
	return nil
}

func (imp *Importer) importExercises(ctx context.Context, path string, stats *Stats) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		imp.log.Info("no exercise file, skipping", "path", path)
		stats.FilesSkipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var exercises []models.Exercise
	if err := json.Unmarshal(data, &exercises); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, ex := range exercises {
		if ex.Name == "" {
			return fmt.Errorf("%s: exercise without a name", path)
		}
		if !imp.dryRun {
			if _, err := imp.db.UpsertExercise(ctx, ex); err != nil {
				return err
			}
		}
		stats.Exercises++
	}
	return nil
}

func (imp *Importer) importTemplates(ctx context.Context, dir string, stats *Stats) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		imp.log.Info("no template directory, skipping", "path", dir)
		stats.FilesSkipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			stats.FilesSkipped++
			continue
		}
		path := filepath.Join(dir, entry.Name())

		payload, err := os.ReadFile(path)
		if err != nil {
			imp.log.Error("reading template", "path", path, "error", err)
			stats.FilesErrored++
			continue
		}

		id, name := templateIdentity(entry.Name(), payload)

		// A template that would never normalize is rejected here rather
		// than at generation time.
		if _, err := normalize.All([]normalize.Template{{ID: id, Payload: payload}}); err != nil {
			imp.log.Error("template rejected", "id", id, "error", err)
			stats.FilesErrored++
			stats.RejectedTemplates = append(stats.RejectedTemplates, id)
			continue
		}

		if !imp.dryRun {
			if err := imp.db.UpsertTemplate(ctx, id, name, payload); err != nil {
				return err
			}
		}
		stats.Templates++
	}
	return nil
}

// templateIdentity takes the id and display name from the payload, falling
// back to the filename stem.
func templateIdentity(filename string, payload []byte) (id, name string) {
	var meta struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	_ = json.Unmarshal(payload, &meta)

	id = meta.ID
	if id == "" {
		id = strings.TrimSuffix(filename, ".json")
	}
	name = meta.Name
	if name == "" {
		name = id
	}
	return id, name
}
