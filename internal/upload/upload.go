// Package upload pushes a local template directory to a remote PlanForge
// server, skipping files that have not changed since the last run.
package upload

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/planforge/internal/engine/normalize"
)

// Stats counts what one upload run did.
type Stats struct {
	FilesTotal    int
	FilesPushed   int
	FilesSkipped  int
	FilesErrored  int
	RejectedFiles []string
}

// Uploader walks a template directory and pushes each valid template.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	dryRun bool
	log    *slog.Logger
}

// New creates an Uploader. client may be nil in dry-run mode.
func New(client *Client, state *StateDB, dir string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{client: client, state: state, dir: dir, dryRun: dryRun, log: log}
}

// Run validates and pushes every *.json template under the directory.
// Invalid templates are reported and skipped; push failures stop the run.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	entries, err := os.ReadDir(u.dir)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		stats.FilesTotal++
		path := filepath.Join(u.dir, entry.Name())

		payload, err := os.ReadFile(path)
		if err != nil {
			u.log.Error("reading template", "path", path, "error", err)
			stats.FilesErrored++
			continue
		}

		id := templateID(entry.Name(), payload)
		if _, err := normalize.All([]normalize.Template{{ID: id, Payload: payload}}); err != nil {
			u.log.Error("template invalid, not pushing", "id", id, "error", err)
			stats.FilesErrored++
			stats.RejectedFiles = append(stats.RejectedFiles, entry.Name())
			continue
		}

		hash := HashPayload(payload)
		pushed, err := u.state.IsPushed(id, hash)
		if err != nil {
			return stats, err
		}
		if pushed {
			stats.FilesSkipped++
			continue
		}

		if u.dryRun {
			u.log.Info("would push template", "id", id)
			stats.FilesPushed++
			continue
		}

		if err := u.client.PutTemplate(ctx, id, payload); err != nil {
			return stats, err
		}
		if err := u.state.MarkPushed(id, hash); err != nil {
			return stats, err
		}
		u.log.Info("pushed template", "id", id)
		stats.FilesPushed++
	}

	return stats, nil
}

func templateID(filename string, payload []byte) string {
	var meta struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &meta)
	if meta.ID != "" {
		return meta.ID
	}
	return strings.TrimSuffix(filename, ".json")
}
