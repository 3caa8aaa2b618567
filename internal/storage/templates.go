package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claude/planforge/internal/engine/normalize"
)

// ListTemplates returns every stored program template with its raw payload.
// Normalization happens downstream so a malformed payload never blocks the
// listing.
func (db *DB) ListTemplates(ctx context.Context) ([]normalize.Template, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, payload FROM program_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	var result []normalize.Template
	for rows.Next() {
		var t normalize.Template
		var payload []byte
		if err := rows.Scan(&t.ID, &payload); err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		t.Payload = json.RawMessage(payload)
		result = append(result, t)
	}
	return result, rows.Err()
}

// GetTemplate returns one template payload by id, or pgx.ErrNoRows.
func (db *DB) GetTemplate(ctx context.Context, id string) (normalize.Template, error) {
	var t normalize.Template
	var payload []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT id, payload FROM program_templates WHERE id = $1`, id).
		Scan(&t.ID, &payload)
	if err != nil {
		return normalize.Template{}, fmt.Errorf("querying template %q: %w", id, err)
	}
	t.Payload = json.RawMessage(payload)
	return t, nil
}

// UpsertTemplate stores a template payload, replacing any prior version.
func (db *DB) UpsertTemplate(ctx context.Context, id, name string, payload json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO program_templates (id, name, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = $2, payload = $3, updated_at = NOW()
	`, id, name, []byte(payload))
	if err != nil {
		return fmt.Errorf("upserting template %q: %w", id, err)
	}
	return nil
}
