package mcp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/planforge/internal/models"
)

// splitCSV turns a comma-separated parameter into trimmed non-empty parts.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// planRange returns start/end defaulting to the next 28 days.
func planRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = time.Now().AddDate(0, 0, -1)
	}

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = start.AddDate(0, 0, 28)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolPreviewProgram = mcp.NewTool("preview_program",
	mcp.WithDescription("Preview a training program without activating it. Returns the deterministic seed, projected weekly sets per muscle group, recovery load, and warnings."),
	mcp.WithString("template_ids", mcp.Required(), mcp.Description("Comma-separated program template IDs (e.g. 'upper_lower' or 'push_a,pull_a')")),
	mcp.WithString("days_per_week", mcp.Required(), mcp.Description("Training days per week (2-5)")),
	mcp.WithString("fatigue", mcp.Description("Fatigue profile. Defaults to 'medium'."), mcp.Enum("low", "medium", "high")),
	mcp.WithString("preferred_days", mcp.Description("Comma-separated weekday names (e.g. 'monday,thursday'). Defaults to an even spread.")),
	mcp.WithString("equipment", mcp.Description("Comma-separated equipment profile (e.g. 'barbell,dumbbell' or 'commercial-gym'). Empty means everything is available.")),
	mcp.WithString("session_minutes", mcp.Description("Maximum session length in minutes (20-180). Empty means unconstrained.")),
)

var toolGetActiveProgram = mcp.NewTool("get_active_program",
	mcp.WithDescription("Get the user's active training program: seed, plan ID, week cursor, schedule, per-week session plans, and decision log."),
)

var toolAdaptNextWeek = mcp.NewTool("adapt_next_week",
	mcp.WithDescription("Run the weekly adaptation: merge logged performance, auto-regulate RPE targets, apply fatigue deloads and pain bans, and regenerate the next week of the active program."),
)

var toolGetSchedule = mcp.NewTool("get_schedule",
	mcp.WithDescription("Query planned training sessions in a date range."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to today.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to 4 weeks after start.")),
)

var toolGetWeekRules = mcp.NewTool("get_week_rules",
	mcp.WithDescription("Get the active program's week-by-week progression rules (volume scaling, RPE deltas, deloads) and the current week cursor."),
)

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List catalog exercises with movement patterns, equipment, muscle groups, and tags."),
	mcp.WithString("tag", mcp.Description("Filter by tag (e.g. 'compound', 'unilateral')")),
	mcp.WithString("equipment", mcp.Description("Filter by equipment (e.g. 'barbell')")),
)

// --- Tool handlers ---

func (h *handlers) previewProgram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateIDs, err := req.RequireString("template_ids")
	if err != nil {
		return mcp.NewToolResultError("template_ids parameter is required"), nil
	}
	daysStr, err := req.RequireString("days_per_week")
	if err != nil {
		return mcp.NewToolResultError("days_per_week parameter is required"), nil
	}
	days, err := strconv.Atoi(strings.TrimSpace(daysStr))
	if err != nil {
		return mcp.NewToolResultError("days_per_week must be a number"), nil
	}

	minutes := 0
	if minStr := req.GetString("session_minutes", ""); minStr != "" {
		minutes, err = strconv.Atoi(strings.TrimSpace(minStr))
		if err != nil {
			return mcp.NewToolResultError("session_minutes must be a number"), nil
		}
	}

	genReq := models.GenerationRequest{
		FatigueProfile:    req.GetString("fatigue", "medium"),
		DaysPerWeek:       days,
		MaxSessionMinutes: minutes,
		PreferredDays:     splitCSV(req.GetString("preferred_days", "")),
		EquipmentProfile:  splitCSV(req.GetString("equipment", "")),
	}
	for _, id := range splitCSV(templateIDs) {
		genReq.SelectedPrograms = append(genReq.SelectedPrograms, models.ProgramSelection{TemplateID: id})
	}

	uid := UserIDFromContext(ctx)
	preview, err := h.ds.PreviewProgram(ctx, uid, genReq)
	if err != nil {
		h.log.Error("mcp preview_program", "error", err)
		return mcp.NewToolResultError("preview failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(preview)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getActiveProgram(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	snap, err := h.ds.ActiveProgram(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_active_program", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(snap)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) adaptNextWeek(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	outcome, err := h.ds.AdaptNextWeek(ctx, uid)
	if err != nil {
		h.log.Error("mcp adapt_next_week", "error", err)
		return mcp.NewToolResultError("adaptation failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(outcome)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := planRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	sessions, err := h.ds.PlannedSessions(ctx, uid, start, end)
	if err != nil {
		h.log.Error("mcp get_schedule", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWeekRules(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	snap, err := h.ds.ActiveProgram(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_week_rules", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"week_cursor":   snap.WeekCursor,
		"week_key":      snap.WeekKey,
		"restart_count": snap.RestartCount,
		"week_rules":    snap.WeekRules,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercises, err := h.ds.ListExercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	tag := req.GetString("tag", "")
	equipment := req.GetString("equipment", "")
	if tag != "" || equipment != "" {
		var filtered []models.Exercise
		for _, ex := range exercises {
			if tag != "" && !ex.HasTag(tag) {
				continue
			}
			if equipment != "" && !hasEquipment(ex, equipment) {
				continue
			}
			filtered = append(filtered, ex)
		}
		exercises = filtered
	}

	result, err := mcp.NewToolResultJSON(exercises)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func hasEquipment(ex models.Exercise, equipment string) bool {
	for _, e := range ex.Equipment {
		if e == equipment {
			return true
		}
	}
	return false
}
