// Package schedule maps week-relative session plans onto concrete calendar
// dates. The reference date ("today") is passed in by the caller so the
// engine stays clock-free.
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/claude/planforge/internal/models"
)

// fallbackOrder is the fixed day order appended after the user's preferred
// days.
var fallbackOrder = []time.Weekday{
	time.Monday, time.Wednesday, time.Friday,
	time.Tuesday, time.Thursday, time.Saturday, time.Sunday,
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// TrainingDays picks the concrete weekdays for a program: preferred days
// first (unknown names ignored), then the fallback order, deduplicated and
// truncated to daysPerWeek.
func TrainingDays(preferred []string, daysPerWeek int) []time.Weekday {
	seen := map[time.Weekday]bool{}
	var days []time.Weekday

	for _, name := range preferred {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok || seen[wd] {
			continue
		}
		seen[wd] = true
		days = append(days, wd)
	}
	for _, wd := range fallbackOrder {
		if len(days) >= daysPerWeek {
			break
		}
		if seen[wd] {
			continue
		}
		seen[wd] = true
		days = append(days, wd)
	}
	if len(days) > daysPerWeek {
		days = days[:daysPerWeek]
	}
	return days
}

// Compose assigns each session plan to the next occurrence of a training day
// within its week's window. Week 0 starts at today; later weeks start at the
// base week start plus seven days per week index.
func Compose(plans []models.SessionPlan, preferred []string, daysPerWeek int, today time.Time) []models.PlannedSession {
	days := TrainingDays(preferred, daysPerWeek)
	if len(days) == 0 {
		return nil
	}
	today = truncateToDay(today)
	base := StartOfWeek(today)

	// Group plans by week, keeping input order inside a week.
	byWeek := map[int][]models.SessionPlan{}
	var weeks []int
	for _, plan := range plans {
		if _, ok := byWeek[plan.WeekOffset]; !ok {
			weeks = append(weeks, plan.WeekOffset)
		}
		byWeek[plan.WeekOffset] = append(byWeek[plan.WeekOffset], plan)
	}
	sort.Ints(weeks)

	var out []models.PlannedSession
	for _, week := range weeks {
		windowStart := base.AddDate(0, 0, 7*week)
		if week == 0 {
			windowStart = today
		}

		// Dates of this week's training days, in chronological order.
		dates := make([]time.Time, 0, len(days))
		for _, wd := range days {
			dates = append(dates, nextWeekday(windowStart, wd))
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		for i, plan := range byWeek[week] {
			out = append(out, models.PlannedSession{
				Date:              dates[i%len(dates)],
				Label:             plan.Label,
				ProgramSessionKey: plan.ProgramSessionKey,
				TemplateID:        plan.TemplateID,
				Focus:             plan.Focus,
				WeekIndex:         week,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// WeekKey derives the program's week key: the Monday-aligned start of week
// of the earliest scheduled date, formatted as a date.
func WeekKey(sessions []models.PlannedSession) string {
	if len(sessions) == 0 {
		return ""
	}
	earliest := sessions[0].Date
	for _, s := range sessions[1:] {
		if s.Date.Before(earliest) {
			earliest = s.Date
		}
	}
	return StartOfWeek(earliest).Format("2006-01-02")
}

// StartOfWeek returns the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	t = truncateToDay(t)
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return t.AddDate(0, 0, -offset)
}

// nextWeekday returns the first occurrence of wd on or after from.
func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
