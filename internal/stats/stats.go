// Package stats derives dashboard aggregates from a task snapshot. Every
// function is pure: it takes the snapshot and a reference time and never
// reads the clock. Calendar days are evaluated in now's location.
package stats

import (
	"math"
	"time"

	"taskboard/internal/models"
)

const (
	// UrgentLimit caps the urgent list.
	UrgentLimit = 5
	// RecentWindow is the look-back for recently completed tasks.
	RecentWindow = 7 * 24 * time.Hour
	// CompletionWindowDays is the due-date window of the completion rate.
	CompletionWindowDays = 30
	// TrendDays is the length of the weekly trend.
	TrendDays = 7
)

// Dashboard bundles every aggregate shown on the overview page.
type Dashboard struct {
	TodayCount             int             `json:"today_count"`
	WeekCount              int             `json:"week_count"`
	RecentlyCompletedCount int             `json:"recently_completed_count"`
	CompletionRate30d      int             `json:"completion_rate_30d"`
	Urgent                 []models.Task   `json:"urgent_list"`
	CategoryHistogram      map[string]int  `json:"category_histogram"`
	WeeklyTrend            []TrendDay      `json:"weekly_trend"`
	Categories             []CategoryStats `json:"category_breakdown"`
}

// TrendDay is one bucket of the weekly trend.
type TrendDay struct {
	Date      models.Date `json:"date"`
	Weekday   string      `json:"weekday"`
	Completed int         `json:"completed"`
	Created   int         `json:"created"`
}

// Compute evaluates every aggregate against tasks at now.
func Compute(tasks []models.Task, now time.Time) Dashboard {
	return Dashboard{
		TodayCount:             TodayCount(tasks, now),
		WeekCount:              WeekCount(tasks, now),
		RecentlyCompletedCount: RecentlyCompletedCount(tasks, now),
		CompletionRate30d:      CompletionRate30d(tasks, now),
		Urgent:                 Urgent(tasks),
		CategoryHistogram:      CategoryHistogram(tasks),
		WeeklyTrend:            WeeklyTrend(tasks, now),
		Categories:             CategoryBreakdown(tasks),
	}
}

// TodayCount counts pending tasks due today.
func TodayCount(tasks []models.Task, now time.Time) int {
	today := models.DateOf(now)
	n := 0
	for _, t := range tasks {
		if !t.Completed && t.DueOn(today) {
			n++
		}
	}
	return n
}

// WeekRange returns the Sunday-to-Saturday week containing now.
func WeekRange(now time.Time) (start, end models.Date) {
	today := models.DateOf(now)
	start = today.AddDays(-int(today.Weekday()))
	return start, start.AddDays(6)
}

// WeekCount counts pending tasks due in the current calendar week.
func WeekCount(tasks []models.Task, now time.Time) int {
	start, end := WeekRange(now)
	n := 0
	for _, t := range tasks {
		if !t.Completed && t.DueDate != nil && t.DueDate.Between(start, end) {
			n++
		}
	}
	return n
}

// RecentlyCompletedCount counts tasks with completed_at >= now-7d.
func RecentlyCompletedCount(tasks []models.Task, now time.Time) int {
	cutoff := now.Add(-RecentWindow)
	n := 0
	for _, t := range tasks {
		if t.Completed && t.CompletedAt != nil && !t.CompletedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// CompletionRate30d is the rounded percentage of completed tasks among those
// due in [today-30d, today]. It is 0 when no task is due in the window.
func CompletionRate30d(tasks []models.Task, now time.Time) int {
	today := models.DateOf(now)
	from := today.AddDays(-CompletionWindowDays)
	total, done := 0, 0
	for _, t := range tasks {
		if t.DueDate == nil || !t.DueDate.Between(from, today) {
			continue
		}
		total++
		if t.Completed {
			done++
		}
	}
	return percent(done, total)
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

// Urgent lists pending High-priority tasks in collection order, at most UrgentLimit.
func Urgent(tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, UrgentLimit)
	for _, t := range tasks {
		if t.Priority == models.PriorityHigh && !t.Completed {
			out = append(out, t)
			if len(out) == UrgentLimit {
				break
			}
		}
	}
	return out
}

// CategoryHistogram counts tasks per category over the whole snapshot.
func CategoryHistogram(tasks []models.Task) map[string]int {
	h := make(map[string]int)
	for _, t := range tasks {
		h[categoryOf(t)]++
	}
	return h
}

func categoryOf(t models.Task) string {
	if t.Category == "" {
		return models.DefaultCategory
	}
	return t.Category
}

// WeeklyTrend returns the trailing seven days, oldest first, with the number
// of tasks completed and created on each day.
func WeeklyTrend(tasks []models.Task, now time.Time) []TrendDay {
	loc := now.Location()
	today := models.DateOf(now)
	days := make([]TrendDay, TrendDays)
	index := make(map[models.Date]int, TrendDays)
	for i := range days {
		d := today.AddDays(i - (TrendDays - 1))
		days[i] = TrendDay{Date: d, Weekday: d.Weekday().String()}
		index[d] = i
	}
	for _, t := range tasks {
		if t.Completed && t.CompletedAt != nil {
			if i, ok := index[models.DateOf(t.CompletedAt.In(loc))]; ok {
				days[i].Completed++
			}
		}
		if !t.CreatedAt.IsZero() {
			if i, ok := index[models.DateOf(t.CreatedAt.In(loc))]; ok {
				days[i].Created++
			}
		}
	}
	return days
}

// CategoryStats is one row of the per-category breakdown.
type CategoryStats struct {
	Category       string `json:"category"`
	Pending        int    `json:"pending"`
	Completed      int    `json:"completed"`
	CompletionRate int    `json:"completion_rate"`
}

// CategoryBreakdown reports pending and completed counts per category in
// order of first appearance.
func CategoryBreakdown(tasks []models.Task) []CategoryStats {
	var out []CategoryStats
	pos := make(map[string]int)
	for _, t := range tasks {
		c := categoryOf(t)
		i, ok := pos[c]
		if !ok {
			i = len(out)
			pos[c] = i
			out = append(out, CategoryStats{Category: c})
		}
		if t.Completed {
			out[i].Completed++
		} else {
			out[i].Pending++
		}
	}
	for i := range out {
		out[i].CompletionRate = percent(out[i].Completed, out[i].Pending+out[i].Completed)
	}
	return out
}
