// Package views composes filter/sort projections and aggregates into the view
// models presentation surfaces consume. Nothing here keeps state between
// calls: Projector methods read the current store snapshot each time.
package views

import (
	"strings"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/query"
	"taskboard/internal/stats"
	"taskboard/internal/store"
)

// Range is the horizon of the upcoming view.
type Range string

const (
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// ParseRange maps user input to a Range, defaulting to a week.
func ParseRange(s string) Range {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case RangeMonth, RangeAll:
		return r
	}
	return RangeWeek
}

// TodayView lists tasks due today, pending ones first.
type TodayView struct {
	Date      models.Date   `json:"date"`
	Tasks     []models.Task `json:"tasks"`
	Pending   []models.Task `json:"pending"`
	Completed []models.Task `json:"completed"`
}

// DateGroup is the upcoming tasks due on one day.
type DateGroup struct {
	Date    models.Date   `json:"date"`
	Key     string        `json:"key"`
	Weekday string        `json:"weekday"`
	IsToday bool          `json:"is_today"`
	Tasks   []models.Task `json:"tasks"`
}

// CalendarMonth marks the days of the current month that have a task due.
type CalendarMonth struct {
	Year        int           `json:"year"`
	Month       time.Month    `json:"month"`
	FirstDay    models.Date   `json:"first_day"`
	DaysInMonth int           `json:"days_in_month"`
	Marked      []models.Date `json:"marked"`
}

// IsMarked reports whether d is highlighted.
func (c CalendarMonth) IsMarked(d models.Date) bool {
	for _, m := range c.Marked {
		if m == d {
			return true
		}
	}
	return false
}

// UpcomingView groups pending tasks due within the range by day.
type UpcomingView struct {
	Range    Range         `json:"range"`
	From     models.Date   `json:"from"`
	To       *models.Date  `json:"to"`
	Groups   []DateGroup   `json:"groups"`
	Calendar CalendarMonth `json:"calendar"`
}

// BoardColumn holds one category's tasks.
type BoardColumn struct {
	Category string        `json:"category"`
	Count    int           `json:"count"`
	Tasks    []models.Task `json:"tasks"`
}

// BuildToday projects the tasks due on now's calendar day, by due date.
func BuildToday(tasks []models.Task, now time.Time) TodayView {
	today := models.DateOf(now)
	due := query.Project(tasks, query.Filter{DueOn: &today}, query.SortDateAsc)
	v := TodayView{Date: today, Tasks: due, Pending: []models.Task{}, Completed: []models.Task{}}
	for _, t := range due {
		if t.Completed {
			v.Completed = append(v.Completed, t)
		} else {
			v.Pending = append(v.Pending, t)
		}
	}
	return v
}

// BuildAllTasks filters by status and orders by key.
func BuildAllTasks(tasks []models.Task, status query.Status, key query.SortKey) []models.Task {
	return query.Project(tasks, query.Filter{Status: status}, key)
}

// BuildUpcoming selects pending tasks due in [today, today+range], groups
// them by ISO date with ascending keys, and marks the current month's days.
func BuildUpcoming(tasks []models.Task, now time.Time, r Range) UpcomingView {
	today := models.DateOf(now)
	f := query.Filter{Status: query.StatusPending, DueFrom: &today}
	var to *models.Date
	switch r {
	case RangeWeek:
		end := today.AddDays(7)
		to = &end
	case RangeMonth:
		end := today.AddMonths(1)
		to = &end
	default:
		r = RangeAll
	}
	f.DueTo = to

	v := UpcomingView{Range: r, From: today, To: to, Groups: []DateGroup{}}
	for _, t := range query.Project(tasks, f, query.SortDateAsc) {
		d := *t.DueDate
		if n := len(v.Groups); n > 0 && v.Groups[n-1].Date == d {
			v.Groups[n-1].Tasks = append(v.Groups[n-1].Tasks, t)
			continue
		}
		v.Groups = append(v.Groups, DateGroup{
			Date:    d,
			Key:     d.String(),
			Weekday: d.Weekday().String(),
			IsToday: d == today,
			Tasks:   []models.Task{t},
		})
	}
	v.Calendar = buildCalendar(today, v.Groups)
	return v
}

func buildCalendar(today models.Date, groups []DateGroup) CalendarMonth {
	first := models.Date{Year: today.Year, Month: today.Month, Day: 1}
	c := CalendarMonth{
		Year:        today.Year,
		Month:       today.Month,
		FirstDay:    first,
		DaysInMonth: first.AddMonths(1).AddDays(-1).Day,
		Marked:      []models.Date{},
	}
	for _, g := range groups {
		if g.Date.Year == c.Year && g.Date.Month == c.Month {
			c.Marked = append(c.Marked, g.Date)
		}
	}
	return c
}

// BuildBoard groups the all-tasks projection by category. Columns appear in
// order of first occurrence and keep the projection's order within.
func BuildBoard(tasks []models.Task, status query.Status, key query.SortKey) []BoardColumn {
	cols := []BoardColumn{}
	pos := make(map[string]int)
	for _, t := range BuildAllTasks(tasks, status, key) {
		i, ok := pos[t.Category]
		if !ok {
			i = len(cols)
			pos[t.Category] = i
			cols = append(cols, BoardColumn{Category: t.Category})
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
		cols[i].Count++
	}
	return cols
}

// Projector reads the store on every call.
type Projector struct {
	store *store.Store
	now   func() time.Time
}

// NewProjector uses the store's clock unless now is given.
func NewProjector(s *store.Store, now func() time.Time) *Projector {
	if now == nil {
		now = s.Now
	}
	return &Projector{store: s, now: now}
}

func (p *Projector) Today() TodayView {
	return BuildToday(p.store.All(), p.now())
}

func (p *Projector) AllTasks(status query.Status, key query.SortKey) []models.Task {
	return BuildAllTasks(p.store.All(), status, key)
}

func (p *Projector) Upcoming(r Range) UpcomingView {
	return BuildUpcoming(p.store.All(), p.now(), r)
}

func (p *Projector) Board(status query.Status, key query.SortKey) []BoardColumn {
	return BuildBoard(p.store.All(), status, key)
}

func (p *Projector) Dashboard() stats.Dashboard {
	return stats.Compute(p.store.All(), p.now())
}

// Analytics returns the range analytics series, which is currently a stub.
func (p *Projector) Analytics(days int) stats.AnalyticsTrend {
	return stats.CompletionTrend(p.store.All(), p.now(), days)
}
