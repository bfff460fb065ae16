package query

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"taskboard/internal/models"
)

// Status selects tasks by completion.
type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// SortKey names an ordering. The empty key keeps collection order.
type SortKey string

const (
	SortNone     SortKey = ""
	SortDateAsc  SortKey = "date-asc"
	SortDateDesc SortKey = "date-desc"
	SortPriority SortKey = "priority"
	SortCategory SortKey = "category"
)

// ParseStatus maps user input to a Status; unknown values select everything.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending, "incomplete":
		return StatusPending
	case StatusCompleted:
		return StatusCompleted
	}
	return StatusAll
}

// ParseSortKey maps user input to a SortKey; unknown values keep collection order.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortDateAsc, SortDateDesc, SortPriority, SortCategory:
		return k
	}
	return SortNone
}

// Filter is a conjunction of predicates. Zero fields impose no constraint.
// Any due-date constraint excludes tasks without a due date.
type Filter struct {
	Status   Status
	Category string
	DueOn    *models.Date
	DueFrom  *models.Date
	DueTo    *models.Date
	Text     string
}

// Match reports whether t satisfies every set predicate.
func (f Filter) Match(t models.Task) bool {
	switch f.Status {
	case StatusPending:
		if t.Completed {
			return false
		}
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.DueOn != nil || f.DueFrom != nil || f.DueTo != nil {
		if t.DueDate == nil {
			return false
		}
		if f.DueOn != nil && t.DueDate.Compare(*f.DueOn) != 0 {
			return false
		}
		if f.DueFrom != nil && t.DueDate.Before(*f.DueFrom) {
			return false
		}
		if f.DueTo != nil && t.DueDate.After(*f.DueTo) {
			return false
		}
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(t.Text), strings.ToLower(f.Text)) {
		return false
	}
	return true
}

// Project returns the tasks matching f ordered by key. The sort is stable and
// tasks is never modified.
func Project(tasks []models.Task, f Filter, key SortKey) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	Sort(out, key)
	return out
}

// Sort orders tasks in place by key, stably.
func Sort(tasks []models.Task, key SortKey) {
	if cmp := comparator(key); cmp != nil {
		slices.SortStableFunc(tasks, cmp)
	}
}

func comparator(key SortKey) func(a, b models.Task) int {
	switch key {
	case SortDateAsc:
		return func(a, b models.Task) int { return compareDue(a, b, false) }
	case SortDateDesc:
		return func(a, b models.Task) int { return compareDue(a, b, true) }
	case SortPriority:
		return func(a, b models.Task) int { return a.Priority.Rank() - b.Priority.Rank() }
	case SortCategory:
		// Collators keep internal buffers; one per sort call.
		c := collate.New(language.Und, collate.IgnoreCase)
		return func(a, b models.Task) int {
			return c.CompareString(a.Category, b.Category)
		}
	}
	return nil
}

// compareDue puts tasks without a due date last regardless of direction.
func compareDue(a, b models.Task, desc bool) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	}
	c := a.DueDate.Compare(*b.DueDate)
	if desc {
		return -c
	}
	return c
}
