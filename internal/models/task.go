package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultCategory is substituted for an absent or empty category.
const DefaultCategory = "Other"

// Priority is the urgency label of a task. Unknown labels are preserved.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityNormal Priority = "Normal"
	PriorityLow    Priority = "Low"
)

// priorityAliases maps lower-cased inbound labels (including the labels the
// legacy Chinese-language clients send) to canonical values.
var priorityAliases = map[string]Priority{
	"high":   PriorityHigh,
	"高":      PriorityHigh,
	"medium": PriorityMedium,
	"中":      PriorityMedium,
	"normal": PriorityNormal,
	"正常":     PriorityNormal,
	"low":    PriorityLow,
	"低":      PriorityLow,
}

// ParsePriority normalises s. Empty input yields PriorityNormal.
func ParsePriority(s string) Priority {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityNormal
	}
	if p, ok := priorityAliases[strings.ToLower(s)]; ok {
		return p
	}
	return Priority(s)
}

// Rank orders High < Medium < Normal < Low; anything else ranks last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 99
}

// Task is the single entity the core manages.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Category    string     `json:"category"`
	Priority    Priority   `json:"priority"`
	DueDate     *Date      `json:"due_date"`
	DueTime     *string    `json:"due_time"`
	Completed   bool       `json:"completed"`
	CompletedAt *Timestamp `json:"completed_at"`
	CreatedAt   Timestamp  `json:"created_at"`
	Notes       *string    `json:"notes,omitempty"`
}

// UnmarshalJSON reads an empty due_date ("") as no due date.
func (t *Task) UnmarshalJSON(b []byte) error {
	type plain Task
	if err := json.Unmarshal(b, (*plain)(t)); err != nil {
		return err
	}
	if t.DueDate != nil && t.DueDate.IsZero() {
		t.DueDate = nil
	}
	return nil
}

// Normalize applies field defaults and repairs the completed/completed_at
// pairing. now is used when a completed task lacks a completion time.
func (t *Task) Normalize(now time.Time) {
	t.Text = strings.TrimSpace(t.Text)
	if strings.TrimSpace(t.Category) == "" {
		t.Category = DefaultCategory
	}
	t.Priority = ParsePriority(string(t.Priority))
	if t.DueDate != nil && t.DueDate.IsZero() {
		t.DueDate = nil
	}
	if t.Completed {
		if t.CompletedAt == nil || t.CompletedAt.IsZero() {
			t.CompletedAt = TimestampPtr(now)
		}
	} else {
		t.CompletedAt = nil
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = NewTimestamp(now)
	}
}

// Validate reports locally detectable problems.
func (t Task) Validate() error {
	if t.ID == "" {
		return validationErr("id", "must not be empty")
	}
	if strings.TrimSpace(t.Text) == "" {
		return validationErr("text", "must not be empty")
	}
	return nil
}

// Clone returns a deep copy so callers can't alias pointer fields.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.DueTime != nil {
		s := *t.DueTime
		c.DueTime = &s
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.Notes != nil {
		s := *t.Notes
		c.Notes = &s
	}
	return c
}

// DueOn reports whether the task is due on d.
func (t Task) DueOn(d Date) bool {
	return t.DueDate != nil && t.DueDate.Compare(d) == 0
}
