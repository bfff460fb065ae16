package models

import (
	"strings"
	"time"
)

// TaskPatch is a partial update. Only fields that are set change.
type TaskPatch struct {
	ID          string              `json:"id,omitempty"`
	Text        *string             `json:"text,omitempty"`
	Category    *string             `json:"category,omitempty"`
	Priority    *Priority           `json:"priority,omitempty"`
	DueDate     Nullable[Date]      `json:"due_date,omitzero"`
	DueTime     Nullable[string]    `json:"due_time,omitzero"`
	Completed   *bool               `json:"completed,omitempty"`
	CompletedAt Nullable[Timestamp] `json:"completed_at,omitzero"`
	Notes       Nullable[string]    `json:"notes,omitzero"`
	CreatedAt   *Timestamp          `json:"created_at,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Text == nil && p.Category == nil && p.Priority == nil &&
		!p.DueDate.Set && !p.DueTime.Set && p.Completed == nil &&
		!p.CompletedAt.Set && !p.Notes.Set
}

// Validate rejects patches that would break a Task invariant.
func (p TaskPatch) Validate() error {
	if p.Text != nil && strings.TrimSpace(*p.Text) == "" {
		return validationErr("text", "must not be empty")
	}
	return nil
}

// Apply merges p into t. created_at and id are never changed on an existing
// task. Clearing completed clears completed_at; setting it without an explicit
// completed_at stamps now.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Ptr()
	}
	if p.DueTime.Set {
		t.DueTime = p.DueTime.Ptr()
	}
	if p.Notes.Set {
		t.Notes = p.Notes.Ptr()
	}
	if p.Completed != nil {
		wasCompleted := t.Completed
		t.Completed = *p.Completed
		switch {
		case !t.Completed:
			t.CompletedAt = nil
		case p.CompletedAt.Valid:
			t.CompletedAt = p.CompletedAt.Ptr()
		case !wasCompleted || t.CompletedAt == nil:
			t.CompletedAt = TimestampPtr(now)
		}
	} else if p.CompletedAt.Set && t.Completed {
		if p.CompletedAt.Valid {
			t.CompletedAt = p.CompletedAt.Ptr()
		}
	}
	t.Normalize(now)
}

// NewTask builds a full task from a creation patch. The caller supplies id.
func (p TaskPatch) NewTask(id string, now time.Time) Task {
	t := Task{ID: id}
	if p.CreatedAt != nil {
		t.CreatedAt = *p.CreatedAt
	}
	p.Apply(&t, now)
	return t
}

// PatchFromTask produces a patch that sets every mutable field of t.
func PatchFromTask(t Task) TaskPatch {
	p := TaskPatch{
		ID:        t.ID,
		Text:      &t.Text,
		Category:  &t.Category,
		Priority:  &t.Priority,
		Completed: &t.Completed,
	}
	p.DueDate = nullableFrom(t.DueDate)
	p.DueTime = nullableFrom(t.DueTime)
	p.Notes = nullableFrom(t.Notes)
	p.CompletedAt = nullableFrom(t.CompletedAt)
	ts := t.CreatedAt
	p.CreatedAt = &ts
	return p
}

func nullableFrom[T any](v *T) Nullable[T] {
	if v == nil {
		return Null[T]()
	}
	return Some(*v)
}

func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

func PriorityPtr(p Priority) *Priority { return &p }
