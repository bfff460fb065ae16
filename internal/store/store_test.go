package store

import (
	"errors"
	"testing"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/notify"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *[]notify.Event) {
	t.Helper()
	s := New(WithClock(func() time.Time { return fixedNow }))
	var events []notify.Event
	s.Subscribe(func(ev notify.Event) { events = append(events, ev) })
	return s, &events
}

func ids(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func assertIDs(t *testing.T, got []models.Task, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("Expected ids %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("Expected ids %v, got %v", want, g)
		}
	}
}

func assertCompletionInvariant(t *testing.T, s *Store) {
	t.Helper()
	for _, task := range s.All() {
		if task.Completed != (task.CompletedAt != nil) {
			t.Errorf("task %s: completed=%v but completed_at=%v", task.ID, task.Completed, task.CompletedAt)
		}
	}
}

func TestReplaceAllPreservesOrderAndDefaults(t *testing.T) {
	s, events := newTestStore(t)
	s.ReplaceAll([]models.Task{
		{ID: "b", Text: "second"},
		{ID: "a", Text: "first", Category: "Work", Priority: "high"},
		{ID: "c", Text: "done", Completed: true},
	})

	assertIDs(t, s.All(), "b", "a", "c")

	b, _ := s.Get("b")
	if b.Category != models.DefaultCategory {
		t.Errorf("Expected default category, got %q", b.Category)
	}
	if b.Priority != models.PriorityNormal {
		t.Errorf("Expected Normal priority, got %q", b.Priority)
	}
	a, _ := s.Get("a")
	if a.Priority != models.PriorityHigh {
		t.Errorf("Expected High priority, got %q", a.Priority)
	}
	c, _ := s.Get("c")
	if c.CompletedAt == nil || !c.CompletedAt.Equal(fixedNow) {
		t.Errorf("Expected completed_at stamped with now, got %v", c.CompletedAt)
	}
	assertCompletionInvariant(t, s)

	if len(*events) != 1 || (*events)[0].Kind != notify.Replaced {
		t.Errorf("Expected one replaced event, got %+v", *events)
	}
}

func TestUpsertCompletionScenario(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "t1", Text: "write report"}})

	got, err := s.Upsert(models.TaskPatch{ID: "t1", Completed: models.BoolPtr(true)})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) {
		t.Fatalf("Expected completed_at = now, got %v", got.CompletedAt)
	}
	if got.Text != "write report" {
		t.Errorf("Expected text unchanged, got %q", got.Text)
	}

	got, err = s.Upsert(models.TaskPatch{ID: "t1", Completed: models.BoolPtr(false)})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.CompletedAt != nil {
		t.Errorf("Expected completed_at cleared, got %v", got.CompletedAt)
	}
	assertCompletionInvariant(t, s)
}

func TestUpsertExplicitCompletedAt(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "t1", Text: "x"}})
	at := fixedNow.Add(-48 * time.Hour)

	got, _ := s.Upsert(models.TaskPatch{
		ID:          "t1",
		Completed:   models.BoolPtr(true),
		CompletedAt: models.Some(models.NewTimestamp(at)),
	})
	if !got.CompletedAt.Equal(at) {
		t.Errorf("Expected explicit completed_at %v, got %v", at, got.CompletedAt)
	}
}

func TestUpsertPartialMerge(t *testing.T) {
	s, _ := newTestStore(t)
	due := models.MustDate("2024-03-20")
	s.ReplaceAll([]models.Task{{ID: "t1", Text: "x", Category: "Work", DueDate: &due, Notes: models.StringPtr("n")}})

	got, err := s.Upsert(models.TaskPatch{ID: "t1", Category: models.StringPtr("Home"), DueDate: models.Null[models.Date]()})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Category != "Home" {
		t.Errorf("Expected category Home, got %q", got.Category)
	}
	if got.DueDate != nil {
		t.Errorf("Expected due date cleared, got %v", got.DueDate)
	}
	if got.Notes == nil || *got.Notes != "n" {
		t.Errorf("Expected notes untouched, got %v", got.Notes)
	}
}

func TestUpsertInsertAppends(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}})

	got, err := s.Upsert(models.TaskPatch{ID: "b", Text: models.StringPtr("b")})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("Expected created_at = now, got %v", got.CreatedAt)
	}
	assertIDs(t, s.All(), "a", "b")
}

func TestUpsertValidation(t *testing.T) {
	s, events := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}})
	before := len(*events)

	if _, err := s.Upsert(models.TaskPatch{ID: "new"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for insert without text, got %v", err)
	}
	if _, err := s.Upsert(models.TaskPatch{ID: "a", Text: models.StringPtr("  ")}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for blank text, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Expected store unchanged, got %d tasks", s.Len())
	}
	if len(*events) != before {
		t.Errorf("Expected no events on failed upsert")
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	s, events := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}})
	before := len(*events)

	if s.Remove("unknown-id") {
		t.Error("Expected Remove of unknown id to report false")
	}
	if s.Len() != 1 || len(*events) != before {
		t.Error("Expected no change and no event")
	}
}

func TestRemoveAndRestorePosition(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}, {ID: "b", Text: "b"}, {ID: "c", Text: "c"}})

	prev, _ := s.Get("b")
	pos := s.IndexOf("b")
	if !s.Remove("b") {
		t.Fatal("Expected b removed")
	}
	assertIDs(t, s.All(), "a", "c")

	s.Restore(prev, pos)
	assertIDs(t, s.All(), "a", "b", "c")
}

func TestRestoreReplacesInPlace(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}, {ID: "b", Text: "b"}})
	prev, _ := s.Get("a")

	s.Upsert(models.TaskPatch{ID: "a", Text: models.StringPtr("changed"), Completed: models.BoolPtr(true)})
	s.Restore(prev, -1)

	got, _ := s.Get("a")
	if got.Text != "a" || got.Completed || got.CompletedAt != nil {
		t.Errorf("Expected original record restored, got %+v", got)
	}
	assertIDs(t, s.All(), "a", "b")
}

func TestSnapshotIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	due := models.MustDate("2024-03-20")
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a", DueDate: &due}})

	all := s.All()
	all[0].Text = "mutated"
	all[0].DueDate.Day = 1

	got, _ := s.Get("a")
	if got.Text != "a" || got.DueDate.Day != 20 {
		t.Errorf("Expected store isolated from snapshot mutation, got %+v", got)
	}
	due.Day = 2
	got, _ = s.Get("a")
	if got.DueDate.Day != 20 {
		t.Errorf("Expected store isolated from input mutation, got %v", got.DueDate)
	}
}

func TestClear(t *testing.T) {
	s, events := newTestStore(t)
	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}})
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
	last := (*events)[len(*events)-1]
	if last.Kind != notify.Cleared {
		t.Errorf("Expected cleared event, got %s", last.Kind)
	}
	if last.Version != s.Version() {
		t.Errorf("Expected event version %d, got %d", s.Version(), last.Version)
	}
}

func TestSubscriberSeesAppliedState(t *testing.T) {
	s := New(WithClock(func() time.Time { return fixedNow }))
	var seen int
	s.Subscribe(func(notify.Event) { seen = s.Len() })

	s.ReplaceAll([]models.Task{{ID: "a", Text: "a"}, {ID: "b", Text: "b"}})
	if seen != 2 {
		t.Errorf("Expected subscriber to observe 2 tasks, got %d", seen)
	}
}
