package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

var errUnavailable = errors.New("service unavailable")

// fakeRemote records calls and returns canned results. The nth fetch blocks
// on gates[n] when that gate exists.
type fakeRemote struct {
	mu       sync.Mutex
	tasks    []models.Task
	gates    []chan []models.Task
	fetches  int
	fetchErr error
	mutErr   error
	calls    []string
	lastOps  []models.BatchOperation
	nextID   int
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeRemote) FetchTasks(ctx context.Context, _ models.FetchFilter) ([]models.Task, error) {
	f.record("fetch")
	f.mu.Lock()
	n := f.fetches
	f.fetches++
	var gate chan []models.Task
	if n < len(f.gates) {
		gate = f.gates[n]
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case tasks := <-gate:
			return tasks, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeRemote) CreateTask(_ context.Context, p models.TaskPatch) (models.Task, error) {
	f.record("create")
	if f.mutErr != nil {
		return models.Task{}, f.mutErr
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.mu.Unlock()
	return p.NewTask(id, fixedNow), nil
}

func (f *fakeRemote) UpdateTask(_ context.Context, id string, p models.TaskPatch) (models.Task, error) {
	f.record("update")
	if f.mutErr != nil {
		return models.Task{}, f.mutErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			p.Apply(&f.tasks[i], fixedNow)
			return f.tasks[i], nil
		}
	}
	return models.Task{}, errors.New("not found")
}

func (f *fakeRemote) DeleteTask(_ context.Context, id string) error {
	f.record("delete")
	return f.mutErr
}

func (f *fakeRemote) BatchTasks(_ context.Context, ops []models.BatchOperation) (models.BatchResult, error) {
	f.record("batch")
	if f.mutErr != nil {
		return models.BatchResult{}, f.mutErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOps = ops
	res := models.BatchResult{Success: true, IDMapping: map[string]string{}}
	for _, op := range ops {
		if op.Type == models.BatchCreate {
			f.nextID++
			id := fmt.Sprintf("srv-%d", f.nextID)
			res.IDMapping[op.TempID] = id
			f.tasks = append(f.tasks, op.Data.NewTask(id, fixedNow))
		}
	}
	return res, nil
}

func seed() []models.Task {
	return []models.Task{
		{ID: "a", Text: "first", Category: "Work", Priority: models.PriorityHigh},
		{ID: "b", Text: "second", Category: "Home", Priority: models.PriorityLow},
		{ID: "c", Text: "third", Category: "Work", Priority: models.PriorityNormal},
	}
}

func newSession(t *testing.T, r *fakeRemote) (*Session, *[]notify.Event) {
	t.Helper()
	st := store.New(store.WithClock(func() time.Time { return fixedNow }))
	var events []notify.Event
	st.Subscribe(func(ev notify.Event) { events = append(events, ev) })
	return New(st, r), &events
}

func storeIDs(s *Session) []string {
	all := s.Store().All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.ID
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRefreshReplacesStore(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, events := newSession(t, r)

	applied, err := s.Refresh(context.Background(), models.FetchFilter{})
	if err != nil || !applied {
		t.Fatalf("Expected refresh applied, got %v %v", applied, err)
	}
	if got := storeIDs(s); !equalIDs(got, "a", "b", "c") {
		t.Errorf("Expected a,b,c, got %v", got)
	}
	if len(*events) != 1 || (*events)[0].Kind != notify.Replaced {
		t.Errorf("Expected one replaced event, got %+v", *events)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, events := newSession(t, r)
	ctx := context.Background()
	if _, err := s.Refresh(ctx, models.FetchFilter{}); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	r.fetchErr = errUnavailable
	applied, err := s.Refresh(ctx, models.FetchFilter{})
	if applied {
		t.Error("Expected failed refresh not applied")
	}
	if !errors.Is(err, models.ErrFetch) || !errors.Is(err, errUnavailable) {
		t.Errorf("Expected ErrFetch wrapping cause, got %v", err)
	}
	if got := storeIDs(s); !equalIDs(got, "a", "b", "c") {
		t.Errorf("Expected snapshot kept, got %v", got)
	}
	if len(*events) != 1 {
		t.Errorf("Expected no event from failed refresh, got %d", len(*events))
	}
}

func waitFetches(t *testing.T, r *fakeRemote, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.fetchCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d fetches", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStaleFetchDiscarded(t *testing.T) {
	r := &fakeRemote{gates: []chan []models.Task{make(chan []models.Task), make(chan []models.Task)}}
	s, events := newSession(t, r)
	ctx := context.Background()

	older := make(chan bool, 1)
	go func() {
		ok, _ := s.Refresh(ctx, models.FetchFilter{})
		older <- ok
	}()
	waitFetches(t, r, 1)
	newer := make(chan bool, 1)
	go func() {
		ok, _ := s.Refresh(ctx, models.FetchFilter{})
		newer <- ok
	}()
	waitFetches(t, r, 2)

	// The newer request completes first.
	r.gates[1] <- []models.Task{{ID: "new", Text: "new"}}
	if !<-newer {
		t.Fatal("Expected newer response applied")
	}
	r.gates[0] <- []models.Task{{ID: "old", Text: "old"}}
	if <-older {
		t.Error("Expected older response discarded")
	}
	if got := storeIDs(s); !equalIDs(got, "new") {
		t.Errorf("Expected newer data kept, got %v", got)
	}
	if len(*events) != 1 {
		t.Errorf("Expected one notification, got %d", len(*events))
	}
}

func TestStaleFetchAfterNewerApplied(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()

	// A response for sequence 4 arriving after sequence 5 was applied.
	s.applied = 5
	s.issued.Store(3)
	applied, err := s.Refresh(ctx, models.FetchFilter{})
	if err != nil || applied {
		t.Errorf("Expected stale response discarded, got %v %v", applied, err)
	}
	if s.Store().Len() != 0 {
		t.Errorf("Expected empty store, got %v", storeIDs(s))
	}
}

func TestCreateValidatesBeforeRemote(t *testing.T) {
	r := &fakeRemote{}
	s, _ := newSession(t, r)

	_, err := s.Create(context.Background(), models.TaskPatch{Text: models.StringPtr("   ")})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	_, err = s.Create(context.Background(), models.TaskPatch{})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected ErrValidation for missing text, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("Expected no remote calls, got %v", r.calls)
	}
}

func TestCreateInsertsConfirmedRecord(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})

	got, err := s.Create(ctx, models.TaskPatch{Text: models.StringPtr("new task"), Category: models.StringPtr("Study")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got.ID != "srv-1" || got.Priority != models.PriorityNormal {
		t.Errorf("unexpected created task %+v", got)
	}
	if ids := storeIDs(s); !equalIDs(ids, "a", "b", "c", "srv-1") {
		t.Errorf("Expected appended, got %v", ids)
	}

	r.mutErr = errUnavailable
	if _, err := s.Create(ctx, models.TaskPatch{Text: models.StringPtr("rejected")}); !errors.Is(err, models.ErrMutation) {
		t.Errorf("Expected ErrMutation, got %v", err)
	}
	if s.Store().Len() != 4 {
		t.Errorf("Expected nothing inserted on failure, got %v", storeIDs(s))
	}
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, events := newSession(t, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})
	*events = nil

	r.mutErr = errUnavailable
	_, err := s.Update(ctx, "b", models.TaskPatch{Text: models.StringPtr("renamed")})
	if !errors.Is(err, models.ErrMutation) {
		t.Fatalf("Expected ErrMutation, got %v", err)
	}
	got, _ := s.Store().Get("b")
	if got.Text != "second" {
		t.Errorf("Expected text rolled back, got %q", got.Text)
	}
	if ids := storeIDs(s); !equalIDs(ids, "a", "b", "c") {
		t.Errorf("Expected order kept, got %v", ids)
	}
	// Optimistic change then rollback.
	if len(*events) != 2 || (*events)[0].Kind != notify.Upserted || (*events)[1].Kind != notify.Restored {
		t.Errorf("unexpected events %+v", *events)
	}
}

func TestUpdateAppliesConfirmedRecord(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})

	got, err := s.SetCompleted(ctx, "a", true)
	if err != nil {
		t.Fatalf("SetCompleted failed: %v", err)
	}
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) {
		t.Errorf("Expected completed with timestamp, got %+v", got)
	}

	got, err = s.Update(ctx, "a", models.TaskPatch{DueDate: models.Some(models.MustDate("2024-03-20"))})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.DueDate == nil || got.DueDate.String() != "2024-03-20" || !got.Completed {
		t.Errorf("Expected merged update, got %+v", got)
	}
}

func TestUpdateValidationAndNotFound(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})
	r.calls = nil

	if _, err := s.Update(ctx, "a", models.TaskPatch{Text: models.StringPtr("")}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", models.TaskPatch{Completed: models.BoolPtr(true)}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("Expected no remote calls, got %v", r.calls)
	}
}

func TestDeleteRestoresAtOriginalPosition(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})

	r.mutErr = errUnavailable
	if err := s.Delete(ctx, "b"); !errors.Is(err, models.ErrMutation) {
		t.Fatalf("Expected ErrMutation, got %v", err)
	}
	if ids := storeIDs(s); !equalIDs(ids, "a", "b", "c") {
		t.Errorf("Expected b restored in place, got %v", ids)
	}

	r.mutErr = nil
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ids := storeIDs(s); !equalIDs(ids, "a", "c") {
		t.Errorf("Expected b removed, got %v", ids)
	}
	if err := s.Delete(ctx, "b"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// stallingUpdates holds each UpdateTask until release yields its result.
type stallingUpdates struct {
	*fakeRemote
	entered chan struct{}
	release chan error
}

func (r *stallingUpdates) UpdateTask(ctx context.Context, id string, p models.TaskPatch) (models.Task, error) {
	r.entered <- struct{}{}
	if err := <-r.release; err != nil {
		return models.Task{}, err
	}
	return r.fakeRemote.UpdateTask(ctx, id, p)
}

func TestFailedUpdateDoesNotResurrectDeletedTask(t *testing.T) {
	r := &stallingUpdates{
		fakeRemote: &fakeRemote{tasks: seed()},
		entered:    make(chan struct{}),
		release:    make(chan error),
	}
	st := store.New(store.WithClock(func() time.Time { return fixedNow }))
	s := New(st, r)
	ctx := context.Background()
	s.Refresh(ctx, models.FetchFilter{})

	done := make(chan error, 1)
	go func() {
		_, err := s.SetCompleted(ctx, "a", true)
		done <- err
	}()
	<-r.entered

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	r.release <- errUnavailable
	if err := <-done; !errors.Is(err, models.ErrMutation) {
		t.Fatalf("Expected ErrMutation, got %v", err)
	}

	if _, ok := s.Store().Get("a"); ok {
		t.Errorf("Expected deleted task to stay deleted, got %v", storeIDs(s))
	}
	if ids := storeIDs(s); !equalIDs(ids, "b", "c") {
		t.Errorf("Expected [b c], got %v", ids)
	}
}

func TestBatchAssignsTempIDsAndRefreshes(t *testing.T) {
	r := &fakeRemote{tasks: seed()}
	s, _ := newSession(t, r)
	ctx := context.Background()

	ops := []models.BatchOperation{
		{Type: models.BatchCreate, Data: models.TaskPatch{Text: models.StringPtr("batched")}},
		{Type: models.BatchUpdate, ID: "a", Data: models.TaskPatch{Completed: models.BoolPtr(true)}},
	}
	res, err := s.Batch(ctx, ops)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if r.lastOps[0].TempID == "" || r.lastOps[1].TempID != "" {
		t.Errorf("Expected temp id only on create, got %+v", r.lastOps)
	}
	if res.IDMapping[r.lastOps[0].TempID] != "srv-1" {
		t.Errorf("unexpected id mapping %v", res.IDMapping)
	}
	if ids := storeIDs(s); !equalIDs(ids, "a", "b", "c", "srv-1") {
		t.Errorf("Expected store refreshed, got %v", ids)
	}
	if last := r.calls[len(r.calls)-1]; last != "fetch" {
		t.Errorf("Expected refresh after batch, got %v", r.calls)
	}
}

func TestLogoutClearsAndDiscardsInFlight(t *testing.T) {
	r := &fakeRemote{gates: []chan []models.Task{make(chan []models.Task)}}
	s, _ := newSession(t, r)
	ctx := context.Background()
	s.Store().ReplaceAll(seed())

	done := make(chan bool, 1)
	go func() {
		ok, _ := s.Refresh(ctx, models.FetchFilter{})
		done <- ok
	}()
	waitFetches(t, r, 1)
	s.Logout()
	if s.Store().Len() != 0 {
		t.Fatalf("Expected empty store after logout, got %v", storeIDs(s))
	}

	r.gates[0] <- seed()
	if <-done {
		t.Error("Expected in-flight fetch discarded after logout")
	}
	if s.Store().Len() != 0 {
		t.Errorf("Expected store still empty, got %v", storeIDs(s))
	}
}
