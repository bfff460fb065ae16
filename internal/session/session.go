// Package session connects the local task store to the remote task service.
// Mutations are applied optimistically and rolled back when the service
// rejects them; fetches are sequenced so a slow, stale response can't
// overwrite a newer one.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"taskboard/internal/models"
	"taskboard/internal/store"
	"taskboard/pkg/logger"
)

// Remote is the task service contract.
type Remote interface {
	FetchTasks(ctx context.Context, f models.FetchFilter) ([]models.Task, error)
	CreateTask(ctx context.Context, p models.TaskPatch) (models.Task, error)
	UpdateTask(ctx context.Context, id string, p models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	BatchTasks(ctx context.Context, ops []models.BatchOperation) (models.BatchResult, error)
}

// Session owns the store's write path. Completion handlers hold mu, so each
// applies atomically with respect to the store. Store subscribers run while
// mu is held and must not call back into the Session synchronously.
type Session struct {
	store  *store.Store
	remote Remote

	mu      sync.Mutex
	issued  atomic.Uint64
	applied uint64
}

func New(s *store.Store, r Remote) *Session {
	return &Session{store: s, remote: r}
}

// Store returns the underlying store.
func (s *Session) Store() *store.Store { return s.store }

// Remote returns the task service the session talks to.
func (s *Session) Remote() Remote { return s.remote }

// Refresh fetches tasks and replaces the store's contents. On failure the
// store keeps its last good snapshot. A response older than the last applied
// one is discarded and reported as not applied.
func (s *Session) Refresh(ctx context.Context, f models.FetchFilter) (applied bool, err error) {
	seq := s.issued.Add(1)
	tasks, err := s.remote.FetchTasks(ctx, f)
	if err != nil {
		logger.Error(ctx, "Fetch tasks failed", "error", err, "seq", seq)
		return false, models.NewOpError("fetch", "", models.ErrFetch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		logger.Debug(ctx, "Discarding stale fetch response", "seq", seq, "applied", s.applied)
		return false, nil
	}
	s.applied = seq
	s.store.ReplaceAll(tasks)
	logger.Debug(ctx, "Store refreshed", "seq", seq, "count", len(tasks))
	return true, nil
}

// Create validates the draft locally, creates it remotely and inserts the
// confirmed record. Nothing is inserted if the service rejects it.
func (s *Session) Create(ctx context.Context, draft models.TaskPatch) (models.Task, error) {
	if draft.Text == nil || strings.TrimSpace(*draft.Text) == "" {
		return models.Task{}, models.NewOpError("create", "", models.ErrValidation,
			&models.FieldError{Field: "text", Reason: "must not be empty"})
	}
	if err := draft.Validate(); err != nil {
		return models.Task{}, models.NewOpError("create", "", models.ErrValidation, err)
	}
	draft.ID = ""
	created, err := s.remote.CreateTask(ctx, draft)
	if err != nil {
		logger.Error(ctx, "Create task failed", "error", err)
		return models.Task{}, models.NewOpError("create", "", models.ErrMutation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Restore(created, -1)
	t, _ := s.store.Get(created.ID)
	return t, nil
}

// Update merges patch into task id locally, then remotely. If the service
// rejects the change the previous record is restored before returning.
func (s *Session) Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	if err := patch.Validate(); err != nil {
		return models.Task{}, models.NewOpError("update", id, models.ErrValidation, err)
	}
	patch.ID = id

	s.mu.Lock()
	prev, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return models.Task{}, models.NewOpError("update", id, models.ErrNotFound, nil)
	}
	if _, err := s.store.Upsert(patch); err != nil {
		s.mu.Unlock()
		return models.Task{}, models.NewOpError("update", id, models.ErrValidation, err)
	}
	s.mu.Unlock()

	confirmed, err := s.remote.UpdateTask(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logger.Error(ctx, "Update task failed; reverting", "error", err, "id", id)
		// A delete that landed meanwhile wins.
		if _, still := s.store.Get(id); still {
			s.store.Restore(prev, -1)
		}
		return models.Task{}, models.NewOpError("update", id, models.ErrMutation, err)
	}
	if _, still := s.store.Get(id); still {
		s.store.Restore(confirmed, -1)
	}
	t, _ := s.store.Get(id)
	return t, nil
}

// SetCompleted is shorthand for toggling completion.
func (s *Session) SetCompleted(ctx context.Context, id string, done bool) (models.Task, error) {
	return s.Update(ctx, id, models.TaskPatch{Completed: models.BoolPtr(done)})
}

// Delete removes task id locally, then remotely. If the service rejects the
// deletion the record is restored at its previous position.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return models.NewOpError("delete", id, models.ErrNotFound, nil)
	}
	pos := s.store.IndexOf(id)
	s.store.Remove(id)
	s.mu.Unlock()

	if err := s.remote.DeleteTask(ctx, id); err != nil {
		logger.Error(ctx, "Delete task failed; restoring", "error", err, "id", id)
		s.mu.Lock()
		s.store.Restore(prev, pos)
		s.mu.Unlock()
		return models.NewOpError("delete", id, models.ErrMutation, err)
	}
	return nil
}

// Batch forwards operations to the service and then refreshes the whole
// collection. Creates without a temp id get one so the caller can map results.
func (s *Session) Batch(ctx context.Context, ops []models.BatchOperation) (models.BatchResult, error) {
	for i := range ops {
		if ops[i].Type == models.BatchCreate && ops[i].TempID == "" {
			ops[i].TempID = "tmp-" + uuid.NewString()
		}
	}
	res, err := s.remote.BatchTasks(ctx, ops)
	if err != nil {
		logger.Error(ctx, "Batch failed", "error", err, "operations", len(ops))
		return models.BatchResult{}, models.NewOpError("batch", "", models.ErrMutation, err)
	}
	if _, err := s.Refresh(ctx, models.FetchFilter{}); err != nil {
		return res, err
	}
	return res, nil
}

// Logout clears the store. Fetches issued before logout are discarded when
// they complete.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = s.issued.Load()
	s.store.Clear()
}
