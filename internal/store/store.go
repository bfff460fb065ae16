package store

import (
	"sync"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/notify"
)

// Store owns the canonical in-memory task collection. Order is the order of
// the last ReplaceAll followed by inserts. Every mutation publishes a
// notify.Event after it is applied and before it returns.
type Store struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]models.Task
	version  uint64
	now      func() time.Time
	notifier *notify.Notifier
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source used to stamp completed_at and created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNotifier shares a notifier between the store and its consumers.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func New(opts ...Option) *Store {
	s := &Store{
		byID:     make(map[string]models.Task),
		now:      time.Now,
		notifier: notify.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Notifier returns the notifier mutations are published on.
func (s *Store) Notifier() *notify.Notifier { return s.notifier }

// Subscribe is shorthand for s.Notifier().Subscribe.
func (s *Store) Subscribe(fn func(notify.Event)) func() {
	return s.notifier.Subscribe(fn)
}

// ReplaceAll discards the collection and installs tasks in the given order.
// Tasks are normalised; a repeated id keeps its first position and last value.
func (s *Store) ReplaceAll(tasks []models.Task) {
	s.mu.Lock()
	now := s.now()
	s.order = make([]string, 0, len(tasks))
	s.byID = make(map[string]models.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		t.Normalize(now)
		if _, dup := s.byID[t.ID]; !dup {
			s.order = append(s.order, t.ID)
			ids = append(ids, t.ID)
		}
		s.byID[t.ID] = t
	}
	ev := s.bump(notify.Replaced, ids...)
	s.mu.Unlock()
	s.notifier.Publish(ev)
}

// Upsert inserts a task built from patch when patch.ID is absent, otherwise
// merges the set fields into the existing record. Inserting requires text.
func (s *Store) Upsert(patch models.TaskPatch) (models.Task, error) {
	if patch.ID == "" {
		return models.Task{}, &models.FieldError{Field: "id", Reason: "must not be empty"}
	}
	if err := patch.Validate(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	now := s.now()
	t, ok := s.byID[patch.ID]
	if ok {
		t = t.Clone()
		patch.Apply(&t, now)
	} else {
		t = patch.NewTask(patch.ID, now)
		if err := t.Validate(); err != nil {
			s.mu.Unlock()
			return models.Task{}, err
		}
		s.order = append(s.order, t.ID)
	}
	s.byID[t.ID] = t
	ev := s.bump(notify.Upserted, t.ID)
	s.mu.Unlock()
	s.notifier.Publish(ev)
	return t.Clone(), nil
}

// Restore installs task exactly as given, replacing any record with the same
// id in place. An absent task is inserted at pos, or appended when pos is out
// of range. Used to roll back optimistic changes and to install confirmed
// server records.
func (s *Store) Restore(task models.Task, pos int) {
	task = task.Clone()
	task.Normalize(s.now())
	s.mu.Lock()
	if _, ok := s.byID[task.ID]; !ok {
		if pos < 0 || pos > len(s.order) {
			pos = len(s.order)
		}
		s.order = append(s.order, "")
		copy(s.order[pos+1:], s.order[pos:])
		s.order[pos] = task.ID
	}
	s.byID[task.ID] = task
	ev := s.bump(notify.Restored, task.ID)
	s.mu.Unlock()
	s.notifier.Publish(ev)
}

// Remove deletes the record with id. Removing an absent id is a no-op and
// publishes nothing. It reports whether a record was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	ev := s.bump(notify.Removed, id)
	s.mu.Unlock()
	s.notifier.Publish(ev)
	return true
}

// Clear empties the store, as on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.order = nil
	s.byID = make(map[string]models.Task)
	ev := s.bump(notify.Cleared)
	s.mu.Unlock()
	s.notifier.Publish(ev)
}

// Get returns a copy of the record with id.
func (s *Store) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return models.Task{}, false
	}
	return t.Clone(), true
}

// IndexOf returns the position of id in store order, or -1.
func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, oid := range s.order {
		if oid == id {
			return i
		}
	}
	return -1
}

// All returns a snapshot of every task in store order.
func (s *Store) All() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version increases with every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) bump(kind notify.Kind, ids ...string) notify.Event {
	s.version++
	return notify.Event{Kind: kind, IDs: ids, Version: s.version}
}
