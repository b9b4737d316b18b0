package task

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-session use and testing.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewMemStore returns an initialised [MemStore], optionally pre-loaded with
// the given tasks.
func NewMemStore(tasks ...Task) *MemStore {
	s := &MemStore{tasks: make(map[string]Task, len(tasks))}
	s.Put(tasks...)
	return s
}

// Put implements [Store.Put].
func (s *MemStore) Put(tasks ...Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks == nil {
		s.tasks = make(map[string]Task, len(tasks))
	}
	for _, t := range tasks {
		if existing, ok := s.tasks[t.ID]; ok && existing.Completed {
			// Completion is monotonic.
			continue
		}
		s.tasks[t.ID] = t
	}
}

// Get implements [Store.Get].
func (s *MemStore) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

// ListOpen implements [Store.ListOpen].
func (s *MemStore) ListOpen() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	open := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.Completed {
			open = append(open, t)
		}
	}
	slices.SortFunc(open, func(a, b Task) int {
		return strings.Compare(a.ID, b.ID)
	})
	return open
}

// MarkCompleted implements [Store.MarkCompleted].
func (s *MemStore) MarkCompleted(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Completed {
		return nil
	}
	t.Completed = true
	t.CompletedAt = at
	s.tasks[id] = t
	return nil
}
