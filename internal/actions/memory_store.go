package actions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

// NewMemoryStore creates an in-memory action store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*Action)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.actions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID, contactID string) ([]*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Action
	for _, a := range s.actions {
		if a.UserID != userID {
			continue
		}
		if contactID != "" && a.ContactID != contactID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	// Newest first.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; !ok {
		return ErrActionNotFound
	}
	cp := *a
	s.actions[a.ID] = &cp
	return nil
}
