package contacts

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts map[string]*Contact // by ID
}

// NewMemoryStore creates a new in-memory contact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[string]*Contact),
	}
}

func (s *MemoryStore) Create(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contacts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; !ok {
		return ErrContactNotFound
	}
	cp := *c
	s.contacts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Contact
	for _, c := range s.contacts {
		if c.UserID != userID {
			continue
		}
		if !includeInactive && c.Status != StatusActive {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}

	// Newest first, stable across calls.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemoryStore) CountByStage(ctx context.Context, userID string) ([]StageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Stage]int)
	for _, c := range s.contacts {
		if c.UserID == userID && c.Status == StatusActive {
			counts[c.Stage]++
		}
	}

	// Fixed funnel order so charts render consistently.
	order := []Stage{
		StageNewLead, StageContacted, StageViewingScheduled,
		StageOfferMade, StageNegotiation, StageClosedWon, StageClosedLost,
	}
	var result []StageCount
	for _, st := range order {
		if n := counts[st]; n > 0 {
			result = append(result, StageCount{Stage: st, Count: n})
		}
	}
	return result, nil
}
