package contacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/proptor/proptor/internal/cache"
)

// Service implements contact book business logic.
type Service struct {
	store Store
	cache *cache.Cache // optional
}

// NewService creates a new contact service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// WithCache attaches a read-through cache for funnel counts.
func (s *Service) WithCache(c *cache.Cache) *Service {
	s.cache = c
	return s
}

// Create adds a contact to a user's book. Stage defaults to new_lead.
func (s *Service) Create(ctx context.Context, userID string, req CreateContactRequest) (*Contact, error) {
	stage := Stage(req.Stage)
	if req.Stage == "" {
		stage = StageNewLead
	}
	if !ValidStage(stage) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStage, req.Stage)
	}

	now := time.Now()
	c := &Contact{
		ID:        generateContactID(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Stage:     stage,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	s.cache.Invalidate(ctx, cache.FunnelKey(userID))
	return c, nil
}

// Get returns a contact, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, contactID string) (*Contact, error) {
	c, err := s.store.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrContactNotFound
	}
	return c, nil
}

// List returns a user's contacts, active only unless includeInactive.
func (s *Service) List(ctx context.Context, userID string, includeInactive bool) ([]*Contact, error) {
	return s.store.ListByUser(ctx, userID, includeInactive)
}

// UpdateStage moves a contact to a new funnel stage.
func (s *Service) UpdateStage(ctx context.Context, userID, contactID string, stage Stage) (*Contact, error) {
	if !ValidStage(stage) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStage, stage)
	}

	c, err := s.Get(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	c.Stage = stage
	c.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	s.cache.Invalidate(ctx, cache.FunnelKey(userID))
	return c, nil
}

// Deactivate marks a contact inactive. There is no hard delete in the normal
// flow; risk history stays attached to the row.
func (s *Service) Deactivate(ctx context.Context, userID, contactID string) (*Contact, error) {
	c, err := s.Get(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	c.Status = StatusInactive
	c.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to deactivate contact: %w", err)
	}
	s.cache.Invalidate(ctx, cache.FunnelKey(userID))
	return c, nil
}

// FunnelCounts returns per-stage counts over the user's active contacts.
func (s *Service) FunnelCounts(ctx context.Context, userID string) ([]StageCount, error) {
	key := cache.FunnelKey(userID)
	var cached []StageCount
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	counts, err := s.store.CountByStage(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, counts)
	return counts, nil
}
