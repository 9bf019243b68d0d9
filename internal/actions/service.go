package actions

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/proptor/proptor/internal/billing"
	"github.com/proptor/proptor/internal/metrics"
	"github.com/proptor/proptor/internal/traces"
)

// DefaultDiscountPercent is used when a discount_offer action does not name
// its own percentage.
const DefaultDiscountPercent = 10

// Service implements the recovery action log.
type Service struct {
	store     Store
	discounts billing.DiscountProvider
	notifier  Notifier // optional
}

// NewService creates a recovery action service.
func NewService(store Store, discounts billing.DiscountProvider) *Service {
	if discounts == nil {
		discounts = billing.NoopProvider{}
	}
	return &Service{store: store, discounts: discounts}
}

// WithNotifier attaches a notification channel for log outcomes.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Log appends a recovery action. Outcome starts as pending unless the request
// carries one. A discount_offer action additionally asks the billing provider
// for a coupon code; if that fails the action is still logged, just without a
// code. Every attempt that passes validation ends in a user notification,
// one message for a logged action and another for a write that failed.
func (s *Service) Log(ctx context.Context, userID string, req LogActionRequest) (*Action, error) {
	actionType := ActionType(req.ActionType)
	if !ValidActionType(actionType) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, req.ActionType)
	}

	outcome := OutcomePending
	if req.Outcome != "" {
		outcome = Outcome(req.Outcome)
		if !ValidOutcome(outcome) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, req.Outcome)
		}
	}

	ctx, span := traces.StartSpan(ctx, "actions.log",
		traces.UserID(userID), traces.ContactID(req.ContactID), traces.ActionType(req.ActionType))
	defer span.End()

	now := time.Now()
	a := &Action{
		ID:         generateActionID(),
		UserID:     userID,
		ContactID:  req.ContactID,
		AlertID:    req.AlertID,
		ActionType: actionType,
		Notes:      strings.TrimSpace(req.Notes),
		Outcome:    outcome,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if actionType == ActionDiscountOffer {
		percent := req.PercentOff
		if percent <= 0 {
			percent = DefaultDiscountPercent
		}
		discount, err := s.discounts.CreateDiscount(ctx, userID, req.ContactID, percent)
		switch {
		case err == billing.ErrBillingDisabled:
			// Fine: the offer is tracked without a provider-issued code.
		case err != nil:
			log.Printf("WARNING: discount creation failed for contact %s: %v", req.ContactID, err)
		default:
			a.DiscountCode = discount.Code
		}
	}

	if err := s.store.Create(ctx, a); err != nil {
		if s.notifier != nil {
			s.notifier.Failure(ctx, userID, fmt.Sprintf(
				"Recovery action could not be saved for contact %s.", req.ContactID))
		}
		return nil, fmt.Errorf("failed to log action: %w", err)
	}
	metrics.RecoveryActionsTotal.WithLabelValues(string(actionType)).Inc()
	if s.notifier != nil {
		s.notifier.Success(ctx, userID, fmt.Sprintf(
			"Recovery action logged: %s for contact %s.", actionType, req.ContactID))
	}
	return a, nil
}

// Get returns one action, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, actionID string) (*Action, error) {
	a, err := s.store.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrActionNotFound
	}
	return a, nil
}

// List returns a user's actions newest first, optionally filtered to one contact.
func (s *Service) List(ctx context.Context, userID, contactID string) ([]*Action, error) {
	return s.store.ListByUser(ctx, userID, contactID)
}

// SetOutcome records how a pending action turned out. Setting the same
// outcome twice is a no-op; changing a recorded outcome is rejected.
func (s *Service) SetOutcome(ctx context.Context, userID, actionID string, outcome Outcome) (*Action, error) {
	if !ValidOutcome(outcome) || outcome == OutcomePending {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	a, err := s.Get(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	if a.Outcome == outcome {
		return a, nil
	}
	if a.Outcome != OutcomePending {
		return nil, ErrOutcomeFinal
	}

	a.Outcome = outcome
	a.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update action: %w", err)
	}
	return a, nil
}
