// Package actions implements the recovery action log: the record of what an
// agent actually did about an at-risk contact. The log is append-only; an
// action's outcome is the only field that changes after creation.
package actions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrActionNotFound = errors.New("recovery action not found")
	ErrInvalidType    = errors.New("invalid action type")
	ErrInvalidOutcome = errors.New("invalid outcome")
	ErrOutcomeFinal   = errors.New("outcome already recorded")
)

// ActionType classifies a recovery action.
type ActionType string

const (
	ActionPriorityCall        ActionType = "priority_call"
	ActionDiscountOffer       ActionType = "discount_offer"
	ActionAlternativeProposal ActionType = "alternative_proposal"
	ActionEscalation          ActionType = "escalation"
	ActionFollowUpEmail       ActionType = "follow_up_email"
)

// Outcome records how a recovery action turned out.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeSuccessful Outcome = "successful"
	OutcomeFailed     Outcome = "failed"
)

// Action is one logged recovery step taken for a contact.
type Action struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	ContactID    string     `json:"contactId"`
	AlertID      string     `json:"alertId,omitempty"` // alert that prompted the action, if any
	ActionType   ActionType `json:"actionType"`
	Notes        string     `json:"notes,omitempty"`
	DiscountCode string     `json:"discountCode,omitempty"`
	Outcome      Outcome    `json:"outcome"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Notifier is the user-facing notification channel for action outcomes.
type Notifier interface {
	Success(ctx context.Context, userID, message string)
	Failure(ctx context.Context, userID, message string)
}

// Store persists recovery actions.
type Store interface {
	Create(ctx context.Context, a *Action) error
	Get(ctx context.Context, id string) (*Action, error)
	// ListByUser returns a user's actions newest first, optionally filtered
	// to one contact.
	ListByUser(ctx context.Context, userID, contactID string) ([]*Action, error)
	Update(ctx context.Context, a *Action) error
}

// LogActionRequest is the payload for logging a recovery action.
type LogActionRequest struct {
	ContactID  string  `json:"contactId"`
	AlertID    string  `json:"alertId"`
	ActionType string  `json:"actionType"`
	Notes      string  `json:"notes"`
	Outcome    string  `json:"outcome"`    // optional; defaults to pending
	PercentOff float64 `json:"percentOff"` // discount_offer only
}

// SetOutcomeRequest is the payload for recording an action's outcome.
type SetOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

// ValidActionType reports whether t is a known action type.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionPriorityCall, ActionDiscountOffer, ActionAlternativeProposal, ActionEscalation, ActionFollowUpEmail:
		return true
	}
	return false
}

// ValidOutcome reports whether o is a known outcome.
func ValidOutcome(o Outcome) bool {
	switch o {
	case OutcomePending, OutcomeSuccessful, OutcomeFailed:
		return true
	}
	return false
}

func generateActionID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("act_%x", b)
}
