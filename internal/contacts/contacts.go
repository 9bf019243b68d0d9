// Package contacts manages the CRM contact book — the leads and clients a
// user works with. Contacts carry a sales funnel stage and an active flag;
// the risk subsystem reads them to decide who to score.
package contacts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidStage    = errors.New("invalid sales stage")
)

// Stage is a contact's position in the sales funnel.
type Stage string

const (
	StageNewLead          Stage = "new_lead"
	StageContacted        Stage = "contacted"
	StageViewingScheduled Stage = "viewing_scheduled"
	StageOfferMade        Stage = "offer_made"
	StageNegotiation      Stage = "negotiation"
	StageClosedWon        Stage = "closed_won"
	StageClosedLost       Stage = "closed_lost"
)

// Status is a contact's active flag.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ValidStage reports whether s is a known funnel stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageNewLead, StageContacted, StageViewingScheduled,
		StageOfferMade, StageNegotiation, StageClosedWon, StageClosedLost:
		return true
	}
	return false
}

// Contact is a lead or client owned by a single user.
type Contact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Stage     Stage     `json:"stage"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StageCount is one bucket of the sales funnel aggregate.
type StageCount struct {
	Stage Stage `json:"stage"`
	Count int   `json:"count"`
}

// Store persists contacts.
type Store interface {
	Create(ctx context.Context, c *Contact) error
	Get(ctx context.Context, id string) (*Contact, error)
	Update(ctx context.Context, c *Contact) error
	// ListByUser returns a user's contacts, active only unless includeInactive.
	ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Contact, error)
	// CountByStage returns funnel counts over a user's active contacts.
	CountByStage(ctx context.Context, userID string) ([]StageCount, error)
}

// Request types for handlers.

// CreateContactRequest is the request body for POST /v1/contacts.
type CreateContactRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Stage string `json:"stage"`
}

// UpdateStageRequest is the request body for POST /v1/contacts/:id/stage.
type UpdateStageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

func generateContactID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("con_%x", b)
}
