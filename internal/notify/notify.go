// Package notify delivers run and alert outcomes to users.
//
// Two channels: an in-app notification feed, and signed webhook pushes to
// URLs the user registers. Both are fire-and-forget from the caller's point
// of view; a notification failure never fails the operation that caused it.
package notify

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
)

// Level classifies a feed notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
	LevelInfo    Level = "info"
)

// Notification is one entry in a user's in-app feed.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventType identifies a webhook event.
type EventType string

const (
	EventRiskAlertCreated EventType = "risk.alert.created"
	EventRiskRunCompleted EventType = "risk.run.completed"
	EventRiskRunFailed    EventType = "risk.run.failed"
	EventActionLogged     EventType = "action.logged"
	EventNotification     EventType = "notification.created"
)

// Event is the payload pushed to webhook endpoints.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Subscription is a user-registered webhook endpoint.
type Subscription struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"userId"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // HMAC signing key
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"-"`
}

// NotificationStore persists the in-app feed.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	// ListByUser returns a user's notifications newest first. unreadOnly
	// filters out read entries.
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error)
	Update(ctx context.Context, n *Notification) error
}

// SubscriptionStore persists webhook subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}
