package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/proptor/proptor/internal/idgen"
	"github.com/proptor/proptor/internal/metrics"
)

// Publisher broadcasts to connected realtime clients.
type Publisher interface {
	Publish(event string, userID string, payload any)
}

// Service writes the in-app feed and fans out to webhooks and the realtime
// hub. Implements the notifier contract the risk runner expects.
type Service struct {
	store      NotificationStore
	dispatcher *Dispatcher // optional
	publisher  Publisher   // optional
	logger     *slog.Logger
}

// NewService creates a notification service.
func NewService(store NotificationStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// WithDispatcher attaches a webhook dispatcher.
func (s *Service) WithDispatcher(d *Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// WithPublisher attaches a realtime publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// Success records a success notification for the user.
func (s *Service) Success(ctx context.Context, userID, message string) {
	s.notify(ctx, userID, LevelSuccess, message)
}

// Failure records a failure notification for the user.
func (s *Service) Failure(ctx context.Context, userID, message string) {
	s.notify(ctx, userID, LevelFailure, message)
}

// Info records an informational notification for the user.
func (s *Service) Info(ctx context.Context, userID, message string) {
	s.notify(ctx, userID, LevelInfo, message)
}

func (s *Service) notify(ctx context.Context, userID string, level Level, message string) {
	n := &Notification{
		ID:        idgen.WithPrefix("ntf_"),
		UserID:    userID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}

	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Warn("notification write failed", "user", userID, "level", level, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(level)).Inc()

	if s.publisher != nil {
		s.publisher.Publish("notification", userID, n)
	}
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, userID, EventNotification, n)
	}
}

// List returns a user's feed newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	return s.store.ListByUser(ctx, userID, unreadOnly)
}

// MarkRead flags a notification as read. Idempotent.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	n, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	if n.IsRead {
		return n, nil
	}
	n.IsRead = true
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
