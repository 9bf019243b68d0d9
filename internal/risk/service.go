package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/proptor/proptor/internal/cache"
	"github.com/proptor/proptor/internal/metrics"
)

// Service implements risk metric persistence, alert policy, and the
// dashboard read models. The bulk analysis pass lives in runner.go.
type Service struct {
	store          Store
	alertThreshold int
	highThreshold  int
	publisher      Publisher    // optional
	cache          *cache.Cache // optional
}

// NewService creates a risk service with the given thresholds. Zero
// thresholds fall back to the defaults.
func NewService(store Store, alertThreshold, highThreshold int) *Service {
	if alertThreshold <= 0 {
		alertThreshold = DefaultAlertThreshold
	}
	if highThreshold <= 0 {
		highThreshold = DefaultHighThreshold
	}
	return &Service{
		store:          store,
		alertThreshold: alertThreshold,
		highThreshold:  highThreshold,
	}
}

// WithPublisher attaches a realtime event publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithCache attaches a read-through cache for the summary.
func (s *Service) WithCache(c *cache.Cache) *Service {
	s.cache = c
	return s
}

// StoreResult persists a calculator result as the contact's current metric.
// Last write wins; there is no history table.
func (s *Service) StoreResult(ctx context.Context, userID, contactID string, r *Result) (*Metric, error) {
	m := &Metric{
		UserID:               userID,
		ContactID:            contactID,
		RiskScore:            r.RiskScore,
		LastContactDays:      r.LastContactDays,
		InteractionFrequency: r.InteractionFrequency,
		EngagementScore:      r.EngagementScore,
		RiskFactors:          r.RiskFactors,
		Recommendations:      r.Recommendations,
		LastCalculated:       time.Now(),
	}
	if err := s.store.UpsertMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store risk metric: %w", err)
	}
	metrics.MetricsUpsertedTotal.Inc()
	s.cache.Invalidate(ctx, cache.SummaryKey(userID))
	return m, nil
}

// MaybeAlert applies the alert policy to a stored metric. Scores below the
// alert threshold produce nothing. At or above the high threshold the alert
// is high_risk; otherwise stage_stagnation. Every qualifying pass creates a
// fresh alert; duplicates are surfaced, not suppressed.
func (s *Service) MaybeAlert(ctx context.Context, m *Metric, contactName string) (*Alert, error) {
	if m.RiskScore < s.alertThreshold {
		return nil, nil
	}

	name := contactName
	if name == "" {
		name = m.ContactID
	}

	alertType := AlertStageStagnation
	message := fmt.Sprintf("%s has stalled in the current sales stage (risk score %d). A follow-up could restore momentum.", name, m.RiskScore)
	if m.RiskScore >= s.highThreshold {
		alertType = AlertHighRisk
		message = fmt.Sprintf("%s shows a high risk of losing the deal (risk score %d). Immediate action recommended.", name, m.RiskScore)
	}

	a := &Alert{
		ID:        generateAlertID(),
		UserID:    m.UserID,
		ContactID: m.ContactID,
		AlertType: alertType,
		Message:   message,
		RiskScore: m.RiskScore,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	metrics.AlertsCreatedTotal.WithLabelValues(string(alertType)).Inc()
	s.cache.Invalidate(ctx, cache.SummaryKey(m.UserID))

	if s.publisher != nil {
		s.publisher.Publish("risk_alert", a.UserID, a)
	}

	return a, nil
}

// GetMetric returns the current metric for one contact.
func (s *Service) GetMetric(ctx context.Context, userID, contactID string) (*Metric, error) {
	return s.store.GetMetric(ctx, userID, contactID)
}

// ListMetrics returns a user's metrics, highest risk first.
func (s *Service) ListMetrics(ctx context.Context, userID string) ([]*MetricWithContact, error) {
	return s.store.ListMetrics(ctx, userID)
}

// Summary aggregates the user's metrics for the dashboard.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	key := cache.SummaryKey(userID)
	cached := &Summary{}
	if s.cache.GetJSON(ctx, key, cached) {
		return cached, nil
	}

	sum, err := s.store.Summarize(ctx, userID, s.alertThreshold, s.highThreshold)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, sum)
	return sum, nil
}

// ListAlerts returns a user's alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, userID string, includeResolved bool) ([]*AlertWithContact, error) {
	return s.store.ListAlerts(ctx, userID, includeResolved)
}

// MarkRead flags an alert as read. Idempotent; the flag never clears.
func (s *Service) MarkRead(ctx context.Context, userID, alertID string) (*Alert, error) {
	a, err := s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if a.IsRead {
		return a, nil
	}
	a.IsRead = true
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Resolve closes an alert. Resolving also marks it read. Idempotent.
func (s *Service) Resolve(ctx context.Context, userID, alertID string) (*Alert, error) {
	a, err := s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if a.IsResolved {
		return a, nil
	}
	a.IsResolved = true
	a.IsRead = true
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.SummaryKey(userID))
	return a, nil
}

func (s *Service) ownedAlert(ctx context.Context, userID, alertID string) (*Alert, error) {
	a, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	return a, nil
}
