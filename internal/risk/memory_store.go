package risk

import (
	"context"
	"sort"
	"sync"
)

// metricKey identifies the single metric row per (user, contact).
type metricKey struct {
	userID    string
	contactID string
}

// ContactResolver maps contact IDs to display identity for the read models.
// The memory store needs this because it has no SQL join to lean on.
type ContactResolver interface {
	Resolve(ctx context.Context, contactID string) (name, stage string)
}

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	metrics  map[metricKey]*Metric
	alerts   map[string]*Alert
	resolver ContactResolver // optional
}

// NewMemoryStore creates an in-memory risk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metrics: make(map[metricKey]*Metric),
		alerts:  make(map[string]*Alert),
	}
}

// WithResolver attaches a contact resolver for the read-model joins.
func (s *MemoryStore) WithResolver(r ContactResolver) *MemoryStore {
	s.resolver = r
	return s
}

func (s *MemoryStore) UpsertMetric(ctx context.Context, m *Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.metrics[metricKey{m.UserID, m.ContactID}] = &cp
	return nil
}

func (s *MemoryStore) GetMetric(ctx context.Context, userID, contactID string) (*Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[metricKey{userID, contactID}]
	if !ok {
		return nil, ErrMetricNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMetrics(ctx context.Context, userID string) ([]*MetricWithContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*MetricWithContact
	for _, m := range s.metrics {
		if m.UserID != userID {
			continue
		}
		entry := &MetricWithContact{Metric: *m}
		if s.resolver != nil {
			entry.ContactName, entry.ContactStage = s.resolver.Resolve(ctx, m.ContactID)
		}
		result = append(result, entry)
	}

	// Highest risk first; contact ID breaks ties so ordering is stable.
	sort.Slice(result, func(i, j int) bool {
		if result[i].RiskScore == result[j].RiskScore {
			return result[i].ContactID < result[j].ContactID
		}
		return result[i].RiskScore > result[j].RiskScore
	})

	return result, nil
}

func (s *MemoryStore) Summarize(ctx context.Context, userID string, alertThreshold, highThreshold int) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{}
	var scoreTotal, engagementTotal int
	for _, m := range s.metrics {
		if m.UserID != userID {
			continue
		}
		sum.ContactCount++
		scoreTotal += m.RiskScore
		engagementTotal += m.EngagementScore
		if m.RiskScore >= alertThreshold {
			sum.AtRiskCount++
		}
		if m.RiskScore >= highThreshold {
			sum.HighRiskCount++
		}
	}
	if sum.ContactCount > 0 {
		sum.AverageScore = float64(scoreTotal) / float64(sum.ContactCount)
		sum.AvgEngagement = float64(engagementTotal) / float64(sum.ContactCount)
	}

	for _, a := range s.alerts {
		if a.UserID == userID && !a.IsResolved {
			sum.UnresolvedAlerts++
		}
	}

	return sum, nil
}

func (s *MemoryStore) CreateAlert(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, userID string, includeResolved bool) ([]*AlertWithContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*AlertWithContact
	for _, a := range s.alerts {
		if a.UserID != userID {
			continue
		}
		if !includeResolved && a.IsResolved {
			continue
		}
		entry := &AlertWithContact{Alert: *a}
		if s.resolver != nil {
			entry.ContactName, _ = s.resolver.Resolve(ctx, a.ContactID)
		}
		result = append(result, entry)
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

func (s *MemoryStore) UpdateAlert(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; !ok {
		return ErrAlertNotFound
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}
