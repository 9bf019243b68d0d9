// Package risk implements client disengagement analysis for the CRM.
//
// The scoring math lives in an external calculator service; this package owns
// everything around it: persisting the latest metric per (user, contact),
// raising threshold alerts, running the sequential bulk analysis pass, and
// serving the dashboard read models.
package risk

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrMetricNotFound = errors.New("risk metric not found")
	ErrAlertNotFound  = errors.New("risk alert not found")
	ErrRunInProgress  = errors.New("a risk analysis run is already in progress")
)

// Default thresholds. A score at or above AlertThreshold produces an alert;
// at or above HighThreshold the alert is high_risk instead of stage_stagnation.
const (
	DefaultAlertThreshold = 70
	DefaultHighThreshold  = 80
	DefaultPace           = 100 * time.Millisecond
)

// AlertType classifies a risk alert.
type AlertType string

const (
	AlertHighRisk        AlertType = "high_risk"
	AlertStageStagnation AlertType = "stage_stagnation"
	AlertLowEngagement   AlertType = "low_engagement"
	AlertPriceObjection  AlertType = "price_objection"
)

// Metric is the latest risk snapshot for one (user, contact) pair.
// Upserted in place; history is not kept.
type Metric struct {
	UserID               string    `json:"userId"`
	ContactID            string    `json:"contactId"`
	RiskScore            int       `json:"riskScore"`
	LastContactDays      int       `json:"lastContactDays"`
	InteractionFrequency float64   `json:"interactionFrequency"`
	EngagementScore      int       `json:"engagementScore"`
	RiskFactors          []string  `json:"riskFactors"`
	Recommendations      []string  `json:"recommendations"`
	LastCalculated       time.Time `json:"lastCalculated"`
}

// Alert is a threshold-triggered warning about a contact. Read and resolved
// flags only ever move false to true.
type Alert struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ContactID  string    `json:"contactId"`
	AlertType  AlertType `json:"alertType"`
	Message    string    `json:"alertMessage"`
	RiskScore  int       `json:"riskScore"`
	IsRead     bool      `json:"isRead"`
	IsResolved bool      `json:"isResolved"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MetricWithContact is the dashboard read model for the metrics list.
type MetricWithContact struct {
	Metric
	ContactName  string `json:"contactName"`
	ContactStage string `json:"contactStage"`
}

// AlertWithContact is the dashboard read model for the alert list.
type AlertWithContact struct {
	Alert
	ContactName string `json:"contactName"`
}

// Summary aggregates a user's metrics for the engagement dashboard.
type Summary struct {
	ContactCount     int     `json:"contactCount"`
	AverageScore     float64 `json:"averageScore"`
	AtRiskCount      int     `json:"atRiskCount"`   // score >= alert threshold
	HighRiskCount    int     `json:"highRiskCount"` // score >= high threshold
	AvgEngagement    float64 `json:"avgEngagement"`
	UnresolvedAlerts int     `json:"unresolvedAlerts"`
}

// RunState is the bulk runner's lifecycle state.
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
	RunStateError   RunState = "error"
)

// RunSummary reports the outcome of one bulk analysis pass.
type RunSummary struct {
	Total         int           `json:"total"`         // active contacts considered
	SuccessCount  int           `json:"successCount"`  // metrics stored
	AlertsCreated int           `json:"alertsCreated"` // qualifying alerts
	Skipped       int           `json:"skipped"`       // calculator failures or no result
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
}

// Store persists metrics and alerts.
type Store interface {
	// UpsertMetric inserts or replaces the metric for (UserID, ContactID).
	// Last write wins.
	UpsertMetric(ctx context.Context, m *Metric) error
	GetMetric(ctx context.Context, userID, contactID string) (*Metric, error)
	// ListMetrics returns a user's metrics joined with contact identity,
	// ordered by risk score descending.
	ListMetrics(ctx context.Context, userID string) ([]*MetricWithContact, error)
	Summarize(ctx context.Context, userID string, alertThreshold, highThreshold int) (*Summary, error)

	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	// ListAlerts returns a user's alerts newest first. Resolved alerts are
	// excluded unless includeResolved.
	ListAlerts(ctx context.Context, userID string, includeResolved bool) ([]*AlertWithContact, error)
	UpdateAlert(ctx context.Context, a *Alert) error
}

// ContactSource is the slice of the contact book the risk core needs.
// Defined here so risk does not import the contacts package.
type ContactSource interface {
	ActiveContacts(ctx context.Context, userID string) ([]ContactRef, error)
}

// ContactRef is the minimal contact identity used during a run.
type ContactRef struct {
	ID   string
	Name string
}

// Notifier delivers run outcomes to the user-facing notification channel.
type Notifier interface {
	Success(ctx context.Context, userID, message string)
	Failure(ctx context.Context, userID, message string)
}

// Publisher broadcasts realtime events to connected dashboard clients.
type Publisher interface {
	Publish(event string, userID string, payload any)
}

func generateAlertID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("alert_%x", b)
}
