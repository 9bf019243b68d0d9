package risk

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists risk metrics and alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_metrics (
			user_id               VARCHAR(36) NOT NULL,
			contact_id            VARCHAR(36) NOT NULL,
			risk_score            INTEGER NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			last_contact_days     INTEGER NOT NULL DEFAULT 0,
			interaction_frequency DOUBLE PRECISION NOT NULL DEFAULT 0,
			engagement_score      INTEGER NOT NULL DEFAULT 0,
			risk_factors          TEXT[] NOT NULL DEFAULT '{}',
			recommendations       TEXT[] NOT NULL DEFAULT '{}',
			last_calculated       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, contact_id)
		);

		CREATE INDEX IF NOT EXISTS idx_risk_metrics_user_score
			ON risk_metrics (user_id, risk_score DESC);

		CREATE TABLE IF NOT EXISTS risk_alerts (
			id          VARCHAR(36) PRIMARY KEY,
			user_id     VARCHAR(36) NOT NULL,
			contact_id  VARCHAR(36) NOT NULL,
			alert_type  VARCHAR(32) NOT NULL CHECK (alert_type IN ('high_risk', 'stage_stagnation', 'low_engagement', 'price_objection')),
			message     TEXT NOT NULL,
			risk_score  INTEGER NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			is_read     BOOLEAN NOT NULL DEFAULT FALSE,
			is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_alerts_user_created
			ON risk_alerts (user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, m *Metric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_metrics (user_id, contact_id, risk_score, last_contact_days,
			interaction_frequency, engagement_score, risk_factors, recommendations, last_calculated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, contact_id) DO UPDATE SET
			risk_score            = EXCLUDED.risk_score,
			last_contact_days     = EXCLUDED.last_contact_days,
			interaction_frequency = EXCLUDED.interaction_frequency,
			engagement_score      = EXCLUDED.engagement_score,
			risk_factors          = EXCLUDED.risk_factors,
			recommendations       = EXCLUDED.recommendations,
			last_calculated       = EXCLUDED.last_calculated
	`, m.UserID, m.ContactID, m.RiskScore, m.LastContactDays,
		m.InteractionFrequency, m.EngagementScore,
		pq.Array(m.RiskFactors), pq.Array(m.Recommendations), m.LastCalculated)
	if err != nil {
		return fmt.Errorf("upsert risk metric: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMetric(ctx context.Context, userID, contactID string) (*Metric, error) {
	m := &Metric{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, contact_id, risk_score, last_contact_days,
			interaction_frequency, engagement_score, risk_factors, recommendations, last_calculated
		FROM risk_metrics
		WHERE user_id = $1 AND contact_id = $2
	`, userID, contactID).Scan(&m.UserID, &m.ContactID, &m.RiskScore, &m.LastContactDays,
		&m.InteractionFrequency, &m.EngagementScore,
		pq.Array(&m.RiskFactors), pq.Array(&m.Recommendations), &m.LastCalculated)
	if err == sql.ErrNoRows {
		return nil, ErrMetricNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context, userID string) ([]*MetricWithContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.contact_id, m.risk_score, m.last_contact_days,
			m.interaction_frequency, m.engagement_score, m.risk_factors, m.recommendations, m.last_calculated,
			COALESCE(c.name, ''), COALESCE(c.stage, '')
		FROM risk_metrics m
		LEFT JOIN contacts c ON c.id = m.contact_id
		WHERE m.user_id = $1
		ORDER BY m.risk_score DESC, m.contact_id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*MetricWithContact
	for rows.Next() {
		e := &MetricWithContact{}
		if err := rows.Scan(&e.UserID, &e.ContactID, &e.RiskScore, &e.LastContactDays,
			&e.InteractionFrequency, &e.EngagementScore,
			pq.Array(&e.RiskFactors), pq.Array(&e.Recommendations), &e.LastCalculated,
			&e.ContactName, &e.ContactStage); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Summarize(ctx context.Context, userID string, alertThreshold, highThreshold int) (*Summary, error) {
	sum := &Summary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(risk_score), 0),
			COUNT(*) FILTER (WHERE risk_score >= $2),
			COUNT(*) FILTER (WHERE risk_score >= $3),
			COALESCE(AVG(engagement_score), 0)
		FROM risk_metrics
		WHERE user_id = $1
	`, userID, alertThreshold, highThreshold).Scan(&sum.ContactCount, &sum.AverageScore,
		&sum.AtRiskCount, &sum.HighRiskCount, &sum.AvgEngagement)
	if err != nil {
		return nil, fmt.Errorf("summarize metrics: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM risk_alerts WHERE user_id = $1 AND is_resolved = FALSE
	`, userID).Scan(&sum.UnresolvedAlerts)
	if err != nil {
		return nil, fmt.Errorf("count unresolved alerts: %w", err)
	}

	return sum, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_alerts (id, user_id, contact_id, alert_type, message, risk_score, is_read, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.UserID, a.ContactID, string(a.AlertType), a.Message, a.RiskScore, a.IsRead, a.IsResolved, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert risk alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	a := &Alert{}
	var alertType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, contact_id, alert_type, message, risk_score, is_read, is_resolved, created_at
		FROM risk_alerts WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.ContactID, &alertType, &a.Message, &a.RiskScore, &a.IsRead, &a.IsResolved, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	a.AlertType = AlertType(alertType)
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, userID string, includeResolved bool) ([]*AlertWithContact, error) {
	query := `
		SELECT a.id, a.user_id, a.contact_id, a.alert_type, a.message, a.risk_score,
			a.is_read, a.is_resolved, a.created_at, COALESCE(c.name, '')
		FROM risk_alerts a
		LEFT JOIN contacts c ON c.id = a.contact_id
		WHERE a.user_id = $1`
	if !includeResolved {
		query += ` AND a.is_resolved = FALSE`
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*AlertWithContact
	for rows.Next() {
		e := &AlertWithContact{}
		var alertType string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContactID, &alertType, &e.Message, &e.RiskScore,
			&e.IsRead, &e.IsResolved, &e.CreatedAt, &e.ContactName); err != nil {
			return nil, err
		}
		e.AlertType = AlertType(alertType)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateAlert(ctx context.Context, a *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_alerts SET is_read = $1, is_resolved = $2 WHERE id = $3
	`, a.IsRead, a.IsResolved, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
