package actions

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists recovery actions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed action store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the recovery_actions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS recovery_actions (
			id            VARCHAR(36) PRIMARY KEY,
			user_id       VARCHAR(36) NOT NULL,
			contact_id    VARCHAR(36) NOT NULL,
			alert_id      VARCHAR(36) NOT NULL DEFAULT '',
			action_type   VARCHAR(32) NOT NULL CHECK (action_type IN ('priority_call', 'discount_offer', 'alternative_proposal', 'escalation', 'follow_up_email')),
			notes         TEXT NOT NULL DEFAULT '',
			discount_code VARCHAR(64) NOT NULL DEFAULT '',
			outcome       VARCHAR(16) NOT NULL DEFAULT 'pending' CHECK (outcome IN ('pending', 'successful', 'failed')),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_recovery_actions_user_created
			ON recovery_actions (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_recovery_actions_contact
			ON recovery_actions (contact_id);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, a *Action) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recovery_actions (id, user_id, contact_id, alert_id, action_type, notes, discount_code, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.UserID, a.ContactID, a.AlertID, string(a.ActionType), a.Notes, a.DiscountCode, string(a.Outcome), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert recovery action: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Action, error) {
	a := &Action{}
	var actionType, outcome string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, contact_id, alert_id, action_type, notes, discount_code, outcome, created_at, updated_at
		FROM recovery_actions WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.ContactID, &a.AlertID, &actionType, &a.Notes, &a.DiscountCode, &outcome, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ActionType = ActionType(actionType)
	a.Outcome = Outcome(outcome)
	return a, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID, contactID string) ([]*Action, error) {
	query := `
		SELECT id, user_id, contact_id, alert_id, action_type, notes, discount_code, outcome, created_at, updated_at
		FROM recovery_actions WHERE user_id = $1`
	args := []any{userID}
	if contactID != "" {
		query += ` AND contact_id = $2`
		args = append(args, contactID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Action
	for rows.Next() {
		a := &Action{}
		var actionType, outcome string
		if err := rows.Scan(&a.ID, &a.UserID, &a.ContactID, &a.AlertID, &actionType, &a.Notes, &a.DiscountCode, &outcome, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.ActionType = ActionType(actionType)
		a.Outcome = Outcome(outcome)
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, a *Action) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recovery_actions SET outcome = $1, notes = $2, updated_at = $3 WHERE id = $4
	`, string(a.Outcome), a.Notes, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActionNotFound
	}
	return nil
}
