package contacts

import (
	"context"
	"database/sql"
)

// PostgresStore persists contacts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed contact store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, c *Contact) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO contacts (id, user_id, name, email, phone, stage, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.UserID, c.Name, c.Email, c.Phone, string(c.Stage), string(c.Status), c.CreatedAt, c.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Contact, error) {
	c := &Contact{}
	var stage, status string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, phone, stage, status, created_at, updated_at
		FROM contacts WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &stage, &status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Stage = Stage(stage)
	c.Status = Status(status)
	return c, nil
}

func (p *PostgresStore) Update(ctx context.Context, c *Contact) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE contacts
		SET name = $1, email = $2, phone = $3, stage = $4, status = $5, updated_at = $6
		WHERE id = $7
	`, c.Name, c.Email, c.Phone, string(c.Stage), string(c.Status), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Contact, error) {
	query := `
		SELECT id, user_id, name, email, phone, stage, status, created_at, updated_at
		FROM contacts WHERE user_id = $1`
	if !includeInactive {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Contact
	for rows.Next() {
		c := &Contact{}
		var stage, status string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &stage, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Stage = Stage(stage)
		c.Status = Status(status)
		result = append(result, c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountByStage(ctx context.Context, userID string) ([]StageCount, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT stage, COUNT(*)
		FROM contacts
		WHERE user_id = $1 AND status = 'active'
		GROUP BY stage
		ORDER BY CASE stage
			WHEN 'new_lead' THEN 1
			WHEN 'contacted' THEN 2
			WHEN 'viewing_scheduled' THEN 3
			WHEN 'offer_made' THEN 4
			WHEN 'negotiation' THEN 5
			WHEN 'closed_won' THEN 6
			WHEN 'closed_lost' THEN 7
			ELSE 8
		END
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []StageCount
	for rows.Next() {
		var sc StageCount
		var stage string
		if err := rows.Scan(&stage, &sc.Count); err != nil {
			return nil, err
		}
		sc.Stage = Stage(stage)
		result = append(result, sc)
	}
	return result, rows.Err()
}

// Migrate creates the contacts table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS contacts (
			id              VARCHAR(36) PRIMARY KEY,
			user_id         VARCHAR(36) NOT NULL,
			name            VARCHAR(255) NOT NULL,
			email           VARCHAR(254) NOT NULL DEFAULT '',
			phone           VARCHAR(32) NOT NULL DEFAULT '',
			stage           VARCHAR(32) NOT NULL DEFAULT 'new_lead',
			status          VARCHAR(16) NOT NULL DEFAULT 'active',
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_contacts_user_status ON contacts(user_id, status);
	`)
	return err
}
