package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/northcart/reminder-engine/internal/domain"
)

// AccountRepo implements dispatch.AccountStore against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed email account store.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.EmailAccount, error) {
	var a domain.EmailAccount
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(display_name,'') FROM email_accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &a.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email account %s: %w", id, err)
	}
	return &a, nil
}

func (r *AccountRepo) First(ctx context.Context) (*domain.EmailAccount, error) {
	var a domain.EmailAccount
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(display_name,'')
		FROM email_accounts ORDER BY created_at LIMIT 1
	`).Scan(&a.ID, &a.Email, &a.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get first email account: %w", err)
	}
	return &a, nil
}

// OutboxRepo implements dispatch.OutboxStore against PostgreSQL. The
// transport worker drains this table ordered by priority, created_at.
type OutboxRepo struct{ db *sql.DB }

// NewOutboxRepo creates a Postgres-backed outbound queue.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

func (r *OutboxRepo) Enqueue(ctx context.Context, m *domain.OutboundMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder_outbound_queue
			(id, from_email, from_name, to_email, to_name, bcc, subject, body, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'queued', $10)
	`, m.ID, m.From, m.FromName, m.To, m.ToName, pq.Array(m.Bcc),
		m.Subject, m.Body, m.Priority, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue message %s: %w", m.ID, err)
	}
	return nil
}

// ActivityRepo implements dispatch.ActivityStore against PostgreSQL.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity log.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Record(ctx context.Context, e *domain.ActivityEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder_activity_log (id, key, entity_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.Key, e.EntityID, e.Comment, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record activity %s: %w", e.Key, err)
	}
	return nil
}
