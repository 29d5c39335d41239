package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

// RuleRepo implements reminder.RuleStore against PostgreSQL. Levels and
// conditions are stored as JSONB alongside the rule row; levels are
// sorted by sequence number on load so the engine sees normalized input.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `id, name, kind, active, valid_from, valid_to, watermark_utc,
	       allow_renew, renew_cooldown_days, levels, conditions, created_at, updated_at`

func (r *RuleRepo) ListActive(ctx context.Context, kind domain.RuleKind, now time.Time) ([]domain.ReminderRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM reminder_rules
		WHERE kind = $1 AND active = TRUE AND valid_from <= $2 AND valid_to >= $2
		ORDER BY created_at
	`, kind, now)
	if err != nil {
		return nil, fmt.Errorf("list %s rules: %w", kind, err)
	}
	defer rows.Close()

	var out []domain.ReminderRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*domain.ReminderRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM reminder_rules WHERE id = $1
	`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, reminder.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*domain.ReminderRule, error) {
	var rule domain.ReminderRule
	var levelsJSON, conditionsJSON []byte
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Kind, &rule.Active,
		&rule.ValidFrom, &rule.ValidTo, &rule.WatermarkUTC,
		&rule.AllowRenew, &rule.RenewCooldownDays,
		&levelsJSON, &conditionsJSON,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(levelsJSON, &rule.Levels); err != nil {
		return nil, fmt.Errorf("decode levels of rule %s: %w", rule.ID, err)
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of rule %s: %w", rule.ID, err)
		}
	}
	// Administrators store levels in authoring order; normalize here.
	sort.SliceStable(rule.Levels, func(i, j int) bool {
		return rule.Levels[i].SequenceNumber < rule.Levels[j].SequenceNumber
	})
	return &rule, nil
}

// HistoryRepo implements reminder.HistoryStore against PostgreSQL. The
// level log is stored as JSONB; writes replace the whole row inside one
// statement, keeping each candidate's update atomic.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

const historyColumns = `id, rule_id, kind, customer_id, COALESCE(order_id,''), status, started_at, ended_at, levels`

func (r *HistoryRepo) ListByKey(ctx context.Context, ruleID string, key reminder.CandidateKey) ([]domain.ReminderHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM reminder_histories
		WHERE rule_id = $1 AND customer_id = $2 AND COALESCE(order_id,'') = $3
		ORDER BY started_at
	`, ruleID, key.CustomerID, key.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list histories for rule %s: %w", ruleID, err)
	}
	defer rows.Close()
	return collectHistories(rows)
}

func (r *HistoryRepo) ListStarted(ctx context.Context, ruleID string) ([]domain.ReminderHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM reminder_histories
		WHERE rule_id = $1 AND status = $2
		ORDER BY started_at
	`, ruleID, domain.HistoryStarted)
	if err != nil {
		return nil, fmt.Errorf("list started histories for rule %s: %w", ruleID, err)
	}
	defer rows.Close()
	return collectHistories(rows)
}

func collectHistories(rows *sql.Rows) ([]domain.ReminderHistory, error) {
	var out []domain.ReminderHistory
	for rows.Next() {
		var h domain.ReminderHistory
		var levelsJSON []byte
		var ended sql.NullTime
		if err := rows.Scan(&h.ID, &h.RuleID, &h.Kind, &h.CustomerID, &h.OrderID,
			&h.Status, &h.StartedAt, &ended, &levelsJSON); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			h.EndedAt = &t
		}
		if err := json.Unmarshal(levelsJSON, &h.Levels); err != nil {
			return nil, fmt.Errorf("decode levels of history %s: %w", h.ID, err)
		}
		sort.SliceStable(h.Levels, func(i, j int) bool {
			return h.Levels[i].SentAt.Before(h.Levels[j].SentAt)
		})
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) Create(ctx context.Context, h *domain.ReminderHistory) error {
	levelsJSON, err := json.Marshal(h.Levels)
	if err != nil {
		return fmt.Errorf("encode levels of history %s: %w", h.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reminder_histories
			(id, rule_id, kind, customer_id, order_id, status, started_at, ended_at, levels)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8, $9)
	`, h.ID, h.RuleID, h.Kind, h.CustomerID, h.OrderID, h.Status, h.StartedAt, h.EndedAt, levelsJSON)
	if err != nil {
		return fmt.Errorf("create history %s: %w", h.ID, err)
	}
	return nil
}

func (r *HistoryRepo) Update(ctx context.Context, h *domain.ReminderHistory) error {
	levelsJSON, err := json.Marshal(h.Levels)
	if err != nil {
		return fmt.Errorf("encode levels of history %s: %w", h.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE reminder_histories
		SET status = $2, ended_at = $3, levels = $4
		WHERE id = $1
	`, h.ID, h.Status, h.EndedAt, levelsJSON)
	if err != nil {
		return fmt.Errorf("update history %s: %w", h.ID, err)
	}
	return nil
}
