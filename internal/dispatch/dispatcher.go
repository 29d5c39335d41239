// Package dispatch turns a fired reminder level into an outbound-queue
// row and an activity-log entry. Delivery itself belongs to the
// transport worker; from the engine's point of view a reminder is sent
// once it is enqueued here.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

// AccountStore resolves sender identities. Get returns (nil, nil) when
// the id is unknown.
type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.EmailAccount, error)
	First(ctx context.Context) (*domain.EmailAccount, error)
}

// OutboxStore persists rendered messages to the outbound queue.
type OutboxStore interface {
	Enqueue(ctx context.Context, m *domain.OutboundMessage) error
}

// ActivityStore records platform activity-log entries.
type ActivityStore interface {
	Record(ctx context.Context, e *domain.ActivityEntry) error
}

// Dispatcher renders a level's subject/body templates and enqueues the
// message at high priority. It implements reminder.Dispatcher.
type Dispatcher struct {
	accounts AccountStore
	outbox   OutboxStore
	activity ActivityStore
	engine   *liquid.Engine
	now      func() time.Time
}

// New creates a dispatcher.
func New(accounts AccountStore, outbox OutboxStore, activity ActivityStore) *Dispatcher {
	return &Dispatcher{
		accounts: accounts,
		outbox:   outbox,
		activity: activity,
		engine:   liquid.NewEngine(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the dispatcher's clock.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Dispatch renders and enqueues the message for one fired level, then
// writes the activity-log entry.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *domain.ReminderRule, level *domain.ReminderLevel, cand *reminder.Candidate) error {
	account, err := d.resolveAccount(ctx, level.MessageAccountID)
	if err != nil {
		return err
	}

	bindings := d.bindings(rule, level, cand)
	subject, err := d.engine.ParseAndRenderString(level.Subject, bindings)
	if err != nil {
		return fmt.Errorf("render subject for level %s: %w", level.ID, err)
	}
	body, err := d.engine.ParseAndRenderString(level.Body, bindings)
	if err != nil {
		return fmt.Errorf("render body for level %s: %w", level.ID, err)
	}

	msg := &domain.OutboundMessage{
		ID:        uuid.New().String(),
		From:      account.Email,
		FromName:  account.DisplayName,
		To:        cand.Customer.Email,
		ToName:    cand.Customer.FullName(),
		Bcc:       level.Bcc,
		Subject:   subject,
		Body:      body,
		Priority:  domain.PriorityHigh,
		CreatedAt: d.now(),
	}
	if err := d.outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue message for customer %s: %w", cand.Customer.ID, err)
	}

	entry := &domain.ActivityEntry{
		ID:        uuid.New().String(),
		Key:       "CustomerReminder." + rule.Kind.Title(),
		EntityID:  cand.Customer.ID,
		Comment:   fmt.Sprintf("Sent reminder level %d of rule %q to %s", level.SequenceNumber, rule.Name, cand.Customer.Email),
		CreatedAt: d.now(),
	}
	if err := d.activity.Record(ctx, entry); err != nil {
		return fmt.Errorf("record activity for customer %s: %w", cand.Customer.ID, err)
	}
	return nil
}

// resolveAccount loads the level's account, silently falling back to the
// first configured account when the id is missing or unknown.
func (d *Dispatcher) resolveAccount(ctx context.Context, id string) (*domain.EmailAccount, error) {
	if id != "" {
		account, err := d.accounts.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load account %s: %w", id, err)
		}
		if account != nil {
			return account, nil
		}
	}
	account, err := d.accounts.First(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fallback account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("no email account configured")
	}
	return account, nil
}

func (d *Dispatcher) bindings(rule *domain.ReminderRule, level *domain.ReminderLevel, cand *reminder.Candidate) map[string]interface{} {
	b := map[string]interface{}{
		"customer": map[string]interface{}{
			"first_name": cand.Customer.FirstName,
			"last_name":  cand.Customer.LastName,
			"full_name":  cand.Customer.FullName(),
			"email":      cand.Customer.Email,
		},
		"rule": map[string]interface{}{
			"name": rule.Name,
			"kind": string(rule.Kind),
		},
		"level": map[string]interface{}{
			"sequence": level.SequenceNumber,
		},
	}
	if cand.Order != nil {
		b["order"] = map[string]interface{}{
			"id":     cand.Order.ID,
			"number": cand.Order.Number,
			"total":  cand.Order.Total,
		}
	}
	return b
}
