package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northcart/reminder-engine/internal/dispatch"
	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

type memAccounts struct {
	byID  map[string]*domain.EmailAccount
	first *domain.EmailAccount
}

func (m *memAccounts) Get(_ context.Context, id string) (*domain.EmailAccount, error) {
	return m.byID[id], nil
}

func (m *memAccounts) First(_ context.Context) (*domain.EmailAccount, error) {
	return m.first, nil
}

type memOutbox struct {
	messages []*domain.OutboundMessage
	fail     error
}

func (m *memOutbox) Enqueue(_ context.Context, msg *domain.OutboundMessage) error {
	if m.fail != nil {
		return m.fail
	}
	m.messages = append(m.messages, msg)
	return nil
}

type memActivity struct {
	entries []*domain.ActivityEntry
}

func (m *memActivity) Record(_ context.Context, e *domain.ActivityEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func testLevel() *domain.ReminderLevel {
	return &domain.ReminderLevel{
		ID:               "lv-1",
		SequenceNumber:   1,
		MessageAccountID: "acct-1",
		Subject:          "Hi {{ customer.first_name }}",
		Body:             "<p>Your cart misses you, {{ customer.full_name }}.</p>",
		Bcc:              []string{"audit@shop.test"},
	}
}

func testRule() *domain.ReminderRule {
	return &domain.ReminderRule{ID: "rule-1", Name: "Cart nudge", Kind: domain.KindAbandonedCart}
}

func testCandidate() *reminder.Candidate {
	return &reminder.Candidate{
		Customer: domain.Customer{
			ID: "c1", Email: "jane@shop.test", FirstName: "Jane", LastName: "Doe", Active: true,
		},
	}
}

func TestDispatchRendersAndEnqueues(t *testing.T) {
	accounts := &memAccounts{byID: map[string]*domain.EmailAccount{
		"acct-1": {ID: "acct-1", Email: "hello@shop.test", DisplayName: "Northcart"},
	}}
	outbox := &memOutbox{}
	activity := &memActivity{}
	d := dispatch.New(accounts, outbox, activity)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return now })

	err := d.Dispatch(context.Background(), testRule(), testLevel(), testCandidate())
	require.NoError(t, err)

	require.Len(t, outbox.messages, 1)
	msg := outbox.messages[0]
	assert.Equal(t, "Hi Jane", msg.Subject)
	assert.Equal(t, "<p>Your cart misses you, Jane Doe.</p>", msg.Body)
	assert.Equal(t, "hello@shop.test", msg.From)
	assert.Equal(t, "Northcart", msg.FromName)
	assert.Equal(t, "jane@shop.test", msg.To)
	assert.Equal(t, "Jane Doe", msg.ToName)
	assert.Equal(t, []string{"audit@shop.test"}, msg.Bcc)
	assert.Equal(t, domain.PriorityHigh, msg.Priority)
	assert.Equal(t, now, msg.CreatedAt)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, "CustomerReminder.AbandonedCart", activity.entries[0].Key)
	assert.Equal(t, "c1", activity.entries[0].EntityID)
}

func TestDispatchOrderBindings(t *testing.T) {
	accounts := &memAccounts{first: &domain.EmailAccount{ID: "a", Email: "hello@shop.test"}}
	outbox := &memOutbox{}
	d := dispatch.New(accounts, outbox, &memActivity{})

	level := testLevel()
	level.MessageAccountID = ""
	level.Subject = "Order {{ order.number }}"
	level.Body = "Total: {{ order.total }}"

	cand := testCandidate()
	cand.Order = &domain.Order{ID: "o1", Number: "1001", Total: 49.90}

	rule := testRule()
	rule.Kind = domain.KindUnpaidOrder

	require.NoError(t, d.Dispatch(context.Background(), rule, level, cand))
	require.Len(t, outbox.messages, 1)
	assert.Equal(t, "Order 1001", outbox.messages[0].Subject)
	assert.Equal(t, "Total: 49.9", outbox.messages[0].Body)
}

func TestDispatchFallsBackToFirstAccount(t *testing.T) {
	// Unknown account id resolves silently to the first available one.
	accounts := &memAccounts{
		byID:  map[string]*domain.EmailAccount{},
		first: &domain.EmailAccount{ID: "fallback", Email: "store@shop.test", DisplayName: "Store"},
	}
	outbox := &memOutbox{}
	d := dispatch.New(accounts, outbox, &memActivity{})

	require.NoError(t, d.Dispatch(context.Background(), testRule(), testLevel(), testCandidate()))
	require.Len(t, outbox.messages, 1)
	assert.Equal(t, "store@shop.test", outbox.messages[0].From)
}

func TestDispatchFailsWithoutAnyAccount(t *testing.T) {
	d := dispatch.New(&memAccounts{byID: map[string]*domain.EmailAccount{}}, &memOutbox{}, &memActivity{})
	err := d.Dispatch(context.Background(), testRule(), testLevel(), testCandidate())
	require.Error(t, err)
}

func TestDispatchPropagatesEnqueueFailure(t *testing.T) {
	accounts := &memAccounts{first: &domain.EmailAccount{ID: "a", Email: "a@shop.test"}}
	outbox := &memOutbox{fail: errors.New("queue full")}
	activity := &memActivity{}
	d := dispatch.New(accounts, outbox, activity)

	level := testLevel()
	level.MessageAccountID = ""

	err := d.Dispatch(context.Background(), testRule(), level, testCandidate())
	require.Error(t, err)
	assert.Empty(t, activity.entries, "no activity entry for a failed enqueue")
}
