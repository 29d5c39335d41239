package reminder

import (
	"context"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
)

// CandidateKey identifies one candidate under one rule. OrderID is empty
// for customer-keyed kinds.
type CandidateKey struct {
	CustomerID string
	OrderID    string
}

// Candidate is a customer (or order) being considered for a rule, with
// the base timestamp the first level's delay is measured from and the
// product set conditions evaluate against.
type Candidate struct {
	Customer   domain.Customer
	Order      *domain.Order
	BaseTime   time.Time
	ProductIDs []string
}

// Key returns the history key for this candidate.
func (c *Candidate) Key() CandidateKey {
	k := CandidateKey{CustomerID: c.Customer.ID}
	if c.Order != nil {
		k.OrderID = c.Order.ID
	}
	return k
}

// RuleStore loads rule definitions. Implementations must return Levels
// sorted ascending by SequenceNumber; the engine relies on that
// normalization for deterministic progression.
type RuleStore interface {
	// ListActive returns the active rules of the given kind whose
	// validity window contains now.
	ListActive(ctx context.Context, kind domain.RuleKind, now time.Time) ([]domain.ReminderRule, error)

	// Get returns a rule regardless of its active flag or window, for
	// targeted re-runs. Returns ErrRuleNotFound when missing.
	Get(ctx context.Context, id string) (*domain.ReminderRule, error)
}

// HistoryStore persists per-candidate progress. Each Create/Update must
// be atomic so an aborted scan never leaves a torn history.
type HistoryStore interface {
	// ListByKey returns every history for (rule, key), any status.
	ListByKey(ctx context.Context, ruleID string, key CandidateKey) ([]domain.ReminderHistory, error)

	// ListStarted returns the rule's histories with status started.
	ListStarted(ctx context.Context, ruleID string) ([]domain.ReminderHistory, error)

	Create(ctx context.Context, h *domain.ReminderHistory) error
	Update(ctx context.Context, h *domain.ReminderHistory) error
}

// CustomerSource is the read-only candidate query port over customers.
// Every query returns only reachable customers (active, not deleted,
// with an email) whose relevant timestamp is after since.
type CustomerSource interface {
	Get(ctx context.Context, id string) (*domain.Customer, error)
	CartUpdatedSince(ctx context.Context, since time.Time) ([]domain.Customer, error)
	RegisteredSince(ctx context.Context, since time.Time) ([]domain.Customer, error)
	ActiveSince(ctx context.Context, since time.Time) ([]domain.Customer, error)
	PurchasedSince(ctx context.Context, since time.Time) ([]domain.Customer, error)

	// BirthdayMatching returns reachable customers whose stored
	// birthday contains the "MM-dd" token as a substring.
	BirthdayMatching(ctx context.Context, token string) ([]domain.Customer, error)
}

// OrderSource is the read-only candidate query port over orders.
type OrderSource interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	CompletedSince(ctx context.Context, since time.Time) ([]domain.Order, error)
	PendingPaymentSince(ctx context.Context, since time.Time) ([]domain.Order, error)
}

// CatalogSource resolves product membership for condition evaluation.
type CatalogSource interface {
	CategoryIDs(ctx context.Context, productID string) ([]string, error)
	CollectionIDs(ctx context.Context, productID string) ([]string, error)
}

// AttributeParser decodes a customer's stored custom-attribute selection.
type AttributeParser interface {
	Parse(raw string) []domain.AttributeValue
}

// Dispatcher renders and enqueues the outbound message for a fired level
// and records the activity-log entry. Enqueueing is synchronous;
// delivery is not.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *domain.ReminderRule, level *domain.ReminderLevel, cand *Candidate) error
}
