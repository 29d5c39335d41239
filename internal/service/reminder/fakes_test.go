package reminder_test

import (
	"context"
	"sync"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

// memHistories is an in-memory reminder.HistoryStore.
type memHistories struct {
	mu   sync.Mutex
	rows map[string]*domain.ReminderHistory // keyed by id
}

func newMemHistories() *memHistories {
	return &memHistories{rows: make(map[string]*domain.ReminderHistory)}
}

func (m *memHistories) ListByKey(_ context.Context, ruleID string, key reminder.CandidateKey) ([]domain.ReminderHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReminderHistory
	for _, h := range m.rows {
		if h.RuleID == ruleID && h.CustomerID == key.CustomerID && h.OrderID == key.OrderID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memHistories) ListStarted(_ context.Context, ruleID string) ([]domain.ReminderHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReminderHistory
	for _, h := range m.rows {
		if h.RuleID == ruleID && h.Status == domain.HistoryStarted {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memHistories) Create(_ context.Context, h *domain.ReminderHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.rows[cp.ID] = &cp
	return nil
}

func (m *memHistories) Update(_ context.Context, h *domain.ReminderHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.rows[cp.ID] = &cp
	return nil
}

// all returns a snapshot of every stored history.
func (m *memHistories) all() []domain.ReminderHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReminderHistory
	for _, h := range m.rows {
		out = append(out, *h)
	}
	return out
}

func (m *memHistories) startedCount(ruleID string, key reminder.CandidateKey) int {
	n := 0
	for _, h := range m.all() {
		if h.RuleID == ruleID && h.CustomerID == key.CustomerID && h.OrderID == key.OrderID && h.Status == domain.HistoryStarted {
			n++
		}
	}
	return n
}

// memRules is an in-memory reminder.RuleStore.
type memRules struct {
	rules map[string]*domain.ReminderRule
}

func newMemRules(rules ...*domain.ReminderRule) *memRules {
	m := &memRules{rules: make(map[string]*domain.ReminderRule)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRules) ListActive(_ context.Context, kind domain.RuleKind, now time.Time) ([]domain.ReminderRule, error) {
	var out []domain.ReminderRule
	for _, r := range m.rules {
		if r.Kind == kind && r.Active && r.InWindow(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRules) Get(_ context.Context, id string) (*domain.ReminderRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, reminder.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

// sentRecord is one dispatched level, captured by fakeDispatcher.
type sentRecord struct {
	RuleID   string
	Sequence int
	Customer string
	Order    string
}

// fakeDispatcher records dispatches; Fail makes every call error.
type fakeDispatcher struct {
	mu       sync.Mutex
	Sent     []sentRecord
	Fail     error
	Attempts int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, rule *domain.ReminderRule, level *domain.ReminderLevel, cand *reminder.Candidate) error {
	f.mu.Lock()
	f.Attempts++
	f.mu.Unlock()
	if f.Fail != nil {
		return f.Fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := sentRecord{RuleID: rule.ID, Sequence: level.SequenceNumber, Customer: cand.Customer.ID}
	if cand.Order != nil {
		rec.Order = cand.Order.ID
	}
	f.Sent = append(f.Sent, rec)
	return nil
}

// memCustomers is an in-memory reminder.CustomerSource.
type memCustomers struct {
	customers map[string]*domain.Customer
}

func newMemCustomers(customers ...*domain.Customer) *memCustomers {
	m := &memCustomers{customers: make(map[string]*domain.Customer)}
	for _, c := range customers {
		m.customers[c.ID] = c
	}
	return m
}

func (m *memCustomers) Get(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCustomers) query(pred func(*domain.Customer) bool) []domain.Customer {
	var out []domain.Customer
	for _, c := range m.customers {
		if c.Reachable() && pred(c) {
			out = append(out, *c)
		}
	}
	return out
}

func (m *memCustomers) CartUpdatedSince(_ context.Context, since time.Time) ([]domain.Customer, error) {
	return m.query(func(c *domain.Customer) bool {
		return c.CartUpdatedAt.After(since) && len(c.CartProductIDs) > 0
	}), nil
}

func (m *memCustomers) RegisteredSince(_ context.Context, since time.Time) ([]domain.Customer, error) {
	return m.query(func(c *domain.Customer) bool { return c.RegisteredAt.After(since) }), nil
}

func (m *memCustomers) ActiveSince(_ context.Context, since time.Time) ([]domain.Customer, error) {
	return m.query(func(c *domain.Customer) bool { return c.LastActivityAt.After(since) }), nil
}

func (m *memCustomers) PurchasedSince(_ context.Context, since time.Time) ([]domain.Customer, error) {
	return m.query(func(c *domain.Customer) bool { return c.LastPurchaseAt.After(since) }), nil
}

func (m *memCustomers) BirthdayMatching(_ context.Context, token string) ([]domain.Customer, error) {
	return m.query(func(c *domain.Customer) bool {
		return token != "" && c.Birthday != "" && containsSubstring(c.Birthday, token)
	}), nil
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// memOrders is an in-memory reminder.OrderSource.
type memOrders struct {
	orders map[string]*domain.Order
}

func newMemOrders(orders ...*domain.Order) *memOrders {
	m := &memOrders{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) CompletedSince(_ context.Context, since time.Time) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderComplete && o.CreatedAt.After(since) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) PendingPaymentSince(_ context.Context, since time.Time) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.PaymentStatus == domain.PaymentPending && o.CreatedAt.After(since) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// memCatalog is an in-memory reminder.CatalogSource.
type memCatalog struct {
	categories  map[string][]string // product -> category ids
	collections map[string][]string
}

func (m *memCatalog) CategoryIDs(_ context.Context, productID string) ([]string, error) {
	return m.categories[productID], nil
}

func (m *memCatalog) CollectionIDs(_ context.Context, productID string) ([]string, error) {
	return m.collections[productID], nil
}
