package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
)

// TriggerScanner supplies the rule-kind-specific pieces of the scan: the
// candidate query for Pass A, and target resolution/validation for
// Pass B. The shared progression algorithm lives in LevelProgressor.
type TriggerScanner interface {
	Kind() domain.RuleKind

	// Candidates returns the candidates whose trigger timestamp is
	// after the rule's watermark, each with its base timestamp and
	// product set.
	Candidates(ctx context.Context, rule *domain.ReminderRule, now time.Time) ([]Candidate, error)

	// Target resolves the candidate behind a started history for
	// Pass B. valid is false when the target can no longer receive the
	// sequence (deleted or inactive customer; for unpaid orders, a
	// payment status that moved away from pending).
	Target(ctx context.Context, h *domain.ReminderHistory) (cand *Candidate, valid bool, err error)
}

// NewScanners builds the full scanner set, one per rule kind.
func NewScanners(customers CustomerSource, orders OrderSource) map[domain.RuleKind]TriggerScanner {
	set := []TriggerScanner{
		&customerScanner{
			kind:      domain.KindAbandonedCart,
			customers: customers,
			query:     customers.CartUpdatedSince,
			baseTime:  func(c *domain.Customer) time.Time { return c.CartUpdatedAt },
			products:  func(c *domain.Customer) []string { return c.CartProductIDs },
		},
		&customerScanner{
			kind:      domain.KindRegisteredCustomer,
			customers: customers,
			query:     customers.RegisteredSince,
			baseTime:  func(c *domain.Customer) time.Time { return c.RegisteredAt },
		},
		&customerScanner{
			kind:      domain.KindLastActivity,
			customers: customers,
			query:     customers.ActiveSince,
			baseTime:  func(c *domain.Customer) time.Time { return c.LastActivityAt },
		},
		&customerScanner{
			kind:      domain.KindLastPurchase,
			customers: customers,
			query:     customers.PurchasedSince,
			baseTime:  func(c *domain.Customer) time.Time { return c.LastPurchaseAt },
		},
		&birthdayScanner{customers: customers},
		&orderScanner{
			kind:      domain.KindCompletedOrder,
			customers: customers,
			orders:    orders,
			query:     orders.CompletedSince,
		},
		&orderScanner{
			kind:      domain.KindUnpaidOrder,
			customers: customers,
			orders:    orders,
			query:     orders.PendingPaymentSince,
			// The sequence stops once the order is no longer awaiting
			// payment.
			stillValid: func(o *domain.Order) bool { return o.PaymentStatus == domain.PaymentPending },
		},
	}

	m := make(map[domain.RuleKind]TriggerScanner, len(set))
	for _, s := range set {
		m[s.Kind()] = s
	}
	return m
}

// customerScanner covers the customer-keyed kinds that trigger off a
// single timestamp on the customer record.
type customerScanner struct {
	kind      domain.RuleKind
	customers CustomerSource
	query     func(ctx context.Context, since time.Time) ([]domain.Customer, error)
	baseTime  func(*domain.Customer) time.Time
	products  func(*domain.Customer) []string
}

func (s *customerScanner) Kind() domain.RuleKind { return s.kind }

func (s *customerScanner) Candidates(ctx context.Context, rule *domain.ReminderRule, _ time.Time) ([]Candidate, error) {
	found, err := s.query(ctx, rule.WatermarkUTC)
	if err != nil {
		return nil, fmt.Errorf("%s candidates: %w", s.kind, err)
	}
	out := make([]Candidate, 0, len(found))
	for i := range found {
		c := Candidate{Customer: found[i], BaseTime: s.baseTime(&found[i])}
		if s.products != nil {
			c.ProductIDs = s.products(&found[i])
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *customerScanner) Target(ctx context.Context, h *domain.ReminderHistory) (*Candidate, bool, error) {
	cust, err := s.customers.Get(ctx, h.CustomerID)
	if err != nil {
		return nil, false, fmt.Errorf("load customer %s: %w", h.CustomerID, err)
	}
	if cust == nil || !cust.Reachable() {
		return nil, false, nil
	}
	cand := &Candidate{Customer: *cust}
	if s.products != nil {
		cand.ProductIDs = s.products(cust)
	}
	return cand, true, nil
}

// birthdayScanner matches customers whose stored birthday contains the
// "MM-dd" token for today shifted by the first level's day offset. There
// is no elapsed-time basis: once the date matches, the first level is
// due immediately, so the base timestamp is back-dated by the first
// level's offset.
type birthdayScanner struct {
	customers CustomerSource
}

func (s *birthdayScanner) Kind() domain.RuleKind { return domain.KindBirthday }

func (s *birthdayScanner) Candidates(ctx context.Context, rule *domain.ReminderRule, now time.Time) ([]Candidate, error) {
	first := rule.FirstLevel()
	if first == nil {
		return nil, nil
	}
	token := now.AddDate(0, 0, first.OffsetDays).Format("01-02")
	found, err := s.customers.BirthdayMatching(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("birthday candidates: %w", err)
	}
	base := now.Add(-first.Offset())
	out := make([]Candidate, 0, len(found))
	for i := range found {
		out = append(out, Candidate{Customer: found[i], BaseTime: base})
	}
	return out, nil
}

func (s *birthdayScanner) Target(ctx context.Context, h *domain.ReminderHistory) (*Candidate, bool, error) {
	cust, err := s.customers.Get(ctx, h.CustomerID)
	if err != nil {
		return nil, false, fmt.Errorf("load customer %s: %w", h.CustomerID, err)
	}
	if cust == nil || !cust.Reachable() {
		return nil, false, nil
	}
	return &Candidate{Customer: *cust}, true, nil
}

// orderScanner covers the order-keyed kinds. Histories carry both the
// customer and order id.
type orderScanner struct {
	kind       domain.RuleKind
	customers  CustomerSource
	orders     OrderSource
	query      func(ctx context.Context, since time.Time) ([]domain.Order, error)
	stillValid func(*domain.Order) bool
}

func (s *orderScanner) Kind() domain.RuleKind { return s.kind }

func (s *orderScanner) Candidates(ctx context.Context, rule *domain.ReminderRule, _ time.Time) ([]Candidate, error) {
	found, err := s.query(ctx, rule.WatermarkUTC)
	if err != nil {
		return nil, fmt.Errorf("%s candidates: %w", s.kind, err)
	}
	out := make([]Candidate, 0, len(found))
	for i := range found {
		order := found[i]
		cust, err := s.customers.Get(ctx, order.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("load customer %s for order %s: %w", order.CustomerID, order.ID, err)
		}
		if cust == nil || !cust.Reachable() {
			continue
		}
		out = append(out, Candidate{
			Customer:   *cust,
			Order:      &order,
			BaseTime:   order.CreatedAt,
			ProductIDs: order.ProductIDs,
		})
	}
	return out, nil
}

func (s *orderScanner) Target(ctx context.Context, h *domain.ReminderHistory) (*Candidate, bool, error) {
	order, err := s.orders.Get(ctx, h.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("load order %s: %w", h.OrderID, err)
	}
	if order == nil {
		return nil, false, nil
	}
	if s.stillValid != nil && !s.stillValid(order) {
		return nil, false, nil
	}
	cust, err := s.customers.Get(ctx, h.CustomerID)
	if err != nil {
		return nil, false, fmt.Errorf("load customer %s: %w", h.CustomerID, err)
	}
	if cust == nil || !cust.Reachable() {
		return nil, false, nil
	}
	return &Candidate{
		Customer:   *cust,
		Order:      order,
		BaseTime:   order.CreatedAt,
		ProductIDs: order.ProductIDs,
	}, true, nil
}
