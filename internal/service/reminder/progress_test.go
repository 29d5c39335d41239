package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

var scanEpoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func twoLevelRule() *domain.ReminderRule {
	return &domain.ReminderRule{
		ID:           "rule-1",
		Name:         "Abandoned cart",
		Kind:         domain.KindAbandonedCart,
		Active:       true,
		ValidFrom:    scanEpoch.AddDate(-1, 0, 0),
		ValidTo:      scanEpoch.AddDate(1, 0, 0),
		WatermarkUTC: scanEpoch.AddDate(0, 0, -30),
		Levels: []domain.ReminderLevel{
			{ID: "lv-1", SequenceNumber: 1, OffsetDays: 1, Subject: "s1", Body: "b1"},
			{ID: "lv-2", SequenceNumber: 2, OffsetDays: 3, Subject: "s2", Body: "b2"},
		},
	}
}

type fixture struct {
	histories *memHistories
	dispatch  *fakeDispatcher
	prog      *reminder.LevelProgressor
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		histories: newMemHistories(),
		dispatch:  &fakeDispatcher{},
		now:       scanEpoch,
	}
	eval := reminder.NewConditionEvaluator(&memCatalog{}, reminder.TokenAttributeParser{})
	f.prog = reminder.NewLevelProgressor(f.histories, f.dispatch, eval)
	f.prog.SetClock(func() time.Time { return f.now })
	return f
}

func cartCandidate(customerID string, cartAge time.Duration, now time.Time) *reminder.Candidate {
	return &reminder.Candidate{
		Customer: domain.Customer{
			ID: customerID, Email: customerID + "@shop.test", Active: true,
			CartUpdatedAt:  now.Add(-cartAge),
			CartProductIDs: []string{"p1"},
		},
		BaseTime:   now.Add(-cartAge),
		ProductIDs: []string{"p1"},
	}
}

func TestPassAFiresFirstLevelWhenDue(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	cand := cartCandidate("c1", 48*time.Hour, f.now)

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}

	if len(f.dispatch.Sent) != 1 || f.dispatch.Sent[0].Sequence != 1 {
		t.Fatalf("expected one level-1 send, got %+v", f.dispatch.Sent)
	}
	all := f.histories.all()
	if len(all) != 1 {
		t.Fatalf("expected one history, got %d", len(all))
	}
	h := all[0]
	if h.Status != domain.HistoryStarted {
		t.Fatalf("expected started, got %s", h.Status)
	}
	if len(h.Levels) != 1 || h.Levels[0].SequenceNumber != 1 {
		t.Fatalf("expected one level-1 entry, got %+v", h.Levels)
	}
}

func TestPassASkipsWhenFirstLevelNotDue(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	// Cart only 12h old, first level needs a full day.
	cand := cartCandidate("c1", 12*time.Hour, f.now)

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if len(f.dispatch.Sent) != 0 {
		t.Fatalf("expected no sends, got %+v", f.dispatch.Sent)
	}
	if len(f.histories.all()) != 0 {
		t.Fatal("no history may exist before the first send")
	}
}

func TestPassASkipsStartedHistory(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	cand := cartCandidate("c1", 48*time.Hour, f.now)

	for i := 0; i < 3; i++ {
		if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
			t.Fatalf("pass A run %d: %v", i, err)
		}
	}

	if got := f.histories.startedCount(rule.ID, cand.Key()); got != 1 {
		t.Fatalf("single-active invariant violated: %d started histories", got)
	}
	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(f.dispatch.Sent))
	}
}

func TestPassBAdvancesAndCompletes(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	cand := cartCandidate("c1", 48*time.Hour, f.now)
	customers := newMemCustomers(&cand.Customer)
	scanner := reminder.NewScanners(customers, newMemOrders())[domain.KindAbandonedCart]

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	firstSend := f.now

	// Too early for level 2 (3-day offset from the level-1 send).
	f.now = firstSend.Add(48 * time.Hour)
	if err := f.prog.ProgressHistories(context.Background(), rule, scanner); err != nil {
		t.Fatalf("pass B early: %v", err)
	}
	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("level 2 sent too early: %+v", f.dispatch.Sent)
	}

	// Now due; level 2 is the max sequence, history completes.
	f.now = firstSend.Add(72 * time.Hour)
	if err := f.prog.ProgressHistories(context.Background(), rule, scanner); err != nil {
		t.Fatalf("pass B due: %v", err)
	}
	if len(f.dispatch.Sent) != 2 || f.dispatch.Sent[1].Sequence != 2 {
		t.Fatalf("expected level-2 send, got %+v", f.dispatch.Sent)
	}

	all := f.histories.all()
	if len(all) != 1 {
		t.Fatalf("expected one history, got %d", len(all))
	}
	h := all[0]
	if h.Status != domain.HistoryCompleted {
		t.Fatalf("expected completed, got %s", h.Status)
	}
	if h.EndedAt == nil || !h.EndedAt.Equal(f.now) {
		t.Fatalf("ended_at not set to completion time: %v", h.EndedAt)
	}
	// Monotonic sends.
	for i := 1; i < len(h.Levels); i++ {
		if !h.Levels[i-1].SentAt.Before(h.Levels[i].SentAt) {
			t.Fatalf("level log not strictly increasing: %+v", h.Levels)
		}
	}
}

func TestPassBClosesWhenTargetInvalid(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.Kind = domain.KindUnpaidOrder

	order := &domain.Order{
		ID: "o1", Number: "1001", CustomerID: "c1",
		Status: domain.OrderPending, PaymentStatus: domain.PaymentPending,
		CreatedAt: f.now.Add(-48 * time.Hour), ProductIDs: []string{"p1"},
	}
	customer := &domain.Customer{ID: "c1", Email: "c1@shop.test", Active: true}
	orders := newMemOrders(order)
	scanner := reminder.NewScanners(newMemCustomers(customer), orders)[domain.KindUnpaidOrder]

	cand := &reminder.Candidate{Customer: *customer, Order: order, BaseTime: order.CreatedAt, ProductIDs: order.ProductIDs}
	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("expected level-1 send, got %+v", f.dispatch.Sent)
	}

	// Payment arrives between scans.
	order.PaymentStatus = domain.PaymentPaid
	orders.orders[order.ID] = order

	f.now = f.now.Add(96 * time.Hour)
	if err := f.prog.ProgressHistories(context.Background(), rule, scanner); err != nil {
		t.Fatalf("pass B: %v", err)
	}

	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("no further level may be sent after payment, got %+v", f.dispatch.Sent)
	}
	h := f.histories.all()[0]
	if h.Status != domain.HistoryCompleted {
		t.Fatalf("expected history closed, got %s", h.Status)
	}
	if h.OrderID != "o1" {
		t.Fatalf("history must be keyed by order, got %q", h.OrderID)
	}
}

func TestPassBClosesWhenSequenceExhausted(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.Levels = rule.Levels[:1] // single level

	cand := cartCandidate("c1", 48*time.Hour, f.now)
	scanner := reminder.NewScanners(newMemCustomers(&cand.Customer), newMemOrders())[domain.KindAbandonedCart]

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if err := f.prog.ProgressHistories(context.Background(), rule, scanner); err != nil {
		t.Fatalf("pass B: %v", err)
	}

	h := f.histories.all()[0]
	if h.Status != domain.HistoryCompleted {
		t.Fatalf("expected close on exhausted sequence, got %s", h.Status)
	}
	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("close must not send, got %+v", f.dispatch.Sent)
	}
}

func TestRenewalGate(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.AllowRenew = true
	rule.RenewCooldownDays = 30

	cand := cartCandidate("c1", 48*time.Hour, f.now)

	ended := f.now.AddDate(0, 0, -31)
	completed := &domain.ReminderHistory{
		ID: "h-old", RuleID: rule.ID, Kind: rule.Kind, CustomerID: "c1",
		Status: domain.HistoryCompleted, StartedAt: ended.AddDate(0, 0, -4), EndedAt: &ended,
		Levels: []domain.HistoryLevel{{SequenceNumber: 1, LevelID: "lv-1", SentAt: ended}},
	}
	f.histories.Create(context.Background(), completed)

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}

	if len(f.dispatch.Sent) != 1 {
		t.Fatalf("expected renewal send, got %+v", f.dispatch.Sent)
	}
	all := f.histories.all()
	if len(all) != 2 {
		t.Fatalf("renewal must create a fresh history row, got %d rows", len(all))
	}
	// The old row is untouched.
	for _, h := range all {
		if h.ID == "h-old" && h.Status != domain.HistoryCompleted {
			t.Fatal("renewal mutated the completed history")
		}
	}
}

func TestRenewalBlockedInsideCooldown(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.AllowRenew = true
	rule.RenewCooldownDays = 30

	cand := cartCandidate("c1", 48*time.Hour, f.now)
	ended := f.now.AddDate(0, 0, -10)
	f.histories.Create(context.Background(), &domain.ReminderHistory{
		ID: "h-old", RuleID: rule.ID, Kind: rule.Kind, CustomerID: "c1",
		Status: domain.HistoryCompleted, StartedAt: ended.AddDate(0, 0, -4), EndedAt: &ended,
		Levels: []domain.HistoryLevel{{SequenceNumber: 1, LevelID: "lv-1", SentAt: ended}},
	})

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if len(f.dispatch.Sent) != 0 {
		t.Fatalf("cooldown must block renewal, got %+v", f.dispatch.Sent)
	}
}

func TestRenewalBlockedWhenNotAllowed(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.AllowRenew = false

	cand := cartCandidate("c1", 48*time.Hour, f.now)
	ended := f.now.AddDate(0, 0, -365)
	f.histories.Create(context.Background(), &domain.ReminderHistory{
		ID: "h-old", RuleID: rule.ID, Kind: rule.Kind, CustomerID: "c1",
		Status: domain.HistoryCompleted, StartedAt: ended.AddDate(0, 0, -4), EndedAt: &ended,
		Levels: []domain.HistoryLevel{{SequenceNumber: 1, LevelID: "lv-1", SentAt: ended}},
	})

	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if len(f.dispatch.Sent) != 0 {
		t.Fatalf("renewal must be blocked, got %+v", f.dispatch.Sent)
	}
}

func TestPassAConditionRejectsCandidate(t *testing.T) {
	f := newFixture()
	rule := twoLevelRule()
	rule.Conditions = []domain.ReminderCondition{
		{Kind: domain.CondProduct, Mode: domain.ModeOneOfThem, TargetIDs: []string{"p-not-in-cart"}},
	}

	cand := cartCandidate("c1", 48*time.Hour, f.now)
	if err := f.prog.ProcessCandidate(context.Background(), rule, cand); err != nil {
		t.Fatalf("pass A: %v", err)
	}
	if len(f.dispatch.Sent) != 0 || len(f.histories.all()) != 0 {
		t.Fatal("rejected candidate must not send or create history")
	}
}
