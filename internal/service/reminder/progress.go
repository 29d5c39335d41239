package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northcart/reminder-engine/internal/domain"
)

// LevelProgressor owns the shared two-pass algorithm: Pass A creates (or
// renews) histories for fresh candidates by sending the first level;
// Pass B advances or closes every started history. Conditions are
// checked only at first send or renewal, never during progression.
type LevelProgressor struct {
	histories HistoryStore
	dispatch  Dispatcher
	eval      *ConditionEvaluator
	now       func() time.Time
}

// NewLevelProgressor wires the progressor. now is swappable for tests.
func NewLevelProgressor(histories HistoryStore, dispatch Dispatcher, eval *ConditionEvaluator) *LevelProgressor {
	return &LevelProgressor{
		histories: histories,
		dispatch:  dispatch,
		eval:      eval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the progressor's clock.
func (p *LevelProgressor) SetClock(now func() time.Time) { p.now = now }

// ProcessCandidate is Pass A for one candidate. It is a no-op when a
// started history exists (Pass B owns it), when a completed history
// blocks renewal, when the first level is not yet due, or when the
// rule's conditions reject the candidate.
func (p *LevelProgressor) ProcessCandidate(ctx context.Context, rule *domain.ReminderRule, cand *Candidate) error {
	key := cand.Key()
	existing, err := p.histories.ListByKey(ctx, rule.ID, key)
	if err != nil {
		return fmt.Errorf("load histories for rule %s: %w", rule.ID, err)
	}

	var lastEnded time.Time
	for i := range existing {
		if existing[i].Status == domain.HistoryStarted {
			return nil
		}
		if existing[i].EndedAt != nil && existing[i].EndedAt.After(lastEnded) {
			lastEnded = *existing[i].EndedAt
		}
	}

	now := p.now()
	if len(existing) > 0 {
		if !rule.AllowRenew {
			return nil
		}
		cooldown := time.Duration(rule.RenewCooldownDays) * 24 * time.Hour
		if !now.After(lastEnded.Add(cooldown)) {
			return nil
		}
	}

	first := rule.FirstLevel()
	if first == nil {
		return nil
	}
	if now.Before(cand.BaseTime.Add(first.Offset())) {
		return nil
	}

	pass, err := p.eval.Evaluate(ctx, rule.Conditions, &cand.Customer, cand.ProductIDs)
	if err != nil {
		return err
	}
	if !pass {
		return nil
	}

	if err := p.dispatch.Dispatch(ctx, rule, first, cand); err != nil {
		return fmt.Errorf("dispatch level %d of rule %s: %w", first.SequenceNumber, rule.ID, err)
	}

	h := &domain.ReminderHistory{
		ID:         uuid.New().String(),
		RuleID:     rule.ID,
		Kind:       rule.Kind,
		CustomerID: key.CustomerID,
		OrderID:    key.OrderID,
		Status:     domain.HistoryStarted,
		StartedAt:  now,
		Levels: []domain.HistoryLevel{{
			SequenceNumber: first.SequenceNumber,
			LevelID:        first.ID,
			SentAt:         now,
		}},
	}
	// Single-level rules still start here; the next progression scan
	// closes them when no higher level exists.
	if err := p.histories.Create(ctx, h); err != nil {
		return fmt.Errorf("create history for rule %s: %w", rule.ID, err)
	}
	return nil
}

// ProgressHistories is Pass B: it runs over every started history of the
// rule regardless of whether the candidate still matches the Pass A
// predicate, so lapsed candidates are still advanced or closed.
func (p *LevelProgressor) ProgressHistories(ctx context.Context, rule *domain.ReminderRule, scanner TriggerScanner) error {
	started, err := p.histories.ListStarted(ctx, rule.ID)
	if err != nil {
		return fmt.Errorf("load started histories for rule %s: %w", rule.ID, err)
	}

	for i := range started {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.progressOne(ctx, rule, scanner, &started[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *LevelProgressor) progressOne(ctx context.Context, rule *domain.ReminderRule, scanner TriggerScanner, h *domain.ReminderHistory) error {
	last := h.LastLevel()
	if last == nil {
		// A started history always has at least one sent level; an
		// empty log means the row is corrupt, close it.
		return p.close(ctx, h)
	}

	next := rule.NextLevel(last.SequenceNumber)

	cand, valid, err := scanner.Target(ctx, h)
	if err != nil {
		return err
	}
	if next == nil || !valid {
		return p.close(ctx, h)
	}

	now := p.now()
	if now.Before(last.SentAt.Add(next.Offset())) {
		return nil
	}

	if err := p.dispatch.Dispatch(ctx, rule, next, cand); err != nil {
		return fmt.Errorf("dispatch level %d of rule %s: %w", next.SequenceNumber, rule.ID, err)
	}

	h.Levels = append(h.Levels, domain.HistoryLevel{
		SequenceNumber: next.SequenceNumber,
		LevelID:        next.ID,
		SentAt:         now,
	})
	if next.SequenceNumber == rule.MaxSequence() {
		h.Status = domain.HistoryCompleted
		h.EndedAt = &now
	}
	if err := p.histories.Update(ctx, h); err != nil {
		return fmt.Errorf("update history %s: %w", h.ID, err)
	}
	return nil
}

func (p *LevelProgressor) close(ctx context.Context, h *domain.ReminderHistory) error {
	now := p.now()
	h.Status = domain.HistoryCompleted
	h.EndedAt = &now
	if err := p.histories.Update(ctx, h); err != nil {
		return fmt.Errorf("close history %s: %w", h.ID, err)
	}
	return nil
}
