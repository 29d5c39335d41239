package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/northcart/reminder-engine/internal/domain"
)

// TaskRunner is the engine's entry point. One Run call per rule kind
// performs the full scan: Pass A over fresh candidates, then Pass B over
// started histories, rule by rule.
type TaskRunner struct {
	rules    RuleStore
	scanners map[domain.RuleKind]TriggerScanner
	prog     *LevelProgressor
	now      func() time.Time
}

// NewTaskRunner wires the runner.
func NewTaskRunner(rules RuleStore, scanners map[domain.RuleKind]TriggerScanner, prog *LevelProgressor) *TaskRunner {
	return &TaskRunner{
		rules:    rules,
		scanners: scanners,
		prog:     prog,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the runner's clock and the progressor's with it.
func (r *TaskRunner) SetClock(now func() time.Time) {
	r.now = now
	r.prog.SetClock(now)
}

// Run scans all active, in-window rules of the given kind. When ruleID
// is non-empty the scan is restricted to that rule and its active flag
// and validity window are ignored, so administrators can force a
// targeted re-run.
//
// A failure inside one rule's scan (dispatch or history write) aborts
// the remainder of that rule's scan but not the other rules of the
// invocation; per-candidate isolation is deliberately not attempted.
func (r *TaskRunner) Run(ctx context.Context, kind domain.RuleKind, ruleID string) error {
	scanner, ok := r.scanners[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoScanner, kind)
	}

	var rules []domain.ReminderRule
	if ruleID != "" {
		rule, err := r.rules.Get(ctx, ruleID)
		if err != nil {
			return err
		}
		if rule.Kind != kind {
			return fmt.Errorf("%w: rule %s is %s, task is %s", ErrKindMismatch, ruleID, rule.Kind, kind)
		}
		rules = []domain.ReminderRule{*rule}
	} else {
		var err error
		rules, err = r.rules.ListActive(ctx, kind, r.now())
		if err != nil {
			return fmt.Errorf("list %s rules: %w", kind, err)
		}
	}

	var firstErr error
	for i := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runRule(ctx, scanner, &rules[i]); err != nil {
			log.Printf("[reminder.TaskRunner] rule %s (%s) aborted: %v", rules[i].ID, kind, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *TaskRunner) runRule(ctx context.Context, scanner TriggerScanner, rule *domain.ReminderRule) error {
	candidates, err := scanner.Candidates(ctx, rule, r.now())
	if err != nil {
		return err
	}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.prog.ProcessCandidate(ctx, rule, &candidates[i]); err != nil {
			return err
		}
	}
	return r.prog.ProgressHistories(ctx, rule, scanner)
}
