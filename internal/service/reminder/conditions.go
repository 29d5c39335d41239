package reminder

import (
	"context"
	"fmt"

	"github.com/northcart/reminder-engine/internal/domain"
)

// conditionFn evaluates a single condition against a candidate.
type conditionFn func(ctx context.Context, cond *domain.ReminderCondition, customer *domain.Customer, productIDs []string) (bool, error)

// ConditionEvaluator checks a rule's condition list against a candidate.
// Each kind has its own evaluator registered in a dispatch map.
//
// The aggregate result deliberately reproduces the platform's historical
// behavior: every condition in the list is evaluated, but the returned
// boolean is the result of the LAST condition. An empty list always
// passes. Callers relying on AND semantics must configure a single
// condition.
type ConditionEvaluator struct {
	catalog    CatalogSource
	attrs      AttributeParser
	evaluators map[domain.ConditionKind]conditionFn
}

// NewConditionEvaluator creates an evaluator backed by the given catalog
// lookups and attribute parser.
func NewConditionEvaluator(catalog CatalogSource, attrs AttributeParser) *ConditionEvaluator {
	e := &ConditionEvaluator{catalog: catalog, attrs: attrs}
	e.evaluators = map[domain.ConditionKind]conditionFn{
		domain.CondCategory:        e.evalCategory,
		domain.CondProduct:         e.evalProduct,
		domain.CondCollection:      e.evalCollection,
		domain.CondCustomerTag:     e.evalCustomerTag,
		domain.CondCustomerGroup:   e.evalCustomerGroup,
		domain.CondRegisterField:   e.evalRegisterField,
		domain.CondCustomAttribute: e.evalCustomAttribute,
	}
	return e
}

// Evaluate runs every condition and returns the last condition's result.
// An empty condition list evaluates to true.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, conditions []domain.ReminderCondition, customer *domain.Customer, productIDs []string) (bool, error) {
	result := true
	for i := range conditions {
		cond := &conditions[i]
		fn, ok := e.evaluators[cond.Kind]
		if !ok {
			return false, fmt.Errorf("unknown condition kind %q", cond.Kind)
		}
		pass, err := fn(ctx, cond, customer, productIDs)
		if err != nil {
			return false, fmt.Errorf("evaluate %s condition %s: %w", cond.Kind, cond.ID, err)
		}
		result = pass
	}
	return result, nil
}

// evalMembership implements the Category/Collection semantics over a
// per-product membership lookup. AllOfThem requires every listed id on
// every candidate product; OneOfThem passes on the first product that
// belongs to any listed id.
func (e *ConditionEvaluator) evalMembership(ctx context.Context, cond *domain.ReminderCondition, productIDs []string, lookup func(context.Context, string) ([]string, error)) (bool, error) {
	switch cond.Mode {
	case domain.ModeAllOfThem:
		for _, pid := range productIDs {
			member, err := lookup(ctx, pid)
			if err != nil {
				return false, err
			}
			for _, want := range cond.TargetIDs {
				if !contains(member, want) {
					return false, nil
				}
			}
		}
		return true, nil
	default: // OneOfThem
		for _, pid := range productIDs {
			member, err := lookup(ctx, pid)
			if err != nil {
				return false, err
			}
			for _, want := range cond.TargetIDs {
				if contains(member, want) {
					return true, nil
				}
			}
		}
		return false, nil
	}
}

func (e *ConditionEvaluator) evalCategory(ctx context.Context, cond *domain.ReminderCondition, _ *domain.Customer, productIDs []string) (bool, error) {
	return e.evalMembership(ctx, cond, productIDs, e.catalog.CategoryIDs)
}

func (e *ConditionEvaluator) evalCollection(ctx context.Context, cond *domain.ReminderCondition, _ *domain.Customer, productIDs []string) (bool, error) {
	return e.evalMembership(ctx, cond, productIDs, e.catalog.CollectionIDs)
}

func (e *ConditionEvaluator) evalProduct(_ context.Context, cond *domain.ReminderCondition, _ *domain.Customer, productIDs []string) (bool, error) {
	return matchIDSet(cond.Mode, cond.TargetIDs, productIDs), nil
}

func (e *ConditionEvaluator) evalCustomerTag(_ context.Context, cond *domain.ReminderCondition, customer *domain.Customer, _ []string) (bool, error) {
	return matchIDSet(cond.Mode, cond.TargetIDs, customer.TagIDs), nil
}

func (e *ConditionEvaluator) evalCustomerGroup(_ context.Context, cond *domain.ReminderCondition, customer *domain.Customer, _ []string) (bool, error) {
	return matchIDSet(cond.Mode, cond.TargetIDs, customer.GroupIDs), nil
}

func (e *ConditionEvaluator) evalRegisterField(_ context.Context, cond *domain.ReminderCondition, customer *domain.Customer, _ []string) (bool, error) {
	if cond.Mode == domain.ModeAllOfThem {
		for k, v := range cond.Fields {
			if customer.RegisterFields[k] != v {
				return false, nil
			}
		}
		return true, nil
	}
	for k, v := range cond.Fields {
		if customer.RegisterFields[k] == v {
			return true, nil
		}
	}
	return false, nil
}

func (e *ConditionEvaluator) evalCustomAttribute(_ context.Context, cond *domain.ReminderCondition, customer *domain.Customer, _ []string) (bool, error) {
	selected := e.attrs.Parse(customer.RawAttributes)
	if len(selected) == 0 && cond.Mode == domain.ModeAllOfThem {
		return false, nil
	}
	if cond.Mode == domain.ModeAllOfThem {
		for _, token := range cond.AttributeTokens {
			if !attributeMatches(token, selected) {
				return false, nil
			}
		}
		return true, nil
	}
	for _, token := range cond.AttributeTokens {
		if attributeMatches(token, selected) {
			return true, nil
		}
	}
	return false, nil
}

// attributeMatches checks one "attributeId:valueId" token against the
// customer's selections. A token without the separator matches nothing.
func attributeMatches(token string, selected []domain.AttributeValue) bool {
	attrID, valueID, ok := splitAttributeToken(token)
	if !ok {
		return false
	}
	for _, s := range selected {
		if s.AttributeID == attrID && s.ValueID == valueID {
			return true
		}
	}
	return false
}

// matchIDSet applies All/One semantics: AllOfThem requires have to be a
// superset of want; OneOfThem requires any intersection.
func matchIDSet(mode domain.ConditionMode, want, have []string) bool {
	if mode == domain.ModeAllOfThem {
		for _, w := range want {
			if !contains(have, w) {
				return false
			}
		}
		return true
	}
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
