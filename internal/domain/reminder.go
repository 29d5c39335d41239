package domain

import (
	"fmt"
	"time"
)

// RuleKind enumerates the trigger types a reminder rule can be built on.
type RuleKind string

const (
	KindAbandonedCart      RuleKind = "abandoned_cart"
	KindRegisteredCustomer RuleKind = "registered_customer"
	KindLastActivity       RuleKind = "last_activity"
	KindLastPurchase       RuleKind = "last_purchase"
	KindBirthday           RuleKind = "birthday"
	KindCompletedOrder     RuleKind = "completed_order"
	KindUnpaidOrder        RuleKind = "unpaid_order"
)

// AllRuleKinds lists every kind in scan order.
var AllRuleKinds = []RuleKind{
	KindAbandonedCart,
	KindRegisteredCustomer,
	KindLastActivity,
	KindLastPurchase,
	KindBirthday,
	KindCompletedOrder,
	KindUnpaidOrder,
}

var ruleKindTitles = map[RuleKind]string{
	KindAbandonedCart:      "AbandonedCart",
	KindRegisteredCustomer: "RegisteredCustomer",
	KindLastActivity:       "LastActivity",
	KindLastPurchase:       "LastPurchase",
	KindBirthday:           "Birthday",
	KindCompletedOrder:     "CompletedOrder",
	KindUnpaidOrder:        "UnpaidOrder",
}

// Title returns the PascalCase label used in activity-log keys.
func (k RuleKind) Title() string {
	if t, ok := ruleKindTitles[k]; ok {
		return t
	}
	return string(k)
}

// OrderKeyed reports whether histories for this kind are keyed by
// (customer, order) rather than customer alone.
func (k RuleKind) OrderKeyed() bool {
	return k == KindCompletedOrder || k == KindUnpaidOrder
}

// ParseRuleKind converts a string to a RuleKind.
func ParseRuleKind(s string) (RuleKind, error) {
	k := RuleKind(s)
	if _, ok := ruleKindTitles[k]; !ok {
		return "", fmt.Errorf("unknown rule kind %q", s)
	}
	return k, nil
}

// ConditionKind enumerates what a reminder condition matches against.
type ConditionKind string

const (
	CondCategory        ConditionKind = "category"
	CondProduct         ConditionKind = "product"
	CondCollection      ConditionKind = "collection"
	CondCustomerTag     ConditionKind = "customer_tag"
	CondCustomerGroup   ConditionKind = "customer_group"
	CondRegisterField   ConditionKind = "register_field"
	CondCustomAttribute ConditionKind = "custom_attribute"
)

// ConditionMode controls how a condition's entries are combined.
type ConditionMode string

const (
	ModeAllOfThem ConditionMode = "all_of_them"
	ModeOneOfThem ConditionMode = "one_of_them"
)

// ReminderRule is a configured reminder campaign. Rules are authored by
// administrators; the engine treats them as read-only, including the
// watermark.
type ReminderRule struct {
	ID                string              `json:"id" db:"id"`
	Name              string              `json:"name" db:"name"`
	Kind              RuleKind            `json:"kind" db:"kind"`
	Active            bool                `json:"active" db:"active"`
	ValidFrom         time.Time           `json:"valid_from" db:"valid_from"`
	ValidTo           time.Time           `json:"valid_to" db:"valid_to"`
	WatermarkUTC      time.Time           `json:"watermark_utc" db:"watermark_utc"`
	AllowRenew        bool                `json:"allow_renew" db:"allow_renew"`
	RenewCooldownDays int                 `json:"renew_cooldown_days" db:"renew_cooldown_days"`
	Levels            []ReminderLevel     `json:"levels"`
	Conditions        []ReminderCondition `json:"conditions"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

// InWindow reports whether the rule's validity window contains t.
func (r *ReminderRule) InWindow(t time.Time) bool {
	return !t.Before(r.ValidFrom) && !t.After(r.ValidTo)
}

// FirstLevel returns the level with the lowest sequence number, or nil.
// Levels are kept sorted by the data-access layer.
func (r *ReminderRule) FirstLevel() *ReminderLevel {
	if len(r.Levels) == 0 {
		return nil
	}
	return &r.Levels[0]
}

// NextLevel returns the first level whose sequence number is greater
// than seq, or nil when the sequence is exhausted.
func (r *ReminderRule) NextLevel(seq int) *ReminderLevel {
	for i := range r.Levels {
		if r.Levels[i].SequenceNumber > seq {
			return &r.Levels[i]
		}
	}
	return nil
}

// MaxSequence returns the highest sequence number among the rule's levels.
func (r *ReminderRule) MaxSequence() int {
	max := 0
	for i := range r.Levels {
		if r.Levels[i].SequenceNumber > max {
			max = r.Levels[i].SequenceNumber
		}
	}
	return max
}

// ReminderLevel is one step in a rule's timed sequence. The offset is
// measured from the previous sent level, or from the trigger timestamp
// for the first level. Levels are immutable once referenced by a sent
// history entry.
type ReminderLevel struct {
	ID               string   `json:"id"`
	SequenceNumber   int      `json:"sequence_number"`
	OffsetDays       int      `json:"offset_days"`
	OffsetHours      int      `json:"offset_hours"`
	OffsetMinutes    int      `json:"offset_minutes"`
	MessageAccountID string   `json:"message_account_id"`
	Subject          string   `json:"subject"`
	Body             string   `json:"body"`
	Bcc              []string `json:"bcc,omitempty"`
}

// Offset returns the level's delay as a duration.
func (l *ReminderLevel) Offset() time.Duration {
	return time.Duration(l.OffsetDays)*24*time.Hour +
		time.Duration(l.OffsetHours)*time.Hour +
		time.Duration(l.OffsetMinutes)*time.Minute
}

// ReminderCondition gates a rule. Which payload field is used depends on
// the kind: TargetIDs for catalog/tag/group kinds, Fields for register
// fields, AttributeTokens ("attributeId:valueId") for custom attributes.
type ReminderCondition struct {
	ID              string            `json:"id"`
	Kind            ConditionKind     `json:"kind"`
	Mode            ConditionMode     `json:"mode"`
	TargetIDs       []string          `json:"target_ids,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
	AttributeTokens []string          `json:"attribute_tokens,omitempty"`
}

// HistoryStatus enumerates the lifecycle states of a reminder history.
type HistoryStatus string

const (
	HistoryStarted   HistoryStatus = "started"
	HistoryCompleted HistoryStatus = "completed_reminder"
)

// ReminderHistory is the persisted progress record for one candidate
// under one rule. OrderID is set only for order-keyed kinds. The level
// log is append-only and strictly increasing by SentAt.
type ReminderHistory struct {
	ID         string         `json:"id" db:"id"`
	RuleID     string         `json:"rule_id" db:"rule_id"`
	Kind       RuleKind       `json:"kind" db:"kind"`
	CustomerID string         `json:"customer_id" db:"customer_id"`
	OrderID    string         `json:"order_id,omitempty" db:"order_id"`
	Status     HistoryStatus  `json:"status" db:"status"`
	StartedAt  time.Time      `json:"started_at" db:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty" db:"ended_at"`
	Levels     []HistoryLevel `json:"levels"`
}

// HistoryLevel records one sent level.
type HistoryLevel struct {
	SequenceNumber int       `json:"sequence_number"`
	LevelID        string    `json:"level_id"`
	SentAt         time.Time `json:"sent_at"`
}

// LastLevel returns the history entry with the latest SentAt, or nil for
// an empty log.
func (h *ReminderHistory) LastLevel() *HistoryLevel {
	var last *HistoryLevel
	for i := range h.Levels {
		if last == nil || h.Levels[i].SentAt.After(last.SentAt) {
			last = &h.Levels[i]
		}
	}
	return last
}
