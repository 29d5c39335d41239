package domain

import "time"

// MessagePriority orders the outbound queue. Reminder sends always go
// out high priority.
type MessagePriority int

const (
	PriorityLow  MessagePriority = 0
	PriorityHigh MessagePriority = 5
)

// EmailAccount is a configured sender identity.
type EmailAccount struct {
	ID          string `json:"id" db:"id"`
	Email       string `json:"email" db:"email"`
	DisplayName string `json:"display_name" db:"display_name"`
}

// OutboundMessage is one rendered email persisted to the outbound queue.
// Delivery is handled by a separate transport worker; enqueueing here is
// what "sending" means to the reminder engine.
type OutboundMessage struct {
	ID        string          `json:"id" db:"id"`
	From      string          `json:"from" db:"from_email"`
	FromName  string          `json:"from_name" db:"from_name"`
	To        string          `json:"to" db:"to_email"`
	ToName    string          `json:"to_name" db:"to_name"`
	Bcc       []string        `json:"bcc,omitempty"`
	Subject   string          `json:"subject" db:"subject"`
	Body      string          `json:"body" db:"body"`
	Priority  MessagePriority `json:"priority" db:"priority"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ActivityEntry is one row in the platform activity log.
type ActivityEntry struct {
	ID        string    `json:"id" db:"id"`
	Key       string    `json:"key" db:"key"`
	EntityID  string    `json:"entity_id" db:"entity_id"`
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
