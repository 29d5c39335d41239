package domain

import "time"

// Customer is the storefront customer as seen by the reminder engine.
// Timestamp fields are zero when the event never happened.
type Customer struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Active    bool   `json:"active" db:"active"`
	Deleted   bool   `json:"deleted" db:"deleted"`
	// Birthday is stored as free-form text; matching uses an "MM-dd"
	// token so full-date strings with any year still match.
	Birthday       string            `json:"birthday" db:"birthday"`
	TagIDs         []string          `json:"tag_ids,omitempty"`
	GroupIDs       []string          `json:"group_ids,omitempty"`
	RegisterFields map[string]string `json:"register_fields,omitempty"`
	// RawAttributes holds the customer's selected custom attribute
	// values in their stored encoding; an AttributeParser decodes them.
	RawAttributes  string   `json:"raw_attributes,omitempty" db:"raw_attributes"`
	CartProductIDs []string `json:"cart_product_ids,omitempty"`

	RegisteredAt   time.Time `json:"registered_at" db:"registered_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	LastPurchaseAt time.Time `json:"last_purchase_at" db:"last_purchase_at"`
	CartUpdatedAt  time.Time `json:"cart_updated_at" db:"cart_updated_at"`
}

// FullName joins first and last name for message headers.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Reachable reports whether the engine may still contact this customer.
func (c *Customer) Reachable() bool {
	return c.Active && !c.Deleted && c.Email != ""
}

// AttributeValue is one decoded custom-attribute selection.
type AttributeValue struct {
	AttributeID string `json:"attribute_id"`
	ValueID     string `json:"value_id"`
}

// OrderStatus enumerates order lifecycle states relevant to reminders.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderComplete  OrderStatus = "complete"
	OrderCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment states relevant to reminders.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentVoided   PaymentStatus = "voided"
)

// Order is the slice of an order the engine needs for order-keyed rules.
type Order struct {
	ID            string        `json:"id" db:"id"`
	Number        string        `json:"number" db:"number"`
	CustomerID    string        `json:"customer_id" db:"customer_id"`
	Status        OrderStatus   `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	Total         float64       `json:"total" db:"total"`
	ProductIDs    []string      `json:"product_ids,omitempty"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
