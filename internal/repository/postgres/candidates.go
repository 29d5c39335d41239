package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/northcart/reminder-engine/internal/domain"
)

// CustomerRepo implements reminder.CustomerSource against PostgreSQL.
// Every candidate query already filters to reachable customers (active,
// not deleted, with an email).
type CustomerRepo struct{ db *sql.DB }

// NewCustomerRepo creates a Postgres-backed customer source.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `id, email, COALESCE(first_name,''), COALESCE(last_name,''),
	       active, deleted, COALESCE(birthday,''), tag_ids, group_ids,
	       register_fields, COALESCE(raw_attributes,''), cart_product_ids,
	       registered_at, last_activity_at, last_purchase_at, cart_updated_at`

const reachable = `active = TRUE AND deleted = FALSE AND email <> ''`

func (r *CustomerRepo) Get(ctx context.Context, id string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE id = $1
	`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return c, nil
}

func (r *CustomerRepo) CartUpdatedSince(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	return r.query(ctx, `cart_updated_at > $1 AND array_length(cart_product_ids, 1) > 0`, since)
}

func (r *CustomerRepo) RegisteredSince(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	return r.query(ctx, `registered_at > $1`, since)
}

func (r *CustomerRepo) ActiveSince(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	return r.query(ctx, `last_activity_at > $1`, since)
}

func (r *CustomerRepo) PurchasedSince(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	return r.query(ctx, `last_purchase_at > $1`, since)
}

// BirthdayMatching uses substring containment so a stored full date like
// "1985-06-14" still matches the "06-14" token.
func (r *CustomerRepo) BirthdayMatching(ctx context.Context, token string) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE `+reachable+` AND position($1 in birthday) > 0
	`, token)
	if err != nil {
		return nil, fmt.Errorf("birthday customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

func (r *CustomerRepo) query(ctx context.Context, where string, since time.Time) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE `+reachable+` AND `+where+`
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

func collectCustomers(rows *sql.Rows) ([]domain.Customer, error) {
	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var fieldsJSON []byte
	var registered, activity, purchase, cart sql.NullTime
	err := row.Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName,
		&c.Active, &c.Deleted, &c.Birthday,
		pq.Array(&c.TagIDs), pq.Array(&c.GroupIDs),
		&fieldsJSON, &c.RawAttributes, pq.Array(&c.CartProductIDs),
		&registered, &activity, &purchase, &cart,
	)
	if err != nil {
		return nil, err
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &c.RegisterFields); err != nil {
			return nil, fmt.Errorf("decode register fields of customer %s: %w", c.ID, err)
		}
	}
	if registered.Valid {
		c.RegisteredAt = registered.Time
	}
	if activity.Valid {
		c.LastActivityAt = activity.Time
	}
	if purchase.Valid {
		c.LastPurchaseAt = purchase.Time
	}
	if cart.Valid {
		c.CartUpdatedAt = cart.Time
	}
	return &c, nil
}

// OrderRepo implements reminder.OrderSource against PostgreSQL.
type OrderRepo struct{ db *sql.DB }

// NewOrderRepo creates a Postgres-backed order source.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, number, customer_id, status, payment_status, total, product_ids, created_at`

func (r *OrderRepo) Get(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Total, pq.Array(&o.ProductIDs), &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepo) CompletedSince(ctx context.Context, since time.Time) ([]domain.Order, error) {
	return r.query(ctx, `status = 'complete' AND created_at > $1`, since)
}

func (r *OrderRepo) PendingPaymentSince(ctx context.Context, since time.Time) ([]domain.Order, error) {
	return r.query(ctx, `payment_status = 'pending' AND created_at > $1`, since)
}

func (r *OrderRepo) query(ctx context.Context, where string, since time.Time) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE `+where+`
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Number, &o.CustomerID, &o.Status, &o.PaymentStatus,
			&o.Total, pq.Array(&o.ProductIDs), &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CatalogRepo implements reminder.CatalogSource against PostgreSQL.
type CatalogRepo struct{ db *sql.DB }

// NewCatalogRepo creates a Postgres-backed catalog source.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) CategoryIDs(ctx context.Context, productID string) ([]string, error) {
	return r.memberIDs(ctx, `SELECT category_id FROM product_categories WHERE product_id = $1`, productID)
}

func (r *CatalogRepo) CollectionIDs(ctx context.Context, productID string) ([]string, error) {
	return r.memberIDs(ctx, `SELECT collection_id FROM product_collections WHERE product_id = $1`, productID)
}

func (r *CatalogRepo) memberIDs(ctx context.Context, q, productID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, productID)
	if err != nil {
		return nil, fmt.Errorf("catalog membership for product %s: %w", productID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
