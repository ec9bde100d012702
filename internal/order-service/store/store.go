// Package store persists orders for the order service in SQLite. The status
// column moves from PENDING to a terminal state exactly once; Finalize guards
// the transition in SQL so that concurrent or duplicate payment outcomes
// cannot overwrite a terminal status.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"

	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no order exists for the given ID.
	ErrNotFound = errors.New("order store: order not found")

	// ErrNotPending is returned by Finalize when the order already reached a
	// terminal status. Saga handlers log and drop it: a duplicate payment
	// outcome is expected under at-least-once delivery.
	ErrNotPending = errors.New("order store: order is not pending")
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id             TEXT PRIMARY KEY,
    customer_name  TEXT NOT NULL,
    card_number    TEXT NOT NULL DEFAULT '',
    total          REAL NOT NULL,
    status         TEXT NOT NULL,
    reason         TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
    order_id    TEXT NOT NULL REFERENCES orders(id),
    product_id  TEXT NOT NULL,
    quantity    INTEGER NOT NULL,
    unit_price  REAL NOT NULL,
    PRIMARY KEY (order_id, product_id)
);
`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("order store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("order store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new order with its items in one transaction.
func (s *Store) Create(ctx context.Context, order domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order store: begin create: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_name, card_number, total, status, reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.CustomerName, order.CardNumber, order.Total,
		string(order.Status), order.Reason, formatTime(order.CreatedAt), formatTime(order.UpdatedAt))
	if err != nil {
		return fmt.Errorf("order store: insert order %q: %w", order.ID, err)
	}

	for _, it := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			order.ID, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("order store: insert item %q for order %q: %w", it.ProductID, order.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order store: commit create %q: %w", order.ID, err)
	}
	return nil
}

// Get returns one order with its items, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	var status, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_name, card_number, total, status, reason, created_at, updated_at
		 FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.CustomerName, &o.CardNumber, &o.Total, &status, &o.Reason, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("order store: get %q: %w", id, err)
	}

	o.Status = domain.OrderStatus(status)
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Order{}, err
	}
	if o.Items, err = s.itemsFor(ctx, id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// List returns all orders, newest first, without their items.
func (s *Store) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_name, total, status, reason, created_at, updated_at
		 FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("order store: list: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var status, createdAt, updatedAt string
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.Total, &status, &o.Reason, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("order store: scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		if o.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Finalize transitions an order from PENDING to the given terminal status,
// exactly once. Returns ErrNotFound for unknown orders and ErrNotPending when
// the order already left PENDING.
func (s *Store) Finalize(ctx context.Context, id string, status domain.OrderStatus, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("order store: %q is not a terminal status", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), reason, formatTime(time.Now().UTC()), id, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("order store: finalize %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order store: finalize %q: %w", id, err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: distinguish unknown from already-terminal.
	if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrNotPending
}

func (s *Store) itemsFor(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY product_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("order store: items for %q: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("order store: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SQLite has no native datetime type; timestamps are stored as RFC3339 TEXT.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("order store: parse time %q: %w", s, err)
	}
	return t, nil
}
