// Package store provides the SQLite-backed reservation record for the
// inventory service.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa; the consumer goroutines write while the HTTP read endpoint may be
// listing stock.
//
// Every saga mutation (allocate, commit, release) runs inside one transaction
// covering all line items of the order: either every row changes or none
// does. Commit and release additionally record an applied-action marker per
// order, making them safe against the duplicate deliveries an at-least-once
// broker will produce.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/domain"

	// Register the pure-Go SQLite driver. No CGO, so Alpine images build clean.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
    id                  TEXT    PRIMARY KEY,
    product_id          TEXT    NOT NULL UNIQUE,
    quantity_on_hand    INTEGER NOT NULL CHECK (quantity_on_hand >= 0),
    quantity_reserved   INTEGER NOT NULL DEFAULT 0
        CHECK (quantity_reserved >= 0 AND quantity_reserved <= quantity_on_hand)
);

-- One row per (order, action) already applied. Duplicate deliveries of the
-- same payment outcome find their marker here and become no-ops.
CREATE TABLE IF NOT EXISTS applied_actions (
    order_id    TEXT NOT NULL,
    action      TEXT NOT NULL,
    applied_at  TEXT NOT NULL,
    PRIMARY KEY (order_id, action)
);
`

const (
	actionAllocate = "allocate"
	actionCommit   = "commit"
	actionRelease  = "release"
)

// Store is the inventory service's durable record of stock and reservations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("inventory store: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("inventory store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Allocate reserves stock for every line item of the order, or for none of
// them. It returns false when any item has insufficient available stock,
// a business outcome rather than an error. Unknown products are auto-provisioned at
// the default stock level. A duplicate delivery of an already-allocated order
// is a no-op reporting success.
func (s *Store) Allocate(ctx context.Context, orderID string, items []events.OrderItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("inventory store: begin allocate: %w", err)
	}
	defer tx.Rollback()

	applied, err := actionApplied(ctx, tx, orderID, actionAllocate)
	if err != nil {
		return false, err
	}
	if applied {
		return true, nil
	}

	for _, it := range items {
		item, err := itemForProduct(ctx, tx, it.ProductID)
		if err != nil {
			return false, err
		}
		if item.Available() < it.Quantity {
			// Rolls back every reservation made for this order so far.
			return false, nil
		}
		if err := updateQuantities(ctx, tx, it.ProductID, item.QuantityOnHand, item.QuantityReserved+it.Quantity); err != nil {
			return false, err
		}
	}

	if err := markApplied(ctx, tx, orderID, actionAllocate); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("inventory store: commit allocate for %q: %w", orderID, err)
	}
	return true, nil
}

// Commit finalizes a successful payment: both on-hand and reserved quantities
// drop by the committed amount. Missing product rows are skipped, and a
// repeated delivery finds the applied-action marker and changes nothing. The
// decrement is capped at the reserved quantity so that a commit for a
// never-allocated order cannot drive either column negative.
func (s *Store) Commit(ctx context.Context, orderID string, items []events.OrderItem) error {
	return s.applyOnce(ctx, orderID, actionCommit, items, func(item domain.InventoryItem, qty int) (onHand, reserved int) {
		d := min(qty, item.QuantityReserved)
		return item.QuantityOnHand - d, item.QuantityReserved - d
	})
}

// Release undoes a reservation after a failed payment: only the reserved
// quantity drops, stock on hand is untouched. Same idempotency and capping
// rules as Commit.
func (s *Store) Release(ctx context.Context, orderID string, items []events.OrderItem) error {
	return s.applyOnce(ctx, orderID, actionRelease, items, func(item domain.InventoryItem, qty int) (onHand, reserved int) {
		return item.QuantityOnHand, item.QuantityReserved - min(qty, item.QuantityReserved)
	})
}

func (s *Store) applyOnce(ctx context.Context, orderID, action string, items []events.OrderItem,
	mutate func(item domain.InventoryItem, qty int) (onHand, reserved int)) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inventory store: begin %s: %w", action, err)
	}
	defer tx.Rollback()

	applied, err := actionApplied(ctx, tx, orderID, action)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	for _, it := range items {
		item, found, err := lookupItem(ctx, tx, it.ProductID)
		if err != nil {
			return err
		}
		if !found {
			// Tolerated: the reservation may never have existed on this
			// replica, or stock was seeded after the order.
			continue
		}
		onHand, reserved := mutate(item, it.Quantity)
		if err := updateQuantities(ctx, tx, it.ProductID, onHand, reserved); err != nil {
			return err
		}
	}

	if err := markApplied(ctx, tx, orderID, action); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("inventory store: commit %s for %q: %w", action, orderID, err)
	}
	return nil
}

// List returns every inventory item, ordered by product ID.
func (s *Store) List(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, quantity_on_hand, quantity_reserved
		 FROM inventory_items ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("inventory store: list: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		var it domain.InventoryItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.QuantityOnHand, &it.QuantityReserved); err != nil {
			return nil, fmt.Errorf("inventory store: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get returns the item for one product.
func (s *Store) Get(ctx context.Context, productID string) (domain.InventoryItem, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, false, fmt.Errorf("inventory store: begin get: %w", err)
	}
	defer tx.Rollback()
	return lookupItem(ctx, tx, productID)
}

// Upsert creates or replaces the stock row for a product. Used by the seed
// endpoint, not by the saga.
func (s *Store) Upsert(ctx context.Context, item domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_items (id, product_id, quantity_on_hand, quantity_reserved)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET
		     quantity_on_hand = excluded.quantity_on_hand,
		     quantity_reserved = excluded.quantity_reserved`,
		item.ID, item.ProductID, item.QuantityOnHand, item.QuantityReserved)
	if err != nil {
		return fmt.Errorf("inventory store: upsert %q: %w", item.ProductID, err)
	}
	return nil
}

// itemForProduct loads the row for a product, auto-provisioning it with the
// default stock level on first reference.
func itemForProduct(ctx context.Context, tx *sql.Tx, productID string) (domain.InventoryItem, error) {
	item, found, err := lookupItem(ctx, tx, productID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if found {
		return item, nil
	}

	item = domain.InventoryItem{
		ID:             uuid.NewString(),
		ProductID:      productID,
		QuantityOnHand: domain.DefaultStockLevel,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_items (id, product_id, quantity_on_hand, quantity_reserved)
		 VALUES (?, ?, ?, 0)`,
		item.ID, item.ProductID, item.QuantityOnHand)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("inventory store: provision %q: %w", productID, err)
	}
	return item, nil
}

func lookupItem(ctx context.Context, tx *sql.Tx, productID string) (domain.InventoryItem, bool, error) {
	var it domain.InventoryItem
	err := tx.QueryRowContext(ctx,
		`SELECT id, product_id, quantity_on_hand, quantity_reserved
		 FROM inventory_items WHERE product_id = ?`, productID).
		Scan(&it.ID, &it.ProductID, &it.QuantityOnHand, &it.QuantityReserved)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryItem{}, false, nil
	}
	if err != nil {
		return domain.InventoryItem{}, false, fmt.Errorf("inventory store: lookup %q: %w", productID, err)
	}
	return it, true, nil
}

func updateQuantities(ctx context.Context, tx *sql.Tx, productID string, onHand, reserved int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE inventory_items SET quantity_on_hand = ?, quantity_reserved = ? WHERE product_id = ?`,
		onHand, reserved, productID)
	if err != nil {
		return fmt.Errorf("inventory store: update %q: %w", productID, err)
	}
	return nil
}

func actionApplied(ctx context.Context, tx *sql.Tx, orderID, action string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM applied_actions WHERE order_id = ? AND action = ?`, orderID, action).
		Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inventory store: check %s marker for %q: %w", action, orderID, err)
	}
	return true, nil
}

func markApplied(ctx context.Context, tx *sql.Tx, orderID, action string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO applied_actions (order_id, action, applied_at) VALUES (?, ?, ?)`,
		orderID, action, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inventory store: mark %s for %q: %w", action, orderID, err)
	}
	return nil
}
