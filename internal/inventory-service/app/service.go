// Package app wires the inventory store to the broker consumers. Each handler
// runs in a reliable consumer's handler slot: returning an error triggers the
// retry policy, returning nil acknowledges the message. Business rejections
// (insufficient stock, unknown order) are outcomes, not errors; redelivery
// would not change them.
package app

import (
	"context"
	"log/slog"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
)

// InventoryStore is the slice of the store the saga handlers need.
type InventoryStore interface {
	Allocate(ctx context.Context, orderID string, items []events.OrderItem) (bool, error)
	Commit(ctx context.Context, orderID string, items []events.OrderItem) error
	Release(ctx context.Context, orderID string, items []events.OrderItem) error
}

// Service holds the saga handlers of the inventory service.
type Service struct {
	store InventoryStore
}

func NewService(store InventoryStore) *Service {
	return &Service{store: store}
}

// HandleOrderCreated reserves stock for every line item of the order, or for
// none. An allocation rejected for insufficient stock is logged and the
// message acknowledged; no compensating event is published for it.
func (s *Service) HandleOrderCreated(ctx context.Context, evt events.OrderCreated) error {
	allocated, err := s.store.Allocate(ctx, evt.OrderID, evt.Items)
	if err != nil {
		return err
	}
	if !allocated {
		slog.WarnContext(ctx, "stock allocation rejected", "order_id", evt.OrderID)
		return nil
	}
	slog.InfoContext(ctx, "stock allocated", "order_id", evt.OrderID)
	return nil
}

// HandleCommit finalizes the reservation after a successful payment.
func (s *Service) HandleCommit(ctx context.Context, evt events.PaymentProcessed) error {
	if err := s.store.Commit(ctx, evt.OrderID, evt.Items); err != nil {
		return err
	}
	slog.InfoContext(ctx, "stock committed", "order_id", evt.OrderID)
	return nil
}

// HandleRelease frees the reservation after a failed payment.
func (s *Service) HandleRelease(ctx context.Context, evt events.PaymentProcessed) error {
	if err := s.store.Release(ctx, evt.OrderID, evt.Items); err != nil {
		return err
	}
	slog.InfoContext(ctx, "stock released", "order_id", evt.OrderID, "reason", evt.Reason)
	return nil
}

// HandlePaymentOutcome serves the wildcard payment.* consumer: it dispatches
// to commit or release based on the outcome. The store's per-order markers
// make the overlap with the dedicated commit/release queues a no-op.
func (s *Service) HandlePaymentOutcome(ctx context.Context, evt events.PaymentProcessed) error {
	if evt.Success {
		return s.HandleCommit(ctx, evt)
	}
	return s.HandleRelease(ctx, evt)
}
