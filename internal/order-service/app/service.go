// Package app holds the order service's business operations: accepting new
// orders (which starts the saga by publishing order.created) and applying
// payment outcomes observed on the order_updates queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/store"
)

// OrderStore is the slice of the store this service needs.
type OrderStore interface {
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	Finalize(ctx context.Context, id string, status domain.OrderStatus, reason string) error
}

// EventPublisher sends one event onto a destination. Satisfied by
// messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, msg any, destination, exchange string) error
}

type Service struct {
	store     OrderStore
	publisher EventPublisher
}

func NewService(store OrderStore, publisher EventPublisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// CreateOrderInput is the validated order submission.
type CreateOrderInput struct {
	CustomerName string
	CardNumber   string
	Items        []domain.OrderItem
}

// CreateOrder persists a PENDING order and publishes order.created. The
// publish failure is surfaced to the caller: the order stays PENDING and the
// client decides whether to resubmit.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:           uuid.NewString(),
		CustomerName: input.CustomerName,
		CardNumber:   input.CardNumber,
		Status:       domain.StatusPending,
		Items:        input.Items,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, it := range input.Items {
		order.Total += it.Subtotal()
	}

	if err := s.store.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}

	evt := events.OrderCreated{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		Amount:       order.Total,
		CardNumber:   order.CardNumber,
		CreatedAt:    order.CreatedAt,
		Items:        eventItems(order.Items),
	}
	if err := s.publisher.Publish(ctx, evt, events.KeyOrderCreated, events.ExchangeOrder); err != nil {
		return domain.Order{}, fmt.Errorf("order accepted but not announced: %w", err)
	}

	slog.InfoContext(ctx, "order created", "order_id", order.ID, "total", order.Total)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.store.List(ctx)
}

// HandlePaymentOutcome finalizes the order from a PaymentProcessed event.
// Unknown or already-terminal orders are logged and dropped: under
// at-least-once delivery a duplicate outcome is normal, not an error.
func (s *Service) HandlePaymentOutcome(ctx context.Context, evt events.PaymentProcessed) error {
	status := domain.StatusCompleted
	if !evt.Success {
		status = domain.StatusFailed
	}

	err := s.store.Finalize(ctx, evt.OrderID, status, evt.Reason)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "payment outcome for unknown order dropped", "order_id", evt.OrderID)
		return nil
	case errors.Is(err, store.ErrNotPending):
		slog.WarnContext(ctx, "payment outcome for finalized order dropped", "order_id", evt.OrderID)
		return nil
	case err != nil:
		return err
	}

	slog.InfoContext(ctx, "order finalized",
		"order_id", evt.OrderID, "status", string(status), "reason", evt.Reason)
	return nil
}

func eventItems(items []domain.OrderItem) []events.OrderItem {
	out := make([]events.OrderItem, len(items))
	for i, it := range items {
		out[i] = events.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}
