// Package app implements the payment service. It is stateless: each
// OrderCreated event is charged independently and the outcome is published on
// the payment exchange with the order's line items echoed, since this service
// owns no order state of its own.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
)

// authorizationLimit is the deterministic charge rule: amounts at or above it
// are declined.
const authorizationLimit = 1000

const (
	reasonAuthorized        = "Authorized"
	reasonInsufficientFunds = "Insufficient Funds"
)

// EventPublisher sends one event onto a destination. Satisfied by
// messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, msg any, destination, exchange string) error
}

type Processor struct {
	publisher EventPublisher
}

func NewProcessor(publisher EventPublisher) *Processor {
	return &Processor{publisher: publisher}
}

// HandleOrderCreated decides the charge outcome and publishes it. A publish
// failure is returned so the consumer retries the whole handler; the decision
// is deterministic, so a retry reaches the same outcome.
func (p *Processor) HandleOrderCreated(ctx context.Context, evt events.OrderCreated) error {
	outcome := events.PaymentProcessed{
		OrderID:   evt.OrderID,
		Success:   evt.Amount < authorizationLimit,
		Timestamp: time.Now().UTC(),
		Items:     evt.Items,
	}

	routingKey := events.KeyPaymentSuccess
	outcome.Reason = reasonAuthorized
	if !outcome.Success {
		routingKey = events.KeyPaymentFailed
		outcome.Reason = reasonInsufficientFunds
	}

	if err := p.publisher.Publish(ctx, outcome, routingKey, events.ExchangePayment); err != nil {
		return err
	}

	slog.InfoContext(ctx, "payment processed",
		"order_id", evt.OrderID, "amount", evt.Amount, "success", outcome.Success)
	return nil
}
