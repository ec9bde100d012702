// Package events holds the wire contracts shared by the order, payment and
// inventory services. Every message on the broker is one JSON object; decoders
// ignore fields they do not understand so services can be deployed
// independently. A message that fails Validate is structurally invalid and is
// dead-lettered without retry.
package events

import (
	"errors"
	"fmt"
	"time"
)

// OrderItem is one line of an order. Items within one event are keyed by
// product ID; order between items carries no meaning.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderCreated is published by the order service when a new order is accepted.
// Both the inventory service (allocation) and the payment service (charge)
// consume it independently.
type OrderCreated struct {
	OrderID      string      `json:"order_id"`
	CustomerName string      `json:"customer_name"`
	Amount       float64     `json:"amount"`
	CardNumber   string      `json:"card_number"`
	CreatedAt    time.Time   `json:"created_at"`
	Items        []OrderItem `json:"items"`
}

// PaymentProcessed is published by the payment service with the charge
// outcome. Items are echoed from the originating OrderCreated event because
// the payment service keeps no order state of its own; downstream consumers
// need them to commit or release reservations idempotently.
type PaymentProcessed struct {
	OrderID   string      `json:"order_id"`
	Success   bool        `json:"success"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
	Items     []OrderItem `json:"items"`
}

func (e OrderCreated) Validate() error {
	if e.OrderID == "" {
		return errors.New("order_id is required")
	}
	return validateItems(e.Items)
}

func (e PaymentProcessed) Validate() error {
	if e.OrderID == "" {
		return errors.New("order_id is required")
	}
	return validateItems(e.Items)
}

func validateItems(items []OrderItem) error {
	for _, it := range items {
		if it.ProductID == "" {
			return errors.New("item product_id is required")
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %s: quantity must be positive", it.ProductID)
		}
	}
	return nil
}
