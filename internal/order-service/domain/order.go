package domain

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status can never change again. An order leaves
// PENDING exactly once.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Order struct {
	ID           string
	CustomerName string
	CardNumber   string
	Total        float64
	Status       OrderStatus
	Reason       string
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}
