package httpx

import (
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

type CreateOrderRequest struct {
	CustomerName string               `json:"customer_name"`
	CardNumber   string               `json:"card_number"`
	Items        []CreateOrderItemDTO `json:"items"`
}

type CreateOrderItemDTO struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderResponse struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	Status       string              `json:"status"`
	Total        float64             `json:"total"`
	Reason       string              `json:"reason,omitempty"`
	Items        []OrderItemResponse `json:"items,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(order domain.Order) OrderResponse {
	return OrderResponse{
		ID:           order.ID,
		CustomerName: order.CustomerName,
		Status:       string(order.Status),
		Total:        order.Total,
		Reason:       order.Reason,
		Items:        mapItems(order.Items),
		CreatedAt:    order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    order.UpdatedAt.Format(time.RFC3339),
	}
}

func mapItems(items []domain.OrderItem) []OrderItemResponse {
	if len(items) == 0 {
		return nil
	}
	out := make([]OrderItemResponse, len(items))
	for i, it := range items {
		out[i] = OrderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return out
}
