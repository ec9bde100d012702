package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/orders", handler.CreateOrder)
	r.Get("/api/orders", handler.ListOrders)
	r.Get("/api/orders/{id}", handler.GetOrderByID)
	return r
}
