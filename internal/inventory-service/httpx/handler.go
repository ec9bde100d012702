// Package httpx exposes the inventory read/seed endpoints. It observes the
// saga; it never participates in it.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/domain"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/store"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/inventory", handler.ListInventory)
	r.Post("/api/inventory", handler.SeedItem)
	return r
}

type itemResponse struct {
	ProductID        string `json:"product_id"`
	QuantityOnHand   int    `json:"quantity_on_hand"`
	QuantityReserved int    `json:"quantity_reserved"`
	Available        int    `json:"available"`
}

type seedItemRequest struct {
	ProductID      string `json:"product_id"`
	QuantityOnHand int    `json:"quantity_on_hand"`
}

func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = itemResponse{
			ProductID:        it.ProductID,
			QuantityOnHand:   it.QuantityOnHand,
			QuantityReserved: it.QuantityReserved,
			Available:        it.Available(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SeedItem(w http.ResponseWriter, r *http.Request) {
	var req seedItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ProductID == "" || req.QuantityOnHand < 0 {
		writeError(w, http.StatusBadRequest, "invalid_item", "product_id and a non-negative quantity are required")
		return
	}

	item := domain.InventoryItem{
		ProductID:      req.ProductID,
		QuantityOnHand: req.QuantityOnHand,
	}
	if err := h.store.Upsert(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, itemResponse{
		ProductID:      item.ProductID,
		QuantityOnHand: item.QuantityOnHand,
		Available:      item.Available(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
