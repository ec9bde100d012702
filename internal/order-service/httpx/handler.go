// Package httpx is the inbound HTTP boundary of the order service: it accepts
// order submissions (which start the saga) and serves order reads. It is a
// thin wrapper; all business behavior lives in app.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/store"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/cache"
)

// cacheTTL bounds how long a finalized order may be served from cache.
const cacheTTL = 5 * time.Minute

type Handler struct {
	service *app.Service
	cache   cache.Cache // nil-safe: caching skipped if nil
}

// NewHandler builds the HTTP handler. c may be nil, in which case every read
// goes to the store.
func NewHandler(service *app.Service, c cache.Cache) *Handler {
	return &Handler{service: service, cache: c}
}

// CreateOrder accepts an order submission, persists it as PENDING and
// publishes the order.created event that starts the saga.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.CustomerName == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_name and items are required")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item", "product_id, quantity, and unit_price must be valid")
			return
		}
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), app.CreateOrderInput{
		CustomerName: req.CustomerName,
		CardNumber:   req.CardNumber,
		Items:        items,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "order_create_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, mapOrderToResponse(order))
}

// GetOrderByID serves a single order, reading through the cache for orders
// that already reached a terminal status.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id_required", "")
		return
	}

	if body := h.cachedOrder(r, orderID); body != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order_not_found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	resp := mapOrderToResponse(order)
	h.maybeCache(r, order, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = mapOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) cachedOrder(r *http.Request, orderID string) string {
	if h.cache == nil {
		return ""
	}
	body, err := h.cache.Get(r.Context(), h.cache.GenerateKey("get_order", orderID))
	if err != nil {
		slog.WarnContext(r.Context(), "order cache read failed", "order_id", orderID, "error", err)
		return ""
	}
	return body
}

// maybeCache stores finalized orders only: a PENDING order changes when the
// saga completes, so caching it would serve stale status.
func (h *Handler) maybeCache(r *http.Request, order domain.Order, resp OrderResponse) {
	if h.cache == nil || !order.Status.Terminal() {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	key := h.cache.GenerateKey("get_order", order.ID)
	if err := h.cache.Set(r.Context(), key, string(body), cacheTTL); err != nil {
		slog.WarnContext(r.Context(), "order cache write failed", "order_id", order.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
