package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

// StockStore is the read/seed surface the HTTP layer needs. The
// reservation saga never goes through here.
type StockStore interface {
	Get(ctx context.Context, productID string) (stock.Record, error)
	Create(ctx context.Context, productID string, initialAvailable int) error
}

type Handler struct {
	store StockStore
}

func NewHandler(store StockStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	rec, err := h.store.Get(r.Context(), productID)
	if err != nil {
		if errors.Is(err, stock.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type createStockRequest struct {
	ProductID      string `json:"productId"`
	AvailableStock int    `json:"availableStock"`
}

// CreateStock seeds a product row. Idempotent-if-absent: repeating the
// call for an existing product changes nothing.
func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.AvailableStock < 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.store.Create(r.Context(), req.ProductID, req.AvailableStock); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"productId": req.ProductID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
