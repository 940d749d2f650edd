package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

type fakeStore struct {
	records   map[string]stock.Record
	getErr    error
	createErr error
	created   map[string]int
}

func (s *fakeStore) Get(ctx context.Context, productID string) (stock.Record, error) {
	if s.getErr != nil {
		return stock.Record{}, s.getErr
	}
	rec, ok := s.records[productID]
	if !ok {
		return stock.Record{}, stock.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) Create(ctx context.Context, productID string, initialAvailable int) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.created == nil {
		s.created = map[string]int{}
	}
	s.created[productID] = initialAvailable
	return nil
}

func TestHealth(t *testing.T) {
	router := NewRouter(NewHandler(&fakeStore{}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "ok" {
		t.Fatalf("expected body \"ok\", got %q", body)
	}
}

func TestGetStock(t *testing.T) {
	store := &fakeStore{records: map[string]stock.Record{
		"p1": {ProductID: "p1", Available: 70, Reserved: 30, UpdatedAt: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)},
	}}
	router := NewRouter(NewHandler(store))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/p1/stock", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got stock.Record
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.ProductID != "p1" || got.Available != 70 || got.Reserved != 30 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGetStockNotFound(t *testing.T) {
	router := NewRouter(NewHandler(&fakeStore{}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/missing/stock", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetStockInternalError(t *testing.T) {
	router := NewRouter(NewHandler(&fakeStore{getErr: errors.New("db down")}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/p1/stock", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCreateStock(t *testing.T) {
	store := &fakeStore{}
	router := NewRouter(NewHandler(store))

	body, _ := json.Marshal(map[string]any{"productId": "p1", "availableStock": 100})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if store.created["p1"] != 100 {
		t.Fatalf("store not called: %+v", store.created)
	}
}

func TestCreateStockBadRequest(t *testing.T) {
	tests := map[string]string{
		"invalid json":   `{"productId":`,
		"missing id":     `{"availableStock": 10}`,
		"negative stock": `{"productId": "p1", "availableStock": -5}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			router := NewRouter(NewHandler(&fakeStore{}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}
