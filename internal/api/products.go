package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stockwise/internal/storage"
)

// ProductSummary is the JSON view of a product in search results.
type ProductSummary struct {
	ID                string  `json:"id"`
	ProductName       string  `json:"product_name"`
	ProductSKU        *string `json:"product_sku"`
	SupplierName      string  `json:"supplier_name"`
	QuantityAvailable int     `json:"quantity_available"`
	StockStatus       int     `json:"stock_status"`
	StockStatusLabel  string  `json:"stock_status_label"`
	UnitCost          float64 `json:"unit_cost"`
	WarehouseLocation string  `json:"warehouse_location"`
	IsActive          bool    `json:"is_active"`
}

// ProductDetail is the full JSON view of a product.
type ProductDetail struct {
	ProductSummary
	ProductID         string    `json:"product_id"`
	SupplierID        string    `json:"supplier_id"`
	QuantityOnHand    int       `json:"quantity_on_hand"`
	QuantityReserved  int       `json:"quantity_reserved"`
	MinimumStockLevel int       `json:"minimum_stock_level"`
	ReorderPoint      int       `json:"reorder_point"`
	OptimalStockLevel int       `json:"optimal_stock_level"`
	ReorderQuantity   int       `json:"reorder_quantity"`
	AverageDailyUsage float64   `json:"average_daily_usage"`
	TotalValue        float64   `json:"total_value"`
	ShelfLocation     string    `json:"shelf_location,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
}

func toSummary(p storage.Product) ProductSummary {
	var sku *string
	if p.SKU != "" {
		s := p.SKU
		sku = &s
	}
	return ProductSummary{
		ID:                p.ID,
		ProductName:       p.ProductName,
		ProductSKU:        sku,
		SupplierName:      p.SupplierName,
		QuantityAvailable: p.QuantityAvailable,
		StockStatus:       int(p.StockStatus),
		StockStatusLabel:  p.StockStatus.Label(),
		UnitCost:          p.UnitCost,
		WarehouseLocation: p.WarehouseLocation,
		IsActive:          p.IsActive,
	}
}

func toSummaries(ps []storage.Product) []ProductSummary {
	out := make([]ProductSummary, len(ps))
	for i, p := range ps {
		out[i] = toSummary(p)
	}
	return out
}

func toDetail(p storage.Product) ProductDetail {
	return ProductDetail{
		ProductSummary:    toSummary(p),
		ProductID:         p.ProductID,
		SupplierID:        p.SupplierID,
		QuantityOnHand:    p.QuantityOnHand,
		QuantityReserved:  p.QuantityReserved,
		MinimumStockLevel: p.MinimumStockLevel,
		ReorderPoint:      p.ReorderPoint,
		OptimalStockLevel: p.OptimalStockLevel,
		ReorderQuantity:   p.ReorderQuantity,
		AverageDailyUsage: p.AverageDailyUsage,
		TotalValue:        p.TotalValue,
		ShelfLocation:     p.ShelfLocation,
		Notes:             p.Notes,
		CreatedAt:         p.CreatedAt,
		LastUpdatedAt:     p.LastUpdatedAt,
	}
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the answer to a natural-language query.
type SearchResponse struct {
	Answer        string           `json:"answer"`
	ProductsFound []ProductSummary `json:"products_found"`
	Query         string           `json:"query"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		runSearch(w, r, deps, req.Query)
	}
}

func handleSearchQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSearch(w, r, deps, r.URL.Query().Get("q"))
	}
}

func runSearch(w http.ResponseWriter, r *http.Request, deps Deps, query string) {
	if strings.TrimSpace(query) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}
	res := deps.Search.SemanticSearch(r.Context(), query)
	writeJSON(w, http.StatusOK, SearchResponse{
		Answer:        res.Answer,
		ProductsFound: toSummaries(res.ProductsFound),
		Query:         res.Query,
	})
}

func handleListProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 500)
		offset := parseIntParam(r, "offset", 0, 0)
		activeOnly := r.URL.Query().Get("include_inactive") != "true"

		products, err := deps.Store.ListProducts(r.Context(), limit, offset, activeOnly)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list products: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaries(products))
	}
}

func handleSearchProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if strings.TrimSpace(name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		limit := parseIntParam(r, "limit", 10, 100)

		products, err := deps.Store.SearchByName(r.Context(), name, limit, true)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search products: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaries(products))
	}
}

func handleLowStock(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		products, err := deps.Store.LowStockProducts(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list low stock products: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaries(products))
	}
}

func handleCountProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("include_inactive") != "true"
		n, err := deps.Store.CountProducts(r.Context(), activeOnly)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count products: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

func handleGetProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Store.GetProduct(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "product not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get product: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toDetail(p))
	}
}
