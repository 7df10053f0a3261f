package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stockwise/internal/inference"
	"github.com/kalambet/stockwise/internal/metrics"
	"github.com/kalambet/stockwise/internal/search"
	"github.com/kalambet/stockwise/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store     *storage.Store
	Search    *search.Orchestrator
	Inference *inference.Service
	Token     string // optional; when set, /v1 requires it as a bearer token
	Version   string
}

// NewHandler returns the stockwise REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps.Version))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/search", handleSearchQuery(deps))
		r.Post("/search", handleSearch(deps))

		r.Get("/products", handleListProducts(deps))
		r.Get("/products/search", handleSearchProducts(deps))
		r.Get("/products/low-stock", handleLowStock(deps))
		r.Get("/products/count", handleCountProducts(deps))
		r.Get("/products/{id}", handleGetProduct(deps))

		r.Post("/detect", handleDetect(deps))

		r.Get("/models", handleListModels(deps))
		r.Get("/models/{name}", handleGetModel(deps))
		r.Get("/models/{name}/health", handleModelHealth(deps))
		r.Post("/models/{name}/load", handleLoadModel(deps))
		r.Post("/models/{name}/unload", handleUnloadModel(deps))
		r.Post("/models/{name}/reload", handleReloadModel(deps))
	})

	return r
}

func handleHealth(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "stockwise",
			"version": version,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
