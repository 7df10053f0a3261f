package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/stockwise/internal/registry"
)

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stage *registry.Stage
		if s := r.URL.Query().Get("stage"); s != "" {
			st, err := registry.ParseStage(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			stage = &st
		}
		writeJSON(w, http.StatusOK, deps.Inference.ListModels(stage))
	}
}

func handleGetModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, ok := deps.Inference.ModelInfo(name)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "model %q not registered", name)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleModelHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Inference.HealthCheck(chi.URLParam(r, "name")))
	}
}

func handleLoadModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, err := deps.Inference.Registry().Load(r.Context(), name); err != nil {
			writeModelError(w, err)
			return
		}
		writeModelInfo(w, deps, name)
	}
}

func handleUnloadModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		reg := deps.Inference.Registry()
		if _, ok := reg.Info(name); !ok {
			httpError(w, http.StatusNotFound, "not_found", "model %q not registered", name)
			return
		}
		reg.Unload(name)
		writeModelInfo(w, deps, name)
	}
}

func handleReloadModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, err := deps.Inference.Registry().Reload(r.Context(), name); err != nil {
			writeModelError(w, err)
			return
		}
		writeModelInfo(w, deps, name)
	}
}

func writeModelInfo(w http.ResponseWriter, deps Deps, name string) {
	info, ok := deps.Inference.ModelInfo(name)
	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "model %q not registered", name)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, registry.ErrLoadFailed):
		httpError(w, http.StatusBadGateway, "model_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
