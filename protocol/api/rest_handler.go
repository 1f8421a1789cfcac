// Package api exposes the engine over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guileen/objectql/engine"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/security"
	"github.com/guileen/objectql/types"
)

// RESTHandler serves query, explain, and cache management endpoints.
type RESTHandler struct {
	engine *engine.Engine
	tokens *security.JWTProvider
}

// NewRESTHandler creates a handler. tokens may be nil to disable bearer
// authentication (every request then runs as the anonymous context).
func NewRESTHandler(eng *engine.Engine, tokens *security.JWTProvider) *RESTHandler {
	return &RESTHandler{engine: eng, tokens: tokens}
}

// RegisterRoutes mounts the API.
func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.securityContext)
		r.Post("/query", h.Query)
		r.Post("/explain", h.Explain)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate/{object}", h.InvalidateCache)
		r.Delete("/cache", h.ClearCaches)
	})
}

// QueryRequest is the body of /api/query and /api/explain.
type QueryRequest struct {
	Query string `json:"query"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// securityContext binds the caller's security context from the bearer
// token, when token auth is configured.
func (h *RESTHandler) securityContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokens == nil {
			ctx := security.WithContext(r.Context(), &types.SecurityContext{})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sctx, err := h.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := security.WithContext(r.Context(), sctx)
		ctx = logger.WithContextValue(ctx, logger.UserIDKey, sctx.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Query executes a DSQL query and returns the instrumented result.
func (h *RESTHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := h.engine.Execute(r.Context(), req.Query)
	status := http.StatusOK
	if !result.Success {
		status = statusForError(result.Error)
	}
	writeJSON(w, status, result)
}

// Explain plans a query without executing it.
func (h *RESTHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	plan, err := h.engine.Explain(r.Context(), req.Query)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CacheStats reports cache statistics.
func (h *RESTHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CacheStatistics())
}

// InvalidateCache drops cache entries depending on an object.
func (h *RESTHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "object")
	h.engine.InvalidateCache(object)
	writeJSON(w, http.StatusOK, map[string]string{"invalidated": object})
}

// ClearCaches empties both caches.
func (h *RESTHandler) ClearCaches(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCaches()
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch err.(type) {
	case *types.ParseError:
		return http.StatusBadRequest
	case *types.MetadataError:
		return http.StatusNotFound
	case *types.SecurityError:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func statusForError(msg string) int {
	switch {
	case strings.HasPrefix(msg, "parse error"):
		return http.StatusBadRequest
	case strings.HasPrefix(msg, "metadata error"):
		return http.StatusNotFound
	case strings.HasPrefix(msg, "access denied"):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
