// Package rest exposes the engine over the DynamoDB JSON protocol: one
// POST endpoint per operation name, plus X-Amz-Target dispatch on the
// root for SDK-style clients.
package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pretenderdb/application/services"
	"pretenderdb/interfaces/http/rest/middleware"
)

// Options tunes the HTTP surface.
type Options struct {
	EnableCORS bool
}

// NewRouter builds the protocol router around an engine.
func NewRouter(engine *services.Engine, logger *zap.Logger, opts Options) http.Handler {
	h := &handler{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	if opts.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}))
	}

	for name := range h.operations() {
		r.Post("/"+name, h.dispatchPath(name))
	}
	r.Post("/", h.dispatchTarget)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// dispatchPath serves the per-operation endpoints.
func (h *handler) dispatchPath(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, operation)
	}
}

// dispatchTarget serves SDK-style requests carrying the operation in the
// X-Amz-Target header, e.g. "DynamoDB_20120810.PutItem".
func (h *handler) dispatchTarget(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	if idx := strings.LastIndexByte(target, '.'); idx >= 0 {
		target = target[idx+1:]
	}
	h.serve(w, r, target)
}
