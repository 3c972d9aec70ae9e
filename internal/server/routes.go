// Package server wires the HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router builds the chi router with the WebSocket endpoint and the REST
// adapter over the same log. Middlewares are applied in order.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/messages", func(r chi.Router) {
		r.Get("/", s.handleListMessages)
		r.Post("/", s.handleCreateMessage)
		r.Get("/{id}", s.handleGetMessage)
	})

	return r
}
