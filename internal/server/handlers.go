// Package server exposes the HTTP surface: WebSocket upgrades, the REST
// adapter, and the health check.
package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server wires the hub, upgrader, and HTTP handlers together.
type Server struct {
	hub      *Hub
	cfg      *Config
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates the HTTP surface for the given hub.
func NewServer(hub *Hub, cfg *Config, logger zerolog.Logger) *Server {
	s := &Server{
		hub:     hub,
		cfg:     cfg,
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
		log:     logger.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// handleWS upgrades the HTTP connection and hands the new session to the
// hub, which replays the log snapshot and starts the pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	select {
	case s.hub.register <- client:
	case <-s.hub.ctx.Done():
		_ = conn.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "roomcast",
	})
}
