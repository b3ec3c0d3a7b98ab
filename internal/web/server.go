package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mnhsh/digital-capsule/internal/auth"
	"github.com/mnhsh/digital-capsule/internal/response"
	"github.com/mnhsh/digital-capsule/internal/reveal"
	"go.uber.org/zap"
)

// Revealer is the part of the reveal controller the HTTP layer drives.
type Revealer interface {
	ForceOpen(ctx context.Context, confirmed bool) (bool, error)
	Status() reveal.Status
}

type Server struct {
	page       *Page
	hub        *Hub
	revealer   Revealer
	info       Info
	adminToken string
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewServer(page *Page, hub *Hub, revealer Revealer, info Info, adminToken string, logger *zap.Logger) *Server {
	return &Server{
		page:       page,
		hub:        hub,
		revealer:   revealer,
		info:       info,
		adminToken: adminToken,
		logger:     logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlerPage)
	mux.HandleFunc("GET /ws", s.handlerWebSocket)
	mux.HandleFunc("GET /api/status", s.handlerStatus)
	mux.HandleFunc("GET /healthz", s.handlerHealth)

	mux.Handle("POST /admin/force-open", auth.WithAdminToken(s.adminToken, http.HandlerFunc(s.handlerForceOpen)))

	return auth.CORSMiddleware(mux)
}

func (s *Server) handlerPage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.page.WriteHTML(&buf, s.info); err != nil {
		response.RespondWithError(w, http.StatusInternalServerError, "failed to render page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handlerWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(s.hub, conn)
	s.page.Attach(client)

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) handlerStatus(w http.ResponseWriter, r *http.Request) {
	response.RespondWithJSON(w, http.StatusOK, s.revealer.Status())
}

func (s *Server) handlerHealth(w http.ResponseWriter, r *http.Request) {
	response.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Len(),
	})
}

func (s *Server) handlerForceOpen(w http.ResponseWriter, r *http.Request) {
	confirmed := r.FormValue("confirm") == "yes"
	opened, err := s.revealer.ForceOpen(r.Context(), confirmed)
	switch {
	case errors.Is(err, reveal.ErrNotConfirmed):
		response.RespondWithError(w, http.StatusBadRequest, "force open must be confirmed with confirm=yes", nil)
		return
	case errors.Is(err, reveal.ErrStopped):
		response.RespondWithError(w, http.StatusServiceUnavailable, "capsule is shutting down", err)
		return
	case err != nil:
		response.RespondWithError(w, http.StatusInternalServerError, "failed to force open", err)
		return
	}
	if opened {
		s.logger.Warn("Capsule forced open over HTTP", zap.String("remote", r.RemoteAddr))
	}

	type forceOpenResponse struct {
		Opened bool          `json:"opened"`
		Status reveal.Status `json:"status"`
	}
	response.RespondWithJSON(w, http.StatusOK, forceOpenResponse{
		Opened: opened,
		Status: s.revealer.Status(),
	})
}
