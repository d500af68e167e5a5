// Package server exposes the round service over HTTP, WebSocket and gRPC health checks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cardtable/blackjack-server/internal/auth"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/notify"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// HTTPServer serves the JSON API and the push channel.
type HTTPServer struct {
	svc      *round.Service
	hub      *notify.Hub
	tokens   *auth.Tokens
	accounts *auth.Registry
	upgrader websocket.Upgrader
	limiter  *limiter
	cfg      config.ServerConfig
	logger   *zap.Logger
}

// NewHTTPServer wires the API handlers.
func NewHTTPServer(
	cfg config.ServerConfig,
	svc *round.Service,
	hub *notify.Hub,
	tokens *auth.Tokens,
	accounts *auth.Registry,
	logger *zap.Logger,
) *HTTPServer {
	s := &HTTPServer{
		svc:      svc,
		hub:      hub,
		tokens:   tokens,
		accounts: accounts,
		limiter:  newLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		cfg:      cfg,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts every origin unless an allow list is configured.
func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.WebSocket.AllowedOrigins
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return true
	}
	return lo.Contains(allowed, r.Header.Get("Origin"))
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanics, s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	public := r.PathPrefix("/api/auth").Subrouter()
	public.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate, s.rateLimit)
	api.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/rounds", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/rounds/join/{code}", s.handleJoin).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}/deck", s.handleDeck).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}/hand", s.handleHand).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/ready", s.handleReady).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/draw", s.handleDraw).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/stand", s.handleStand).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/blackjack", s.handleBlackjack).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/reveal", s.handleReveal).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/auto-reveal", s.handleAutoReveal).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/restart", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/rounds/{id}/leave", s.handleLeave).Methods(http.MethodPost)

	api.HandleFunc("/ws/rounds/{id}", s.handleSubscribe).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respond(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respond(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

// Server returns an http.Server for addr with the configured timeouts.
func (s *HTTPServer) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.respond(w, http.StatusServiceUnavailable, "store unavailable", nil)
		return
	}
	s.ok(w, "ok", nil)
}

// handleSubscribe upgrades a member's connection and joins it to the round's room.
func (s *HTTPServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	roundID := mux.Vars(r)["id"]

	if _, err := s.svc.Get(r.Context(), roundID, id.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("round_id", roundID),
			zap.Error(err))
		return
	}
	s.hub.Serve(r.Context(), conn, round.RoomKey(roundID), id.UserID)
}
