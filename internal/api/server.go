// Package api serves the gateway's admin REST surface: session visibility
// and flushing behind a bearer token.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/Matthew-a-smith/OpenEdgeStack/internal/config"
	"github.com/Matthew-a-smith/OpenEdgeStack/internal/protocol"
	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// Server represents the admin REST API server
type Server struct {
	config  *config.APIConfig
	gateway *protocol.Gateway
	auth    *JWTManager
	router  chi.Router
	server  *http.Server
}

// NewServer creates the admin API server over a running gateway engine.
func NewServer(cfg *config.APIConfig, gw *protocol.Gateway) *Server {
	s := &Server{
		config:  cfg,
		gateway: gw,
		auth:    NewJWTManager(cfg),
		router:  chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/login", s.handleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/sessions", s.handleListSessions)
		r.Delete("/api/sessions/{devEUI}", s.handleFlushSession)
		r.Delete("/api/sessions", s.handleFlushAll)
	})
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting admin api")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware validates the bearer token on protected routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		if _, err := s.auth.ValidateToken(parts[1]); err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.gateway.Sessions().List(),
	})
}

func (s *Server) handleFlushSession(w http.ResponseWriter, r *http.Request) {
	devEUI, err := lorawan.ParseEUI64(chi.URLParam(r, "devEUI"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid devEUI")
		return
	}

	if err := s.gateway.FlushDevice(devEUI); err != nil {
		// The downlink did not go out; drop the local session anyway. The
		// response reports the local flush only.
		log.Warn().Err(err).Str("dev_eui", devEUI.String()).Msg("flush downlink failed")
		s.gateway.Sessions().Flush(devEUI.String())
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"flushed": devEUI.String()})
}

func (s *Server) handleFlushAll(w http.ResponseWriter, _ *http.Request) {
	s.gateway.Sessions().FlushAll()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
