package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/john/speakerlog/internal/identity"
	"github.com/john/speakerlog/internal/speaker"
)

// Speaker is the view of the speaker logger exposed over HTTP
type Speaker interface {
	Target() identity.Identity
	SetTarget(raw string)
	OutputPath() string
	Stats() speaker.Stats
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Status     string        `json:"status"`
	Target     string        `json:"target"`
	Enabled    bool          `json:"enabled"`
	OutputPath string        `json:"output_path"`
	Stats      speaker.Stats `json:"stats"`
}

type targetRequest struct {
	Target string `json:"target"`
}

// Server provides health, status and target endpoints
type Server struct {
	server  *http.Server
	speaker Speaker
	log     *zap.Logger
}

// New creates a new health check server. When token is non-empty,
// PUT /target requires "Authorization: Bearer <token>".
func New(addr, token string, sp Speaker, log *zap.Logger) *Server {
	s := &Server{speaker: sp, log: log}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(10 * time.Second))

	router.Get("/health", s.health)
	router.Get("/status", s.status)
	router.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Put("/target", s.setTarget)
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.log.Info("Health check server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down health check server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) setTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	s.speaker.SetTarget(req.Target)
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() StatusResponse {
	target := s.speaker.Target()
	return StatusResponse{
		Status:     "ok",
		Target:     target.String(),
		Enabled:    !target.IsZero(),
		OutputPath: s.speaker.OutputPath(),
		Stats:      s.speaker.Stats(),
	}
}

// bearerAuth rejects requests without the expected bearer token.
// An empty token leaves the route open.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
