// Package status serves a small local HTTP endpoint reporting agent health
// and recent safety-gate activity. Access requires a per-process bearer token
// generated at startup; the URL and token are logged once the listener is up.
package status

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rezkam/codedive/internal/config"
	"github.com/rezkam/codedive/internal/domain"
)

const recentAuditLimit = 20

// Server is the token-gated status endpoint.
type Server struct {
	host     string
	port     int
	token    string
	version  string
	provider string
	store    domain.MemoryStore
	logger   *slog.Logger

	startedAt time.Time
	server    *http.Server
}

// ServerConfig configures a status Server.
type ServerConfig struct {
	Status   config.StatusConfig
	Version  string
	Provider string
	Store    domain.MemoryStore
	Logger   *slog.Logger
}

// NewServer creates a status server with a fresh random access token.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate status token: %w", err)
	}
	return &Server{
		host:     cfg.Status.Host,
		port:     cfg.Status.Port,
		token:    token,
		version:  cfg.Version,
		provider: cfg.Provider,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}, nil
}

// Token returns the access token for this process.
func (s *Server) Token() string {
	return s.token
}

// Start binds the listener and serves until ctx is cancelled. The URL and
// token are logged only after the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.requireToken(s.handleStatus))

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen on %s: %w", addr, err)
	}

	s.server = &http.Server{Handler: mux}

	s.logger.Info("status endpoint ready",
		"url", fmt.Sprintf("http://%s/status", ln.Addr().String()),
		"token", s.token)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler returns the HTTP handler, used by tests with httptest.
func (s *Server) Handler() http.Handler {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.requireToken(s.handleStatus))
	return mux
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		want := "Bearer " + s.token
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type statusResponse struct {
	Version     string              `json:"version"`
	Provider    string              `json:"provider"`
	UptimeSec   int64               `json:"uptime_sec"`
	RecentAudit []domain.AuditEntry `json:"recent_audit"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.version,
		Provider:  s.provider,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.store != nil {
		entries, err := s.store.RecentAudit(r.Context(), recentAuditLimit)
		if err != nil {
			s.logger.Warn("status: recent audit query failed", "err", err)
		} else {
			resp.RecentAudit = entries
		}
	}
	if resp.RecentAudit == nil {
		resp.RecentAudit = []domain.AuditEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
