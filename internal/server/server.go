// Package server exposes the assistant over HTTP. Authentication is a
// bearer token; every data route derives the owner from the token and
// nothing else.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"numa/internal/ledger"
	"numa/internal/logging"
	"numa/internal/orchestrator"
)

// Store is the slice of the ledger the HTTP layer needs directly. Intent
// traffic goes through the orchestrator instead.
type Store interface {
	CreateUser(ctx context.Context, email, name, password string) (*ledger.User, error)
	Authenticate(ctx context.Context, email, password string) (*ledger.User, error)
	VerifyManual(ctx context.Context, id, ownerID string) (*ledger.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string, f ledger.Filter) ([]*ledger.Transaction, error)
	DailySummary(ctx context.Context, ownerID string, day time.Time) (*ledger.DaySummary, error)
}

// Orchestrator handles resolved interactions.
type Orchestrator interface {
	HandleVoice(ctx context.Context, ownerID string, audio []byte, mimeType string) orchestrator.Envelope
	HandleText(ctx context.Context, ownerID, text string) orchestrator.Envelope
	VerifyWithDocument(ctx context.Context, ownerID, txID string, document []byte, mimeType string) (orchestrator.Envelope, error)
}

// Server is the HTTP front.
type Server struct {
	store    Store
	orch     Orchestrator
	log      *zap.Logger
	secret   []byte
	tokenTTL time.Duration
	httpSrv  *http.Server
}

// Config wires the server.
type Config struct {
	Addr     string
	Secret   string
	TokenTTL time.Duration
	Store    Store
	Orch     Orchestrator
	Logger   *zap.Logger
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Server{
		store:    cfg.Store,
		orch:     cfg.Orch,
		log:      logging.For(cfg.Logger, logging.CategoryServer),
		secret:   []byte(cfg.Secret),
		tokenTTL: ttl,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/token", s.handleToken)
	mux.HandleFunc("POST /voice", s.requireAuth(s.handleVoice))
	mux.HandleFunc("POST /chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("POST /transactions/{id}/verify", s.requireAuth(s.handleVerify))
	mux.HandleFunc("POST /transactions/{id}/verify-manual", s.requireAuth(s.handleVerifyManual))
	mux.HandleFunc("GET /transactions", s.requireAuth(s.handleList))
	mux.HandleFunc("GET /summary/daily", s.requireAuth(s.handleDailySummary))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
