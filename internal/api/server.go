// Package api exposes the bridge over HTTP: swap submission and status,
// wallet provisioning, reward claims, and a WebSocket feed of settlement
// lifecycle events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/senku-elixir/bridge/internal/evm"
	"github.com/senku-elixir/bridge/internal/keys"
	"github.com/senku-elixir/bridge/internal/settlement"
	"github.com/senku-elixir/bridge/internal/solana"
	"github.com/senku-elixir/bridge/internal/storage"
	"github.com/senku-elixir/bridge/pkg/logging"
)

// Server is the bridge HTTP API server.
type Server struct {
	settlement *settlement.Service
	keys       *keys.Service
	log        *logging.Logger
	wsHub      *WSHub

	server   *http.Server
	listener net.Listener
	started  time.Time
}

// NewServer creates the API server. keySvc may be nil when the wallet
// feature is disabled; its endpoints then report 503.
func NewServer(settlementSvc *settlement.Service, keySvc *keys.Service, log *logging.Logger) *Server {
	return &Server{
		settlement: settlementSvc,
		keys:       keySvc,
		log:        log.Component("api"),
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	// Initialize WebSocket hub and wire it into the settlement pipeline
	s.wsHub = NewWSHub(s.log)
	go s.wsHub.Run()
	s.settlement.SetNotifier(s.wsHub)

	// A swap submission blocks on payout confirmation, so the write
	// timeout must outlast evm.DefaultConfirmTimeout.
	s.server = &http.Server{
		Handler:      corsMiddleware(s.requestIDMiddleware(s.routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: evm.DefaultConfirmTimeout + time.Minute,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", "error", err)
		}
	}()

	s.log.Info("API server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// routes builds the request mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /swap", s.handleSubmitSwap)
	mux.HandleFunc("GET /swap/{hash}", s.handleSwapStatus)
	mux.HandleFunc("GET /swaps", s.handleListSwaps)
	mux.HandleFunc("POST /keys", s.handleProvisionWallet)
	mux.HandleFunc("POST /rewards/claim", s.handleClaimReward)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

// requestIDMiddleware tags every request with an ID for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		s.log.Debug("request", "id", reqID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error      string                 `json:"error"`
	Swap       interface{}            `json:"swap,omitempty"`
	Candidates []solana.TokenTransfer `json:"candidates,omitempty"`
}

// statusFor maps settlement and storage errors to HTTP status codes.
// Verification rejections are client errors: the claimed payment is
// simply not there. Only payout and infrastructure failures are 5xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, settlement.ErrInvalidRequest),
		errors.Is(err, settlement.ErrTxFailed),
		errors.Is(err, settlement.ErrTxExpired),
		errors.Is(err, settlement.ErrWrongAsset),
		errors.Is(err, settlement.ErrNoTransferFound),
		errors.Is(err, settlement.ErrTransferMismatch):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrTxNotFound),
		errors.Is(err, storage.ErrSwapNotFound),
		errors.Is(err, keys.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrAlreadyProcessed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	// Mismatch rejections carry the transfers actually found, so the
	// caller can see what their transaction really paid.
	var mismatch *settlement.MismatchError
	if errors.As(err, &mismatch) {
		resp.Candidates = mismatch.Candidates
	}
	writeJSON(w, statusFor(err), resp)
}
