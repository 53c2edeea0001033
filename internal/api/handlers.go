package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/senku-elixir/bridge/internal/settlement"
	"github.com/senku-elixir/bridge/internal/solana"
	"github.com/senku-elixir/bridge/internal/storage"
)

// handleSubmitSwap verifies an inbound payment and pays out.
// POST /swap
func (s *Server) handleSubmitSwap(w http.ResponseWriter, r *http.Request) {
	var req settlement.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	record, err := s.settlement.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, settlement.ErrPayoutFailed) {
			// The record exists as a failed tombstone; return it so the
			// caller can see what happened.
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Swap: record})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleSwapStatus returns the settlement record for a source transaction.
// GET /swap/{hash}
func (s *Server) handleSwapStatus(w http.ResponseWriter, r *http.Request) {
	record, err := s.settlement.Status(r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleListSwaps returns recent settlement records.
// GET /swaps?status=pending&limit=50
func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	status := storage.SwapStatus(r.URL.Query().Get("status"))
	switch status {
	case "", storage.SwapStatusPending, storage.SwapStatusCompleted, storage.SwapStatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status filter"})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.settlement.List(status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*storage.SwapRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"swaps": records})
}

// walletRequest is the body for wallet provisioning and reward claims.
type walletRequest struct {
	Address string `json:"address"`
}

// handleProvisionWallet derives the custodial wallet for a source address.
// POST /keys
func (s *Server) handleProvisionWallet(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "wallet service not configured"})
		return
	}

	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := solana.ValidateAddress(req.Address); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address: " + err.Error()})
		return
	}

	wallet, err := s.keys.Provision(r.Context(), req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if wallet.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, wallet)
}

// handleClaimReward relays a reward claim from the player's wallet.
// POST /rewards/claim
func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "wallet service not configured"})
		return
	}

	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := solana.ValidateAddress(req.Address); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address: " + err.Error()})
		return
	}

	txHash, err := s.keys.ClaimReward(r.Context(), req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"txHash": txHash})
}

// handleHealth reports daemon health and settlement counters.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.settlement.Counts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage unavailable"})
		return
	}

	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"swaps":  counts,
	}
	if s.wsHub != nil {
		resp["wsClients"] = s.wsHub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
