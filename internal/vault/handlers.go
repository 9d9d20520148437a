package vault

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/safety"
	"github.com/atmx/vault-engine/internal/venue"
)

// --- Request types ---

// DepositRequest is the JSON body for POST /api/v1/deposit.
type DepositRequest struct {
	AccountID string          `json:"account_id"`
	Principal decimal.Decimal `json:"principal"`
}

// RedeemRequest is the JSON body for POST /api/v1/redeem.
type RedeemRequest struct {
	AccountID string          `json:"account_id"`
	Shares    decimal.Decimal `json:"shares"`
}

// AmountRequest is the JSON body for admin operations taking one amount.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// StrategyRequest is the JSON body for strategy proposals.
type StrategyRequest struct {
	Ref string `json:"ref"`
}

// CooldownRequest is the JSON body for POST /api/v1/admin/cooldown.
type CooldownRequest struct {
	Cooldown string `json:"cooldown"` // Go duration string, e.g. "5m"
}

// FeeRequest is the JSON body for POST /api/v1/admin/fee.
type FeeRequest struct {
	FeeBps int64 `json:"fee_bps"`
}

// RatioRequest is the JSON body for POST /api/v1/admin/ratio.
type RatioRequest struct {
	YieldBps int64 `json:"yield_bps"`
}

// --- User handlers ---

// HandleDeposit handles POST /api/v1/deposit.
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	receipt, err := s.Deposit(r.Context(), req.AccountID, req.Principal)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// HandleRedeem handles POST /api/v1/redeem.
func (s *Service) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	receipt, err := s.Redeem(r.Context(), req.AccountID, req.Shares)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleVault handles GET /api/v1/vault. Served from the published
// snapshot; never takes the operation lock.
func (s *Service) HandleVault(w http.ResponseWriter, _ *http.Request) {
	snap := s.Snapshot()
	if snap == nil {
		writeError(w, "snapshot not yet available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleAccount handles GET /api/v1/accounts/{accountID}.
func (s *Service) HandleAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountID")
	acct, ok := s.Account(id)
	if !ok {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// HandleEvents handles GET /api/v1/events, optionally filtered by
// ?account=<id>.
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []model.VaultEvent{})
		return
	}

	var events []model.VaultEvent
	var err error
	if account := r.URL.Query().Get("account"); account != "" {
		events, err = s.store.GetEventsByAccount(r.Context(), account)
	} else {
		events, err = s.store.ListEvents(r.Context())
	}
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.VaultEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Admin handlers ---

// HandleHarvest handles POST /api/v1/admin/harvest.
func (s *Service) HandleHarvest(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.Harvest(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleRebalance handles POST /api/v1/admin/rebalance.
func (s *Service) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.Rebalance(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandlePause handles POST /api/v1/admin/pause.
func (s *Service) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.Pause(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// HandleUnpause handles POST /api/v1/admin/unpause.
func (s *Service) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	s.Unpause(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// HandleFundReserve handles POST /api/v1/admin/reserve/fund.
func (s *Service) HandleFundReserve(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.FundReserve(r.Context(), req.Amount); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

// HandleSetCap handles POST /api/v1/admin/cap.
func (s *Service) HandleSetCap(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SetCap(r.Context(), req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cap": req.Amount.String()})
}

// HandleSetCooldown handles POST /api/v1/admin/cooldown.
func (s *Service) HandleSetCooldown(w http.ResponseWriter, r *http.Request) {
	var req CooldownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cooldown, err := time.ParseDuration(req.Cooldown)
	if err != nil {
		writeError(w, "invalid cooldown duration", http.StatusBadRequest)
		return
	}
	if err := s.SetCooldown(r.Context(), cooldown); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cooldown": cooldown.String()})
}

// HandleSetFee handles POST /api/v1/admin/fee.
func (s *Service) HandleSetFee(w http.ResponseWriter, r *http.Request) {
	var req FeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SetPerformanceFee(r.Context(), req.FeeBps); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"fee_bps": req.FeeBps})
}

// HandleSetRatio handles POST /api/v1/admin/ratio.
func (s *Service) HandleSetRatio(w http.ResponseWriter, r *http.Request) {
	var req RatioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.SetAllocationRatio(r.Context(), req.YieldBps); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"yield_bps": req.YieldBps})
}

// HandleProposeStrategy handles POST /api/v1/admin/strategy/propose.
func (s *Service) HandleProposeStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pending, err := s.ProposeStrategy(r.Context(), req.Ref)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

// HandleExecuteStrategy handles POST /api/v1/admin/strategy/execute.
func (s *Service) HandleExecuteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.ExecuteStrategy(r.Context()); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed"})
}

// HandleCancelStrategy handles POST /api/v1/admin/strategy/cancel.
func (s *Service) HandleCancelStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.CancelStrategy(r.Context()); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// OwnerOnly returns middleware that authenticates the admin surface with
// a bearer token. An empty configured token rejects everything.
func OwnerOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

// statusFor maps engine errors to HTTP statuses: validation failures are
// 400, missing resources 404, policy rejections 409, verification and
// venue failures 502/500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBelowMinDeposit),
		errors.Is(err, ErrInvalidShares),
		errors.Is(err, venue.ErrInvalidRef),
		errors.Is(err, venue.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, safety.ErrPaused),
		errors.Is(err, safety.ErrStalePrice),
		errors.Is(err, safety.ErrPriceMoved),
		errors.Is(err, safety.ErrCooldownActive),
		errors.Is(err, safety.ErrMinHoldTime),
		errors.Is(err, safety.ErrCapacityExceeded),
		errors.Is(err, safety.ErrTimelockNotElapsed),
		errors.Is(err, safety.ErrProposalCooldownActive),
		errors.Is(err, safety.ErrNoPendingChange),
		errors.Is(err, venue.ErrNotWhitelisted),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrIncreaseRefused),
		errors.Is(err, ErrNoActivePosition),
		errors.Is(err, ErrRebalanceNotNeeded),
		errors.Is(err, ErrRebalanceInProgress),
		errors.Is(err, ErrNothingToHarvest),
		errors.Is(err, ErrReentrancy):
		return http.StatusConflict
	case errors.Is(err, ErrProviderVerification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
