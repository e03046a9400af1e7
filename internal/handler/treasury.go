package handler

import (
	"encoding/json"
	"net/http"

	"github.com/meditrack/coldchain/internal/infra/auth"
	"github.com/meditrack/coldchain/internal/treasury"
)

type TreasuryHandler struct {
	treasury *treasury.Treasury
}

func NewTreasuryHandler(t *treasury.Treasury) *TreasuryHandler {
	return &TreasuryHandler{treasury: t}
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit пополняет резервный фонд (администратор).
// POST /v1/treasury/deposit
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if err := h.treasury.Deposit(r.Context(), actor, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": h.treasury.Balance()})
}

// Balance возвращает текущий баланс фонда.
// GET /v1/treasury/balance
func (h *TreasuryHandler) Balance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"balance": h.treasury.Balance()})
}
