package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meditrack/coldchain/internal/infra/auth"
	"github.com/meditrack/coldchain/internal/insurance"
)

type InsuranceHandler struct {
	policies *insurance.PolicyRegistry
}

func NewInsuranceHandler(p *insurance.PolicyRegistry) *InsuranceHandler {
	return &InsuranceHandler{policies: p}
}

type createPolicyRequest struct {
	ID            string `json:"id"`
	ShipmentID    string `json:"shipment_id"`
	Holder        string `json:"holder"`
	PremiumAmount int64  `json:"premium_amount"`
	ClaimAmount   int64  `json:"claim_amount"`
}

// Create выпускает страховой полис.
// POST /v1/policies
func (h *InsuranceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	policy, err := h.policies.CreatePolicy(r.Context(), actor,
		req.ID, req.ShipmentID, req.Holder, req.PremiumAmount, req.ClaimAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

// Get возвращает полис по ID. Деактивированные тоже читаются.
// GET /v1/policies/{id}
func (h *InsuranceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	policy, err := h.policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

type payPremiumRequest struct {
	Amount int64 `json:"amount"`
}

// PayPremium принимает премию от держателя. Сумма должна совпасть
// с premium_amount полиса точно.
// POST /v1/policies/{id}/premium
func (h *InsuranceHandler) PayPremium(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req payPremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	if err := h.policies.PayPremium(r.Context(), actor, id, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FileClaim подает страховую заявку (требует зафиксированного breach).
// POST /v1/policies/{id}/claim
func (h *InsuranceHandler) FileClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if err := h.policies.FileClaim(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveClaim одобряет заявку (администратор, с повторной проверкой breach).
// POST /v1/policies/{id}/approve
func (h *InsuranceHandler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if err := h.policies.ApproveClaim(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeclineClaim отклоняет заявку; держатель может подать повторно.
// POST /v1/policies/{id}/decline
func (h *InsuranceHandler) DeclineClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if err := h.policies.DeclineClaim(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payout запускает расчет: резерв средств, закрытие полиса, перевод.
// POST /v1/policies/{id}/payout
func (h *InsuranceHandler) Payout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if err := h.policies.PayClaim(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
